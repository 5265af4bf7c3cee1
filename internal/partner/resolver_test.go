package partner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/devarena-lab/project-devarena/internal/core/storage"
	"github.com/devarena-lab/project-devarena/internal/verify"
)

type stubLinker struct {
	issue *verify.LinkedIssue
	err   error
}

func (s *stubLinker) LinkedIssue(_ context.Context, _, _ string, _ int) (*verify.LinkedIssue, error) {
	return s.issue, s.err
}

type stubRates struct {
	rule *RateRule
	err  error
}

func (s *stubRates) Get(_ context.Context, _ string) (*RateRule, error) {
	return s.rule, s.err
}

var testPartner = storage.Partner{ID: "acme", Name: "Acme Labs", TokenSymbol: "ACME", Active: true}

func newTestResolver(rates RateRepository, linker verify.IssueLinker) *Resolver {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewResolver(rates, linker, time.Second, logger)
}

func TestResolve_TaggedIssueYieldsSummary(t *testing.T) {
	linker := &stubLinker{issue: &verify.LinkedIssue{Number: 42, Tags: []string{"defi", "urgent"}}}
	rates := &stubRates{rule: &RateRule{
		PartnerID: "acme",
		TagRates: map[string]decimal.Decimal{
			"defi":   decimal.RequireFromString("2.5"),
			"urgent": decimal.NewFromInt(1),
		},
	}}

	summary, issue, err := newTestResolver(rates, linker).Resolve(context.Background(), testPartner, "acme", "widgets", 12)
	require.NoError(t, err)
	require.NotNil(t, issue)
	require.NotNil(t, summary)
	require.Equal(t, "acme", summary.PartnerID)
	require.Equal(t, "ACME", summary.TokenSymbol)
	require.True(t, summary.Amount.Equal(decimal.RequireFromString("3.5")))
	require.Contains(t, summary.Summary, "issue #42")
}

func TestResolve_NoLinkedIssue(t *testing.T) {
	resolver := newTestResolver(&stubRates{}, &stubLinker{})

	summary, issue, err := resolver.Resolve(context.Background(), testPartner, "acme", "widgets", 12)
	require.NoError(t, err)
	require.Nil(t, summary)
	require.Nil(t, issue)
}

func TestResolve_ZeroAmountYieldsNoSummary(t *testing.T) {
	linker := &stubLinker{issue: &verify.LinkedIssue{Number: 42, Tags: []string{"docs"}}}
	rates := &stubRates{rule: &RateRule{PartnerID: "acme"}}

	summary, issue, err := newTestResolver(rates, linker).Resolve(context.Background(), testPartner, "acme", "widgets", 12)
	require.NoError(t, err)
	require.Nil(t, summary)
	// The issue link is still reported so the caller can persist the tags.
	require.NotNil(t, issue)
}

func TestResolve_LinkerFailureIsVerificationError(t *testing.T) {
	cause := errors.New("boom")
	resolver := newTestResolver(&stubRates{}, &stubLinker{err: cause})

	_, _, err := resolver.Resolve(context.Background(), testPartner, "acme", "widgets", 12)
	require.Error(t, err)

	var verr *verify.VerificationError
	require.ErrorAs(t, err, &verr)
	require.ErrorIs(t, err, cause)
}

func TestResolve_MissingRateRuleIsVerificationError(t *testing.T) {
	linker := &stubLinker{issue: &verify.LinkedIssue{Number: 42, Tags: []string{"defi"}}}
	resolver := newTestResolver(&stubRates{err: errors.New("not found")}, linker)

	_, issue, err := resolver.Resolve(context.Background(), testPartner, "acme", "widgets", 12)
	require.Error(t, err)
	require.NotNil(t, issue)
}
