package partner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/devarena-lab/project-devarena/internal/core/reward"
	"github.com/devarena-lab/project-devarena/internal/core/storage"
	"github.com/devarena-lab/project-devarena/internal/verify"
)

// Resolver converts a verified tagged issue into a partner token reward.
// Eligibility (active partner, exclusion list, season gate) is decided by the
// caller; the resolver only performs the external issue lookup and the rate
// conversion.
type Resolver struct {
	rates   RateRepository
	linker  verify.IssueLinker
	timeout time.Duration
	logger  *slog.Logger
}

func NewResolver(rates RateRepository, linker verify.IssueLinker, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{
		rates:   rates,
		linker:  linker,
		timeout: timeout,
		logger:  logger.With("component", "[PartnerResolver]"),
	}
}

// Resolve looks up the issue the pull request closes and prices its tags with
// the partner's rate rule. It returns a nil summary when the pull request has
// no verifiable tagged issue or the tags price to zero. Errors are
// VerificationErrors; the caller decides the fallback.
func (r *Resolver) Resolve(ctx context.Context, p storage.Partner, owner, name string, prNumber int) (*reward.PartnerSummary, *verify.LinkedIssue, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	issue, err := r.linker.LinkedIssue(ctx, owner, name, prNumber)
	if err != nil {
		return nil, nil, &verify.VerificationError{Op: "linked-issue lookup", Err: err}
	}
	if issue == nil {
		r.logger.Debug("no linked issue for pull request",
			"partner_id", p.ID, "owner", owner, "repository", name, "number", prNumber)
		return nil, nil, nil
	}

	rule, err := r.rates.Get(ctx, p.ID)
	if err != nil {
		return nil, issue, &verify.VerificationError{Op: "partner rate lookup", Err: err}
	}

	amount := rule.Amount(issue.Tags)
	if !amount.IsPositive() {
		return nil, issue, nil
	}

	summary := &reward.PartnerSummary{
		PartnerID:   p.ID,
		TokenSymbol: p.TokenSymbol,
		Amount:      amount,
		Summary: fmt.Sprintf("%s %s from %s for closing issue #%d",
			amount.String(), p.TokenSymbol, p.Name, issue.Number),
	}
	return summary, issue, nil
}
