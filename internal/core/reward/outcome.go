package reward

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Outcome is the terminal state of one engine invocation. The ledger writer
// walks these states explicitly instead of nesting early returns, so branch
// coverage is visible to the type system.
type Outcome int

const (
	// OutcomeAlreadyProcessed means the natural key was recorded before.
	// Idempotent no-op, not an error.
	OutcomeAlreadyProcessed Outcome = iota

	// OutcomeRecordedUnlinked means the raw activity was recorded but the
	// developer has no linked profile, so no reward flows.
	OutcomeRecordedUnlinked

	// OutcomeRecordedUnapproved means the raw activity was recorded but the
	// developer's approval status blocks rewards.
	OutcomeRecordedUnapproved

	// OutcomeRecordedOffSeason means the raw activity was recorded but its
	// completion time predates the active season start.
	OutcomeRecordedOffSeason

	// OutcomeRewarded means activity, reward event and receipt were all
	// committed.
	OutcomeRewarded
)

// String returns the wire label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeAlreadyProcessed:
		return "already-processed"
	case OutcomeRecordedUnlinked:
		return "recorded-unlinked"
	case OutcomeRecordedUnapproved:
		return "recorded-unapproved"
	case OutcomeRecordedOffSeason:
		return "recorded-off-season"
	case OutcomeRewarded:
		return "rewarded"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Recorded reports whether this invocation wrote a new activity row.
func (o Outcome) Recorded() bool {
	return o != OutcomeAlreadyProcessed
}

// PartnerSummary is the human-facing description of a secondary
// token-denominated partner reward.
type PartnerSummary struct {
	PartnerID   string
	TokenSymbol string
	Amount      decimal.Decimal
	Summary     string
}

// Result is the strict success/no-op result of one engine invocation.
type Result struct {
	Outcome Outcome

	// ActivityEventID is set whenever Outcome.Recorded() is true.
	ActivityEventID string

	// Tier and Value are set only for OutcomeRewarded.
	Tier  Tier
	Value decimal.Decimal

	// Partner is non-nil when a partner reward was attached.
	Partner *PartnerSummary
}
