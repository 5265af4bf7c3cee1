package reward

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Tier is the category assigned to a single contribution. It determines the
// gem value of the receipt.
type Tier string

const (
	// TierFirstPR marks the developer's first-ever merged pull request in a
	// repository. Takes priority over every other tier.
	TierFirstPR Tier = "first-pr"

	// TierThirdPRInStreak is the streak bonus: the 3rd, 6th, 9th... distinct
	// qualifying day since the last streak payout inside the trailing window.
	TierThirdPRInStreak Tier = "third-pr-in-streak"

	// TierRegularPR is an approved merged pull request.
	TierRegularPR Tier = "regular-pr"

	// TierRegularPRUnreviewed is a merged pull request without an approved
	// review.
	TierRegularPRUnreviewed Tier = "regular-pr-unreviewed"
)

// streakCycle is the distinct-day cadence of the streak bonus.
const streakCycle = 3

// DefaultWindowDays is the trailing lookback used for streak computation.
const DefaultWindowDays = 7

// RateTable maps each tier to its configured gem value. Injected rather than
// package-level so tests and seasons can vary rates without global mutation.
type RateTable struct {
	values map[Tier]decimal.Decimal
}

// NewRateTable builds a rate table. All four tiers must be present.
func NewRateTable(values map[Tier]decimal.Decimal) (RateTable, error) {
	for _, tier := range []Tier{TierFirstPR, TierThirdPRInStreak, TierRegularPR, TierRegularPRUnreviewed} {
		if _, ok := values[tier]; !ok {
			return RateTable{}, fmt.Errorf("rate table missing tier %q", tier)
		}
	}
	copied := make(map[Tier]decimal.Decimal, len(values))
	for tier, v := range values {
		copied[tier] = v
	}
	return RateTable{values: copied}, nil
}

// ValueFor resolves the gem value for a tier.
//
// One deliberate exception: an unreviewed PR is billed at the regular-pr rate
// when it is the developer's first PR of the day from that repository, so a
// same-day first contribution in a repo is never penalized for lacking review.
func (r RateTable) ValueFor(tier Tier, firstFromRepoToday bool) decimal.Decimal {
	if tier == TierRegularPRUnreviewed && firstFromRepoToday {
		return r.values[TierRegularPR]
	}
	return r.values[tier]
}

// WindowEvent is one prior merged-PR activity inside the trailing window,
// joined with its derived reward state.
type WindowEvent struct {
	RepositoryID string
	CompletedAt  time.Time

	// Rewarded reports whether a reward event was recorded for the activity.
	// Off-season and unlinked activities are in the window but not rewarded.
	Rewarded bool

	// ReceiptTier is the tier of the activity's receipt; empty when the
	// activity carries no receipt.
	ReceiptTier Tier
}

// Input is everything the calculator needs about the new event.
type Input struct {
	RepositoryID      string
	CompletedAt       time.Time
	FirstContribution bool
	ReviewApproved    bool

	// Window holds the developer's prior merged-PR activities whose
	// completion time falls inside the trailing window, any order.
	Window []WindowEvent
}

// Assessment is the calculator's decision for one new event.
type Assessment struct {
	Tier  Tier
	Value decimal.Decimal

	IsFirstPrToday             bool
	IsFirstPrTodayFromThisRepo bool

	// QualifyingDays is the number of distinct rewarded days since the
	// streak anchor, excluding today.
	QualifyingDays int
}

// Assess assigns the tier and gem value for a new merged pull request.
//
// Streak rule: find the most recent prior receipt with the streak tier (the
// anchor); count the distinct calendar days (UTC) carrying a recorded reward
// after the anchor date; if today is a new qualifying day and that count is
// congruent to 2 mod 3, today is the 3rd/6th/9th qualifying day and the
// streak bonus fires. The anchor lookup only scans the window, so a bonus
// older than the window restarts counting instead of suppressing the next one.
func Assess(in Input, rates RateTable) Assessment {
	today := dayUTC(in.CompletedAt)

	anchorDay := ""
	var anchorAt time.Time
	for _, evt := range in.Window {
		if evt.ReceiptTier != TierThirdPRInStreak {
			continue
		}
		if anchorDay == "" || evt.CompletedAt.After(anchorAt) {
			anchorAt = evt.CompletedAt
			anchorDay = dayUTC(evt.CompletedAt)
		}
	}

	qualifyingDays := make(map[string]struct{})
	firstToday := true
	firstTodayFromRepo := true
	for _, evt := range in.Window {
		day := dayUTC(evt.CompletedAt)
		if evt.Rewarded && (anchorDay == "" || day > anchorDay) {
			qualifyingDays[day] = struct{}{}
			if day == today {
				firstToday = false
			}
		}
		if day == today && evt.RepositoryID == in.RepositoryID {
			firstTodayFromRepo = false
		}
	}
	var tier Tier
	switch {
	case in.FirstContribution:
		tier = TierFirstPR
	case firstToday && len(qualifyingDays)%streakCycle == streakCycle-1:
		tier = TierThirdPRInStreak
	case in.ReviewApproved:
		tier = TierRegularPR
	default:
		tier = TierRegularPRUnreviewed
	}

	return Assessment{
		Tier:                       tier,
		Value:                      rates.ValueFor(tier, firstTodayFromRepo),
		IsFirstPrToday:             firstToday,
		IsFirstPrTodayFromThisRepo: firstTodayFromRepo,
		QualifyingDays:             len(qualifyingDays),
	}
}

// WindowStart returns the exclusive lower bound of the trailing window for an
// event completed at t; the window covers completion times in (start, t].
func WindowStart(t time.Time, days int) time.Time {
	if days <= 0 {
		days = DefaultWindowDays
	}
	return t.Add(-time.Duration(days) * 24 * time.Hour)
}

// dayUTC collapses a timestamp to its UTC calendar date. The string form
// compares correctly with < and >.
func dayUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
