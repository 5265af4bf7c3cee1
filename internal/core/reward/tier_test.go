package reward

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testRates(t *testing.T) RateTable {
	t.Helper()
	rates, err := NewRateTable(map[Tier]decimal.Decimal{
		TierFirstPR:             decimal.NewFromInt(10),
		TierThirdPRInStreak:     decimal.NewFromInt(5),
		TierRegularPR:           decimal.NewFromInt(3),
		TierRegularPRUnreviewed: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	return rates
}

func TestNewRateTable_RequiresAllTiers(t *testing.T) {
	_, err := NewRateTable(map[Tier]decimal.Decimal{
		TierFirstPR: decimal.NewFromInt(10),
	})
	require.Error(t, err)
	require.ErrorContains(t, err, "missing tier")
}

func TestAssess_FirstContributionWinsRegardlessOfStreak(t *testing.T) {
	rates := testRates(t)
	now := time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)

	// Two qualifying days already recorded: without the first-contribution
	// flag this would be a streak bonus day.
	window := []WindowEvent{
		{RepositoryID: "other", CompletedAt: now.Add(-48 * time.Hour), Rewarded: true, ReceiptTier: TierRegularPR},
		{RepositoryID: "other", CompletedAt: now.Add(-24 * time.Hour), Rewarded: true, ReceiptTier: TierRegularPR},
	}

	got := Assess(Input{
		RepositoryID:      "repo-1",
		CompletedAt:       now,
		FirstContribution: true,
		ReviewApproved:    true,
		Window:            window,
	}, rates)

	require.Equal(t, TierFirstPR, got.Tier)
	require.True(t, got.Value.Equal(decimal.NewFromInt(10)))
}

func TestAssess_FirstContributionWithEmptyWindow(t *testing.T) {
	rates := testRates(t)
	now := time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)

	got := Assess(Input{
		RepositoryID:      "repo-1",
		CompletedAt:       now,
		FirstContribution: true,
		Window:            nil,
	}, rates)

	require.Equal(t, TierFirstPR, got.Tier)
	require.True(t, got.IsFirstPrToday)
	require.True(t, got.IsFirstPrTodayFromThisRepo)
}

// The streak bonus lands when today is the 3rd, 6th or 9th distinct
// qualifying day since the last payout: two, five or eight prior rewarded
// days plus today.
func TestAssess_StreakBonusFiresOnThirdSixthNinthDay(t *testing.T) {
	rates := testRates(t)
	now := time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)

	for priorDays := 0; priorDays <= 8; priorDays++ {
		sizeWithToday := priorDays + 1
		t.Run(fmt.Sprintf("day_%d", sizeWithToday), func(t *testing.T) {
			// One rewarded event per distinct prior day.
			var window []WindowEvent
			for i := 1; i <= priorDays; i++ {
				window = append(window, WindowEvent{
					RepositoryID: "other",
					CompletedAt:  now.Add(-time.Duration(i) * 24 * time.Hour),
					Rewarded:     true,
					ReceiptTier:  TierRegularPR,
				})
			}

			got := Assess(Input{
				RepositoryID:   "repo-1",
				CompletedAt:    now,
				ReviewApproved: true,
				Window:         window,
			}, rates)

			wantBonus := sizeWithToday == 3 || sizeWithToday == 6 || sizeWithToday == 9
			if wantBonus {
				require.Equal(t, TierThirdPRInStreak, got.Tier, "expected bonus on day %d", sizeWithToday)
			} else {
				require.Equal(t, TierRegularPR, got.Tier, "unexpected bonus on day %d", sizeWithToday)
			}
		})
	}
}

func TestAssess_SecondPrTodayIsNeverStreakBonus(t *testing.T) {
	rates := testRates(t)
	now := time.Date(2026, 8, 21, 18, 0, 0, 0, time.UTC)

	// Two prior days plus one already-rewarded PR this morning: today is not
	// a new qualifying day, so no bonus even though the count lines up.
	window := []WindowEvent{
		{RepositoryID: "other", CompletedAt: now.Add(-48 * time.Hour), Rewarded: true, ReceiptTier: TierRegularPR},
		{RepositoryID: "other", CompletedAt: now.Add(-24 * time.Hour), Rewarded: true, ReceiptTier: TierRegularPR},
		{RepositoryID: "other", CompletedAt: now.Add(-6 * time.Hour), Rewarded: true, ReceiptTier: TierThirdPRInStreak},
	}

	got := Assess(Input{
		RepositoryID:   "repo-1",
		CompletedAt:    now,
		ReviewApproved: true,
		Window:         window,
	}, rates)

	require.False(t, got.IsFirstPrToday)
	require.Equal(t, TierRegularPR, got.Tier)
}

func TestAssess_AnchorResetsQualifyingDayCount(t *testing.T) {
	rates := testRates(t)
	now := time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)

	// Five rewarded days in the window, but the streak paid out three days
	// ago. Only the two days after the anchor count, so today is the 3rd
	// qualifying day of the new cycle.
	window := []WindowEvent{
		{RepositoryID: "other", CompletedAt: now.Add(-5 * 24 * time.Hour), Rewarded: true, ReceiptTier: TierRegularPR},
		{RepositoryID: "other", CompletedAt: now.Add(-4 * 24 * time.Hour), Rewarded: true, ReceiptTier: TierRegularPR},
		{RepositoryID: "other", CompletedAt: now.Add(-3 * 24 * time.Hour), Rewarded: true, ReceiptTier: TierThirdPRInStreak},
		{RepositoryID: "other", CompletedAt: now.Add(-2 * 24 * time.Hour), Rewarded: true, ReceiptTier: TierRegularPR},
		{RepositoryID: "other", CompletedAt: now.Add(-1 * 24 * time.Hour), Rewarded: true, ReceiptTier: TierRegularPR},
	}

	got := Assess(Input{
		RepositoryID:   "repo-1",
		CompletedAt:    now,
		ReviewApproved: true,
		Window:         window,
	}, rates)

	require.Equal(t, 2, got.QualifyingDays)
	require.Equal(t, TierThirdPRInStreak, got.Tier)
}

func TestAssess_UnrewardedDaysDoNotQualify(t *testing.T) {
	rates := testRates(t)
	now := time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)

	// Off-season activities sit in the window without reward events; they
	// must not advance the streak.
	window := []WindowEvent{
		{RepositoryID: "other", CompletedAt: now.Add(-48 * time.Hour), Rewarded: false},
		{RepositoryID: "other", CompletedAt: now.Add(-24 * time.Hour), Rewarded: true, ReceiptTier: TierRegularPR},
	}

	got := Assess(Input{
		RepositoryID:   "repo-1",
		CompletedAt:    now,
		ReviewApproved: true,
		Window:         window,
	}, rates)

	require.Equal(t, 1, got.QualifyingDays)
	require.Equal(t, TierRegularPR, got.Tier)
}

func TestAssess_GraceExceptionBillsUnreviewedAtRegularRate(t *testing.T) {
	rates := testRates(t)
	now := time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)

	// Unreviewed, first PR today overall and first today from this repo:
	// tier stays regular-pr-unreviewed but the value is the regular-pr rate.
	got := Assess(Input{
		RepositoryID:   "repo-1",
		CompletedAt:    now,
		ReviewApproved: false,
		Window: []WindowEvent{
			{RepositoryID: "other", CompletedAt: now.Add(-24 * time.Hour), Rewarded: true, ReceiptTier: TierRegularPR},
		},
	}, rates)

	require.Equal(t, TierRegularPRUnreviewed, got.Tier)
	require.True(t, got.IsFirstPrToday)
	require.True(t, got.IsFirstPrTodayFromThisRepo)
	require.True(t, got.Value.Equal(decimal.NewFromInt(3)), "grace exception should bill at regular-pr rate")
}

func TestAssess_NoGraceWhenRepoAlreadySeenToday(t *testing.T) {
	rates := testRates(t)
	now := time.Date(2026, 8, 21, 18, 0, 0, 0, time.UTC)

	got := Assess(Input{
		RepositoryID:   "repo-1",
		CompletedAt:    now,
		ReviewApproved: false,
		Window: []WindowEvent{
			{RepositoryID: "repo-1", CompletedAt: now.Add(-4 * time.Hour), Rewarded: true, ReceiptTier: TierRegularPR},
		},
	}, rates)

	require.Equal(t, TierRegularPRUnreviewed, got.Tier)
	require.False(t, got.IsFirstPrTodayFromThisRepo)
	require.True(t, got.Value.Equal(decimal.NewFromInt(1)), "no grace once the repo was seen today")
}

func TestWeekID(t *testing.T) {
	require.Equal(t, "2026-W34", WeekID(time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)))
	// ISO week of Jan 1 2027 belongs to 2026.
	require.Equal(t, "2026-W53", WeekID(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestOutcomeString(t *testing.T) {
	cases := map[Outcome]string{
		OutcomeAlreadyProcessed:   "already-processed",
		OutcomeRecordedUnlinked:   "recorded-unlinked",
		OutcomeRecordedUnapproved: "recorded-unapproved",
		OutcomeRecordedOffSeason:  "recorded-off-season",
		OutcomeRewarded:           "rewarded",
	}
	for outcome, want := range cases {
		require.Equal(t, want, outcome.String())
	}
	require.False(t, OutcomeAlreadyProcessed.Recorded())
	require.True(t, OutcomeRewarded.Recorded())
}
