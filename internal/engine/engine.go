// Package engine turns merged-pull-request events into ledger entries:
// one activity row always, plus a season-scoped reward event and gem receipt
// when the developer qualifies, all committed as a single unit of work.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	v1 "github.com/devarena-lab/project-devarena/internal/api/v1"
	"github.com/devarena-lab/project-devarena/internal/core/reward"
	"github.com/devarena-lab/project-devarena/internal/core/storage"
	"github.com/devarena-lab/project-devarena/internal/metrics"
	"github.com/devarena-lab/project-devarena/internal/notify"
	"github.com/devarena-lab/project-devarena/internal/verify"
)

// approvedStatus is the developer profile status that unlocks rewards.
const approvedStatus = "approved"

// ContributionVerifier is the external first-contribution double-check.
type ContributionVerifier interface {
	Check(ctx context.Context, owner, name, login string, currentPRNumber int) (bool, error)
}

// PartnerResolver prices the tagged issue a pull request closes into a
// partner token reward.
type PartnerResolver interface {
	Resolve(ctx context.Context, p storage.Partner, owner, name string, prNumber int) (*reward.PartnerSummary, *verify.LinkedIssue, error)
}

// Notifier fans out post-commit reward notifications, returning the number of
// failed deliveries.
type Notifier interface {
	Notify(ctx context.Context, msgs []notify.Message) int
}

// Engine processes merge events end to end.
type Engine struct {
	store      storage.LedgerStore
	rates      reward.RateTable
	windowDays int
	verifier   ContributionVerifier // nil disables the external double-check
	partners   PartnerResolver      // nil disables partner rewards
	notifier   Notifier             // nil disables notifications
	metrics    *metrics.Manager
	logger     *slog.Logger

	// now is injected so season and receipt timestamps are testable.
	now func() time.Time
}

type Options struct {
	Store      storage.LedgerStore
	Rates      reward.RateTable
	WindowDays int
	Verifier   ContributionVerifier
	Partners   PartnerResolver
	Notifier   Notifier
	Metrics    *metrics.Manager
	Logger     *slog.Logger
	Now        func() time.Time
}

func New(opts Options) *Engine {
	if opts.WindowDays <= 0 {
		opts.WindowDays = reward.DefaultWindowDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		store:      opts.Store,
		rates:      opts.Rates,
		windowDays: opts.WindowDays,
		verifier:   opts.Verifier,
		partners:   opts.Partners,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With("component", "[RewardEngine]"),
		now:        opts.Now,
	}
}

// Process evaluates one merge event and returns its terminal outcome.
// Reprocessing the same event is an idempotent no-op. A hard error means
// nothing was committed in this invocation.
func (e *Engine) Process(ctx context.Context, evt v1.MergeEvent) (reward.Result, error) {
	started := e.now()

	if err := evt.Validate(); err != nil {
		return reward.Result{}, err
	}

	dev := evt.Developer
	repo := evt.Repository
	pr := evt.PullRequest

	// Pre-flight: the natural-key check and the first-contribution
	// determination are independent reads and run in parallel. The dedup
	// check here is advisory; the unique constraint inside the transaction
	// is authoritative.
	var exists bool
	var firstContribution bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		exists, err = e.store.ActivityExists(gctx, dev.ID, repo.ID, pr.Number)
		return err
	})
	g.Go(func() error {
		var err error
		firstContribution, err = e.checkFirstContribution(gctx, evt)
		return err
	})
	if err := g.Wait(); err != nil {
		return reward.Result{}, err
	}
	if exists {
		result := reward.Result{Outcome: reward.OutcomeAlreadyProcessed}
		e.observe(result, started)
		return result, nil
	}

	activityID := uuid.New().String()
	result := reward.Result{ActivityEventID: activityID}
	var messages []notify.Message

	err := e.store.WithinTx(ctx, func(tx storage.LedgerTx) error {
		// The local ledger is authoritative under the transaction: any prior
		// activity in the repository overrides the optimistic external answer
		// before the flag is persisted.
		if firstContribution {
			count, err := tx.CountRepositoryActivities(ctx, dev.ID, repo.ID, activityID)
			if err != nil {
				return err
			}
			firstContribution = count == 0
		}

		if err := tx.InsertActivity(ctx, storage.ActivityEvent{
			ID:                activityID,
			DeveloperID:       dev.ID,
			RepositoryID:      repo.ID,
			PullRequestNumber: pr.Number,
			CommitHash:        pr.CommitHash,
			Title:             pr.Title,
			URL:               pr.URL,
			CreatedAt:         pr.CreatedAt,
			CompletedAt:       pr.MergedAt,
			EventType:         storage.EventTypeMergedPullRequest,
			FirstContribution: firstContribution,
		}); err != nil {
			return err
		}

		outcome, err := e.classify(ctx, tx, evt)
		if err != nil {
			return err
		}
		result.Outcome = outcome

		switch outcome {
		case reward.OutcomeRecordedUnlinked, reward.OutcomeRecordedUnapproved, reward.OutcomeRecordedOffSeason:
			// Raw activity committed, no reward flows.
			return nil
		case reward.OutcomeRewarded:
		default:
			return fmt.Errorf("unexpected ledger outcome %s", outcome)
		}

		window, err := tx.TrailingWindow(ctx, dev.ID, activityID,
			reward.WindowStart(pr.MergedAt, e.windowDays), pr.MergedAt)
		if err != nil {
			return err
		}

		assessment := reward.Assess(reward.Input{
			RepositoryID:      repo.ID,
			CompletedAt:       pr.MergedAt,
			FirstContribution: firstContribution,
			ReviewApproved:    evt.Approved(),
			Window:            toWindowEvents(window),
		}, e.rates)
		result.Tier = assessment.Tier
		result.Value = assessment.Value

		partnerID, partnerSummary, err := e.resolvePartner(ctx, tx, evt, activityID)
		if err != nil {
			return err
		}
		result.Partner = partnerSummary

		rewardEventID := uuid.New().String()
		if err := tx.InsertRewardEvent(ctx, storage.RewardEvent{
			ID:              rewardEventID,
			DeveloperID:     dev.ID,
			SeasonID:        evt.SeasonID,
			Week:            reward.WeekID(pr.MergedAt),
			CreatedAt:       pr.MergedAt,
			PartnerID:       partnerID,
			ActivityEventID: activityID,
		}); err != nil {
			return err
		}

		receiptID := uuid.New().String()
		if err := tx.InsertGemReceipt(ctx, storage.GemReceipt{
			ID:            receiptID,
			RewardEventID: rewardEventID,
			Tier:          assessment.Tier,
			Value:         assessment.Value,
			CreatedAt:     e.now().UTC(),
		}); err != nil {
			return err
		}

		messages, err = e.fanOutNotices(ctx, tx, evt, receiptID, assessment, partnerSummary)
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			// Lost the race to a concurrent writer; same idempotent no-op as
			// the pre-flight hit.
			result = reward.Result{Outcome: reward.OutcomeAlreadyProcessed}
			e.observe(result, started)
			return result, nil
		}
		return reward.Result{}, err
	}

	if result.Outcome == reward.OutcomeRewarded && e.notifier != nil {
		failed := e.notifier.Notify(ctx, messages)
		e.metrics.NotificationsFailed(failed)
	}

	e.observe(result, started)
	return result, nil
}

// checkFirstContribution runs the local fast path and, only when the local
// ledger reports zero prior activity, the external double-check. External
// failure falls back to optimistic true; a missed bonus is unrecoverable but
// an extra one is cheap.
func (e *Engine) checkFirstContribution(ctx context.Context, evt v1.MergeEvent) (bool, error) {
	count, err := e.store.CountRepositoryActivities(ctx, evt.Developer.ID, evt.Repository.ID, "")
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if e.verifier == nil {
		return true, nil
	}

	first, err := e.verifier.Check(ctx, evt.Repository.Owner, evt.Repository.Name, evt.Developer.Login, evt.PullRequest.Number)
	if err != nil {
		e.metrics.VerificationFallback()
		e.logger.Error("first-contribution verification failed, assuming first",
			"developer_id", evt.Developer.ID,
			"repository_id", evt.Repository.ID,
			"error", err)
		return true, nil
	}
	return first, nil
}

// classify walks the terminal-state ladder for a newly inserted activity.
func (e *Engine) classify(ctx context.Context, tx storage.LedgerTx, evt v1.MergeEvent) (reward.Outcome, error) {
	profile, err := tx.GetDeveloperProfile(ctx, evt.Developer.ID)
	if errors.Is(err, storage.ErrNotFound) {
		e.logger.Info("developer has no linked profile, recording without reward",
			"developer_id", evt.Developer.ID)
		return reward.OutcomeRecordedUnlinked, nil
	}
	if err != nil {
		return 0, err
	}

	if profile.ApprovalStatus != approvedStatus {
		e.logger.Info("developer not approved, recording without reward",
			"developer_id", evt.Developer.ID,
			"approval_status", profile.ApprovalStatus)
		return reward.OutcomeRecordedUnapproved, nil
	}

	season, err := tx.GetSeason(ctx, evt.SeasonID)
	if err != nil {
		// An unknown season id is a configuration fault, not a soft skip.
		return 0, fmt.Errorf("season %s: %w", evt.SeasonID, err)
	}

	mergedAt := evt.PullRequest.MergedAt
	if mergedAt.Before(season.StartsAt) || mergedAt.After(season.EndsAt) {
		e.logger.Info("merge outside active season, recording without reward",
			"developer_id", evt.Developer.ID,
			"season_id", season.ID,
			"merged_at", mergedAt)
		return reward.OutcomeRecordedOffSeason, nil
	}

	return reward.OutcomeRewarded, nil
}

// resolvePartner checks partner eligibility and prices the linked issue.
// Every failure past the eligibility reads is logged and degrades to "no
// partner reward"; it never aborts the ledger write.
func (e *Engine) resolvePartner(ctx context.Context, tx storage.LedgerTx, evt v1.MergeEvent, activityID string) (string, *reward.PartnerSummary, error) {
	if evt.Repository.PartnerID == "" || e.partners == nil {
		return "", nil, nil
	}

	p, err := tx.GetPartner(ctx, evt.Repository.PartnerID)
	if errors.Is(err, storage.ErrNotFound) {
		e.logger.Warn("repository references unknown partner",
			"partner_id", evt.Repository.PartnerID,
			"repository_id", evt.Repository.ID)
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	if !p.Active {
		return "", nil, nil
	}

	excluded, err := tx.IsPartnerExcluded(ctx, p.ID, evt.Developer.ID)
	if err != nil {
		return "", nil, err
	}
	if excluded {
		return "", nil, nil
	}

	summary, issue, err := e.partners.Resolve(ctx, p, evt.Repository.Owner, evt.Repository.Name, evt.PullRequest.Number)
	if err != nil {
		e.metrics.PartnerRewardFailure()
		e.logger.Error("partner reward resolution failed, skipping",
			"partner_id", p.ID,
			"developer_id", evt.Developer.ID,
			"error", err)
		return "", nil, nil
	}

	if issue != nil {
		if err := tx.InsertLinkedIssueTags(ctx, storage.LinkedIssueTags{
			ActivityEventID: activityID,
			IssueNumber:     issue.Number,
			Tags:            issue.Tags,
		}); err != nil {
			return "", nil, err
		}
	}
	if summary == nil {
		return "", nil, nil
	}
	return p.ID, summary, nil
}

// fanOutNotices writes one recipient notice per (recipient, role) and builds
// the matching notification messages: the acting developer plus every wallet
// holder with an active stake.
func (e *Engine) fanOutNotices(ctx context.Context, tx storage.LedgerTx, evt v1.MergeEvent, receiptID string, assessment reward.Assessment, partnerSummary *reward.PartnerSummary) ([]notify.Message, error) {
	partnerNote := ""
	if partnerSummary != nil {
		partnerNote = partnerSummary.Summary
	}

	type recipient struct {
		id, role string
	}
	recipients := []recipient{{evt.Developer.ID, storage.RoleDeveloper}}

	holders, err := tx.ListStakeholders(ctx, evt.Developer.ID)
	if err != nil {
		return nil, err
	}
	seen := map[recipient]struct{}{recipients[0]: {}}
	for _, holder := range holders {
		r := recipient{holder.HolderID, storage.RoleStakeholder}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		recipients = append(recipients, r)
	}

	createdAt := e.now().UTC()
	messages := make([]notify.Message, 0, len(recipients))
	for _, r := range recipients {
		if err := tx.InsertRecipientNotice(ctx, storage.RecipientNotice{
			ID:            uuid.New().String(),
			ReceiptID:     receiptID,
			RecipientID:   r.id,
			RecipientRole: r.role,
			CreatedAt:     createdAt,
		}); err != nil {
			return nil, err
		}
		messages = append(messages, notify.Message{
			RecipientID:   r.id,
			RecipientRole: r.role,
			DeveloperID:   evt.Developer.ID,
			RepositoryID:  evt.Repository.ID,
			Tier:          assessment.Tier,
			Value:         assessment.Value,
			PartnerNote:   partnerNote,
		})
	}
	return messages, nil
}

func (e *Engine) observe(result reward.Result, started time.Time) {
	e.metrics.MergeProcessed(result.Outcome.String())
	e.metrics.ObserveProcessingLatency(e.now().Sub(started).Seconds())
}

func toWindowEvents(rows []storage.WindowActivity) []reward.WindowEvent {
	events := make([]reward.WindowEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, reward.WindowEvent{
			RepositoryID: row.RepositoryID,
			CompletedAt:  row.CompletedAt,
			Rewarded:     row.Rewarded,
			ReceiptTier:  row.ReceiptTier,
		})
	}
	return events
}
