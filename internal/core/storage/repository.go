package storage

import (
	"context"
	"errors"
	"time"

	"github.com/devarena-lab/project-devarena/internal/core/reward"
	"github.com/shopspring/decimal"
)

// EventTypeMergedPullRequest is the only activity event type this engine
// records.
const EventTypeMergedPullRequest = "merged-pull-request"

// Recipient roles for fan-out notices.
const (
	RoleDeveloper   = "developer"
	RoleStakeholder = "stakeholder"
)

// ErrDuplicate is returned when an activity with the same
// (developer, repository, pull request number, event type) already exists.
var ErrDuplicate = errors.New("activity already recorded")

// ErrNotFound is returned for missing reference data. A missing developer
// profile is the "unlinked developer" terminal state, not a failure.
var ErrNotFound = errors.New("not found")

// ActivityEvent is the append-only raw contribution fact. Never updated,
// never deleted.
type ActivityEvent struct {
	ID                string
	DeveloperID       string
	RepositoryID      string
	PullRequestNumber int
	CommitHash        string
	Title             string
	URL               string
	CreatedAt         time.Time
	CompletedAt       time.Time
	EventType         string
	FirstContribution bool
}

// RewardEvent is the season-scoped derived fact: at most one per activity.
// CreatedAt mirrors the activity completion time, not the wall clock.
type RewardEvent struct {
	ID              string
	DeveloperID     string
	SeasonID        string
	Week            string
	CreatedAt       time.Time
	PartnerID       string // empty when no partner reward attached
	ActivityEventID string
}

// GemReceipt is the priced receipt: exactly one per reward event.
type GemReceipt struct {
	ID            string
	RewardEventID string
	Tier          reward.Tier
	Value         decimal.Decimal
	CreatedAt     time.Time
}

// RecipientNotice is one fan-out record per (recipient, role) for a receipt.
type RecipientNotice struct {
	ID            string
	ReceiptID     string
	RecipientID   string
	RecipientRole string
	CreatedAt     time.Time
}

// LinkedIssueTags stores the verified label set of the issue a pull request
// closes. Audit trail for partner rewards.
type LinkedIssueTags struct {
	ActivityEventID string
	IssueNumber     int
	Tags            []string
}

// DeveloperProfile is read-only reference data: the platform-side account a
// source-control identity is linked to.
type DeveloperProfile struct {
	DeveloperID    string
	Login          string
	ApprovalStatus string // "approved" unlocks rewards
}

// Season is read-only reference data.
type Season struct {
	ID       string
	StartsAt time.Time
	EndsAt   time.Time
}

// Partner is read-only reference data for sponsoring partners.
type Partner struct {
	ID          string
	Name        string
	TokenSymbol string
	Active      bool
}

// StakeRecord is read-only reference data: a wallet holder with a qualifying
// stake in a developer.
type StakeRecord struct {
	HolderID    string
	DeveloperID string
	Active      bool
}

// WindowActivity is one prior activity row joined with its derived reward
// state, as consumed by the streak calculator.
type WindowActivity struct {
	RepositoryID string
	CompletedAt  time.Time
	Rewarded     bool
	ReceiptTier  reward.Tier
}

// LedgerTx is the transactional surface of the ledger. Every method runs
// inside the unit of work opened by LedgerStore.WithinTx; reads are
// consistent with the writes of the same transaction.
type LedgerTx interface {
	// InsertActivity appends the raw activity. Returns ErrDuplicate when the
	// natural key is already recorded — the in-transaction dedup re-check.
	InsertActivity(ctx context.Context, evt ActivityEvent) error

	// TrailingWindow returns the developer's prior merged-PR activities with
	// completion time in (from, until], excluding the activity with
	// excludeID, joined with reward/receipt state.
	TrailingWindow(ctx context.Context, developerID, excludeID string, from, until time.Time) ([]WindowActivity, error)

	// CountRepositoryActivities counts the developer's recorded activities
	// in a repository, excluding excludeID. Zero means first-contribution
	// candidate.
	CountRepositoryActivities(ctx context.Context, developerID, repositoryID, excludeID string) (int, error)

	// GetDeveloperProfile returns ErrNotFound for unlinked developers.
	GetDeveloperProfile(ctx context.Context, developerID string) (DeveloperProfile, error)

	GetSeason(ctx context.Context, seasonID string) (Season, error)

	// GetPartner returns ErrNotFound when the partner id is unknown.
	GetPartner(ctx context.Context, partnerID string) (Partner, error)

	// IsPartnerExcluded reports whether the developer is on the partner's
	// exclusion list.
	IsPartnerExcluded(ctx context.Context, partnerID, developerID string) (bool, error)

	// ListStakeholders returns wallet holders with an active stake in the
	// developer.
	ListStakeholders(ctx context.Context, developerID string) ([]StakeRecord, error)

	InsertRewardEvent(ctx context.Context, evt RewardEvent) error
	InsertGemReceipt(ctx context.Context, receipt GemReceipt) error
	InsertRecipientNotice(ctx context.Context, notice RecipientNotice) error
	InsertLinkedIssueTags(ctx context.Context, tags LinkedIssueTags) error
}

// LedgerStore is the engine's view of the reward ledger.
type LedgerStore interface {
	// ActivityExists is the pre-flight natural-key check, read fresh from
	// the store. The authoritative re-check happens inside WithinTx via
	// InsertActivity.
	ActivityExists(ctx context.Context, developerID, repositoryID string, pullRequestNumber int) (bool, error)

	// CountRepositoryActivities is the first-contribution fast path outside
	// the transaction (pass excludeID="" there).
	CountRepositoryActivities(ctx context.Context, developerID, repositoryID, excludeID string) (int, error)

	// ListRecentActivities serves the developer activity read model.
	ListRecentActivities(ctx context.Context, developerID string, limit int) ([]ActivityEvent, error)

	// WithinTx runs fn inside one database transaction. fn returning an
	// error rolls everything back; otherwise the transaction commits.
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error
}
