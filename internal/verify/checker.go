package verify

import (
	"context"
	"log/slog"
	"time"
)

// FirstContributionChecker decides whether a merged pull request is the
// developer's first recorded contribution in a repository. Callers run the
// local fast path first; Check is the slow path that double-checks the host
// when the local ledger reports zero prior activity.
type FirstContributionChecker struct {
	source  ContributionSource
	timeout time.Duration
	logger  *slog.Logger
}

func NewFirstContributionChecker(source ContributionSource, timeout time.Duration, logger *slog.Logger) *FirstContributionChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &FirstContributionChecker{
		source:  source,
		timeout: timeout,
		logger:  logger.With("component", "[FirstContributionChecker]"),
	}
}

// Check returns whether the host agrees this is the developer's first merged
// pull request in owner/name. The current pull request is excluded, and so is
// every result when the developer login matches the repository owner, since
// the host's search then returns the owner's unrelated activity.
//
// A nil return with err set is a VerificationError; the caller chooses the
// fallback value, it is never assumed here.
func (c *FirstContributionChecker) Check(ctx context.Context, owner, name, login string, currentPRNumber int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if login != "" && login == owner {
		// Same-handle collision: the host search matches the owner's own
		// repository activity, not prior contributions.
		return true, nil
	}

	refs, err := c.source.RecentMergedPullRequests(ctx, owner, name, login)
	if err != nil {
		return false, &VerificationError{Op: "first-contribution lookup", Err: err}
	}

	for _, ref := range refs {
		if ref.Number == currentPRNumber {
			continue
		}
		c.logger.Debug("prior merged pull request found on host",
			"owner", owner, "repository", name, "login", login, "number", ref.Number)
		return false, nil
	}
	return true, nil
}
