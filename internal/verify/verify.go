// Package verify holds the boundaries to the external source-control host:
// the first-contribution double-check and the linked-issue lookup. Both are
// unreliable by nature, so every failure is surfaced as a VerificationError
// and the caller explicitly chooses the fallback value.
package verify

import (
	"context"
	"fmt"
)

// VerificationError wraps a failure from an external verification call.
// Callers must handle it explicitly; it never implies a fallback by itself.
type VerificationError struct {
	Op  string
	Err error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification %s: %v", e.Op, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// PullRequestRef identifies one merged pull request as reported by the host.
type PullRequestRef struct {
	Number      int
	AuthorLogin string
}

// ContributionSource lists a developer's recently merged pull requests in a
// repository, straight from the source-control host.
type ContributionSource interface {
	RecentMergedPullRequests(ctx context.Context, owner, name, login string) ([]PullRequestRef, error)
}

// LinkedIssue is an issue a pull request was independently verified to
// reference, with its label set.
type LinkedIssue struct {
	Number int
	Tags   []string
}

// IssueLinker resolves the tagged issue a pull request closes. The reference
// extraction and secondary existence check both live behind this boundary.
type IssueLinker interface {
	LinkedIssue(ctx context.Context, owner, name string, prNumber int) (*LinkedIssue, error)
}
