package v1

import (
	"fmt"
	"time"
)

// ReviewDecision is the review state of the pull request at merge time.
type ReviewDecision string

const (
	ReviewApproved    ReviewDecision = "approved"
	ReviewNotApproved ReviewDecision = "not-approved"
)

// Developer is the external identity of the contributor as reported by the
// source-control host.
type Developer struct {
	ID    string `json:"id"`
	Login string `json:"login"`
}

// Repository identifies the repository the pull request was merged into.
// PartnerID is set when the repository belongs to a sponsoring partner.
type Repository struct {
	ID            string `json:"id"`
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch,omitempty"`
	PartnerID     string `json:"partner_id,omitempty"`
}

// PullRequest carries the merged pull request metadata the engine evaluates.
// MergedAt is the completion time every season and streak decision keys on.
type PullRequest struct {
	Number         int            `json:"number"`
	Title          string         `json:"title"`
	URL            string         `json:"url"`
	CommitHash     string         `json:"commit_hash"`
	CreatedAt      time.Time      `json:"created_at"`
	MergedAt       time.Time      `json:"merged_at"`
	ReviewDecision ReviewDecision `json:"review_decision"`
}

// MergeEvent is one externally observed "pull request merged" fact, consumed
// from the activity ingestor. The natural key is
// (developer id, repository id, pull request number).
type MergeEvent struct {
	Developer   Developer   `json:"developer"`
	Repository  Repository  `json:"repository"`
	PullRequest PullRequest `json:"pull_request"`

	// SeasonID names the season this merge should be evaluated under.
	SeasonID string `json:"season_id"`
}

// Validate ensures the envelope carries everything the engine needs.
// A missing merge timestamp is the one hard rejection: without a completion
// time no streak, season or week decision is possible.
func (m *MergeEvent) Validate() error {
	if m.Developer.ID == "" {
		return fmt.Errorf("developer.id is required")
	}

	if m.Repository.ID == "" {
		return fmt.Errorf("repository.id is required")
	}

	if m.PullRequest.Number <= 0 {
		return fmt.Errorf("pull_request.number is required")
	}

	if m.PullRequest.MergedAt.IsZero() {
		return fmt.Errorf("pull_request.merged_at is required")
	}

	if m.SeasonID == "" {
		return fmt.Errorf("season_id is required")
	}

	return nil
}

// Approved reports whether the pull request review was approved.
func (m *MergeEvent) Approved() bool {
	return m.PullRequest.ReviewDecision == ReviewApproved
}
