package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/devarena-lab/project-devarena/internal/core/storage"
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting the repository
// count query serve the fast path outside and inside the transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func countRepositoryActivities(ctx context.Context, q querier, developerID, repositoryID, excludeID string) (int, error) {
	var count int
	// An empty excludeID binds as NULL: the uuid cast in the query rejects
	// the empty string.
	err := q.QueryRowContext(ctx, queryCountRepositoryActivities,
		developerID, repositoryID, nullable(excludeID), storage.EventTypeMergedPullRequest,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count repository activities: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanActivityRow scans a database row into an ActivityEvent.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
func scanActivityRow(row scanner) (storage.ActivityEvent, error) {
	var evt storage.ActivityEvent
	err := row.Scan(
		&evt.ID,
		&evt.DeveloperID,
		&evt.RepositoryID,
		&evt.PullRequestNumber,
		&evt.CommitHash,
		&evt.Title,
		&evt.URL,
		&evt.CreatedAt,
		&evt.CompletedAt,
		&evt.EventType,
		&evt.FirstContribution,
	)
	if err != nil {
		return storage.ActivityEvent{}, fmt.Errorf("failed to scan activity row: %w", err)
	}
	return evt, nil
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
