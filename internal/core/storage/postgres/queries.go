package postgres

// SQL queries for the reward ledger. The natural key of activity_events
// (developer_id, repository_id, pull_request_number, event_type) carries the
// idempotency contract: concurrent writers collide on the unique constraint
// and the loser is reported as a clean duplicate.

const (
	// queryInsertActivity appends the raw activity fact.
	// ON CONFLICT DO NOTHING returns no rows (sql.ErrNoRows) for duplicates.
	queryInsertActivity = `
		INSERT INTO activity_events (
			id, developer_id, repository_id, pull_request_number,
			commit_hash, title, url, created_at, completed_at,
			event_type, first_contribution
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (developer_id, repository_id, pull_request_number, event_type) DO NOTHING
		RETURNING id
	`

	queryActivityExists = `
		SELECT EXISTS (
			SELECT 1 FROM activity_events
			WHERE developer_id = $1
			  AND repository_id = $2
			  AND pull_request_number = $3
			  AND event_type = $4
		)
	`

	// queryTrailingWindow joins prior activities with their derived reward
	// state for the streak calculator. excludeID keeps the activity inserted
	// earlier in the same transaction out of its own window.
	queryTrailingWindow = `
		SELECT
			a.repository_id,
			a.completed_at,
			re.id IS NOT NULL AS rewarded,
			COALESCE(gr.tier, '') AS receipt_tier
		FROM activity_events a
		LEFT JOIN reward_events re ON re.activity_event_id = a.id
		LEFT JOIN gem_receipts gr ON gr.reward_event_id = re.id
		WHERE a.developer_id = $1
		  AND a.id <> $2
		  AND a.event_type = $3
		  AND a.completed_at > $4
		  AND a.completed_at <= $5
		ORDER BY a.completed_at ASC
	`

	// queryCountRepositoryActivities takes a nullable exclude id: the fast
	// path outside the transaction has no row to exclude and binds NULL,
	// which must not be compared against the uuid primary key directly.
	queryCountRepositoryActivities = `
		SELECT COUNT(*)
		FROM activity_events
		WHERE developer_id = $1
		  AND repository_id = $2
		  AND ($3::uuid IS NULL OR id <> $3::uuid)
		  AND event_type = $4
	`

	queryListRecentActivities = `
		SELECT
			id, developer_id, repository_id, pull_request_number,
			commit_hash, title, url, created_at, completed_at,
			event_type, first_contribution
		FROM activity_events
		WHERE developer_id = $1
		ORDER BY completed_at DESC
		LIMIT $2
	`

	queryGetDeveloperProfile = `
		SELECT developer_id, login, approval_status
		FROM developer_profiles
		WHERE developer_id = $1
	`

	queryGetSeason = `
		SELECT id, starts_at, ends_at
		FROM seasons
		WHERE id = $1
	`

	queryGetPartner = `
		SELECT id, name, token_symbol, active
		FROM partners
		WHERE id = $1
	`

	queryIsPartnerExcluded = `
		SELECT EXISTS (
			SELECT 1 FROM partner_exclusions
			WHERE partner_id = $1 AND developer_id = $2
		)
	`

	queryListStakeholders = `
		SELECT holder_id, developer_id, active
		FROM stake_records
		WHERE developer_id = $1 AND active
	`

	queryInsertRewardEvent = `
		INSERT INTO reward_events (
			id, developer_id, season_id, week, created_at,
			partner_id, activity_event_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	queryInsertGemReceipt = `
		INSERT INTO gem_receipts (id, reward_event_id, tier, value, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	queryInsertRecipientNotice = `
		INSERT INTO recipient_notices (id, receipt_id, recipient_id, recipient_role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	queryInsertLinkedIssueTags = `
		INSERT INTO linked_issue_tags (activity_event_id, issue_number, tags)
		VALUES ($1, $2, $3)
	`
)
