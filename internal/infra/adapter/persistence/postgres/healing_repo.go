package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/repository"
)

// ExhaustedAttempts is the number of healing attempts after which a feed
// whose latest attempt failed counts as failed rather than healing.
const ExhaustedAttempts = 3

// HealingRepo stores healing profiles and the attempt log.
type HealingRepo struct{ db DB }

func NewHealingRepo(db DB) repository.HealingRepository {
	return &HealingRepo{db: db}
}

const profileColumns = `feed_id, success_count, failure_count, avg_recovery_ms,
       preferred_tactic, last_successful_tactic, updated_at`

func scanProfile(r rowScanner) (*entity.HealingProfile, error) {
	var p entity.HealingProfile
	var avgMS int64
	if err := r.Scan(&p.FeedID, &p.SuccessCount, &p.FailureCount, &avgMS,
		&p.PreferredTactic, &p.LastSuccessfulTactic, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.AvgRecoveryTime = time.Duration(avgMS) * time.Millisecond
	return &p, nil
}

func (repo *HealingRepo) GetProfile(ctx context.Context, feedID int64) (*entity.HealingProfile, error) {
	defer observe("profile_get", time.Now())
	query := `SELECT ` + profileColumns + `
FROM healing_profiles
WHERE feed_id = $1`
	p, err := scanProfile(repo.db.QueryRowContext(ctx, query, feedID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetProfile: %w", err)
	}
	return p, nil
}

// UpdateProfile upserts a profile. Columns whose patch field is nil keep
// their stored value; a new row starts from the column defaults.
func (repo *HealingRepo) UpdateProfile(ctx context.Context, feedID int64, patch entity.ProfilePatch) error {
	defer observe("profile_update", time.Now())
	var avgMS any
	if patch.AvgRecoveryTime != nil {
		avgMS = patch.AvgRecoveryTime.Milliseconds()
	}
	preferred := nullable(patch.PreferredTactic)
	if patch.ClearPreferredTactic {
		preferred = ""
	}

	const query = `
INSERT INTO healing_profiles (
    feed_id, success_count, failure_count, avg_recovery_ms,
    preferred_tactic, last_successful_tactic, updated_at)
VALUES ($1, COALESCE($2, 0), COALESCE($3, 0), COALESCE($4, 0),
        COALESCE($5, ''), COALESCE($6, ''), COALESCE($7, now()))
ON CONFLICT (feed_id) DO UPDATE SET
       success_count          = COALESCE($2, healing_profiles.success_count),
       failure_count          = COALESCE($3, healing_profiles.failure_count),
       avg_recovery_ms        = COALESCE($4, healing_profiles.avg_recovery_ms),
       preferred_tactic       = COALESCE($5, healing_profiles.preferred_tactic),
       last_successful_tactic = COALESCE($6, healing_profiles.last_successful_tactic),
       updated_at             = COALESCE($7, healing_profiles.updated_at)`
	_, err := repo.db.ExecContext(ctx, query,
		feedID,
		nullable(patch.SuccessCount),
		nullable(patch.FailureCount),
		avgMS,
		preferred,
		nullable(patch.LastSuccessfulTactic),
		nullable(patch.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("UpdateProfile: %w", err)
	}
	return nil
}

func (repo *HealingRepo) ListProfiles(ctx context.Context) ([]*entity.HealingProfile, error) {
	defer observe("profile_list", time.Now())
	query := `SELECT ` + profileColumns + `
FROM healing_profiles
ORDER BY feed_id ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListProfiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var profiles []*entity.HealingProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("ListProfiles: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (repo *HealingRepo) LogAttempt(ctx context.Context, a *entity.HealingAttempt) error {
	defer observe("attempt_log", time.Now())
	meta, err := marshalMetadata(a.Metadata)
	if err != nil {
		return fmt.Errorf("LogAttempt: %w", err)
	}
	const query = `
INSERT INTO healing_attempts (feed_id, tactic, success, error_message, response_ms, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`
	err = repo.db.QueryRowContext(ctx, query,
		a.FeedID, a.Tactic, a.Success, a.ErrorMessage, a.ResponseTime.Milliseconds(), meta, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("LogAttempt: %w", err)
	}
	return nil
}

const attemptColumns = `id, feed_id, tactic, success, error_message, response_ms, metadata, created_at`

func scanAttempts(rows *sql.Rows) ([]*entity.HealingAttempt, error) {
	var out []*entity.HealingAttempt
	for rows.Next() {
		var a entity.HealingAttempt
		var ms int64
		var meta []byte
		if err := rows.Scan(&a.ID, &a.FeedID, &a.Tactic, &a.Success, &a.ErrorMessage, &ms, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.ResponseTime = time.Duration(ms) * time.Millisecond
		m, err := unmarshalMetadata(meta)
		if err != nil {
			return nil, err
		}
		a.Metadata = m
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (repo *HealingRepo) RecentAttempts(ctx context.Context, feedID int64, limit int) ([]*entity.HealingAttempt, error) {
	defer observe("attempt_recent", time.Now())
	query := `SELECT ` + attemptColumns + `
FROM healing_attempts
WHERE feed_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`
	rows, err := repo.db.QueryContext(ctx, query, feedID, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentAttempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	attempts, err := scanAttempts(rows)
	if err != nil {
		return nil, fmt.Errorf("RecentAttempts: %w", err)
	}
	return attempts, nil
}

func (repo *HealingRepo) AttemptsSince(ctx context.Context, since time.Time) ([]*entity.HealingAttempt, error) {
	defer observe("attempt_since", time.Now())
	query := `SELECT ` + attemptColumns + `
FROM healing_attempts
WHERE created_at >= $1
ORDER BY created_at ASC, id ASC`
	rows, err := repo.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("AttemptsSince: %w", err)
	}
	defer func() { _ = rows.Close() }()

	attempts, err := scanAttempts(rows)
	if err != nil {
		return nil, fmt.Errorf("AttemptsSince: %w", err)
	}
	return attempts, nil
}

// healingStatusConditions decide a feed's bucket from its latest attempt
// and its attempt total.
var healingStatusConditions = map[string]string{
	entity.HealingStatusHealed:  "l.success",
	entity.HealingStatusHealing: "NOT l.success AND t.attempts < $1",
	entity.HealingStatusFailed:  "NOT l.success AND t.attempts >= $1",
}

func (repo *HealingRepo) FeedsByHealingStatus(ctx context.Context, status string) ([]int64, error) {
	defer observe("attempt_status", time.Now())
	cond, ok := healingStatusConditions[status]
	if !ok {
		return nil, fmt.Errorf("FeedsByHealingStatus: unknown status %q: %w", status, entity.ErrInvalidInput)
	}
	query := `
WITH latest AS (
    SELECT DISTINCT ON (feed_id) feed_id, success
    FROM healing_attempts
    ORDER BY feed_id, created_at DESC, id DESC
), totals AS (
    SELECT feed_id, COUNT(*) AS attempts
    FROM healing_attempts
    GROUP BY feed_id
)
SELECT l.feed_id
FROM latest l
JOIN totals t ON t.feed_id = l.feed_id
WHERE ` + cond + `
ORDER BY l.feed_id ASC`

	var args []any
	if status != entity.HealingStatusHealed {
		args = append(args, ExhaustedAttempts)
	}
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("FeedsByHealingStatus: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("FeedsByHealingStatus: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
