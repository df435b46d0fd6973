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

// DiscoveryRepo stores discovery attempts. Rows written by one discovery
// run share processed_at, so the attempt count is the number of distinct
// processed_at values that still count toward the cap.
type DiscoveryRepo struct{ db DB }

// NewDiscoveryRepo returns a DiscoveryRepository backed by db.
func NewDiscoveryRepo(db DB) repository.DiscoveryRepository {
	return &DiscoveryRepo{db: db}
}

// CountAttempts returns the number of counted discovery runs for feedID.
func (repo *DiscoveryRepo) CountAttempts(ctx context.Context, feedID int64) (int, error) {
	defer observe("discovery_count", time.Now())
	const query = `
SELECT COUNT(DISTINCT processed_at)
FROM discovery_attempts
WHERE original_feed_id = $1 AND counted = TRUE`
	var n int
	if err := repo.db.QueryRowContext(ctx, query, feedID).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountAttempts: %w", err)
	}
	return n, nil
}

// SaveAttempt inserts a and sets its ID.
func (repo *DiscoveryRepo) SaveAttempt(ctx context.Context, a *entity.DiscoveryAttempt) error {
	defer observe("discovery_save", time.Now())
	meta, err := marshalMetadata(a.Metadata)
	if err != nil {
		return fmt.Errorf("SaveAttempt: %w", err)
	}
	const query = `
INSERT INTO discovery_attempts (
    original_feed_id, candidate_feed_id, candidate_url, strategy, confidence,
    auto_subscribed, metadata, validated_at, processed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`
	err = repo.db.QueryRowContext(ctx, query,
		a.OriginalFeedID, nullable(a.CandidateFeedID), a.CandidateURL, a.Strategy, a.Confidence,
		a.AutoSubscribed, meta, nullable(a.ValidatedAt), a.ProcessedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("SaveAttempt: %w", err)
	}
	return nil
}

// MarkAccepted records the user verdict on an attempt. It returns entity.ErrNotFound for an unknown id.
func (repo *DiscoveryRepo) MarkAccepted(ctx context.Context, attemptID int64, accepted bool, note string) error {
	defer observe("discovery_mark", time.Now())
	const query = `UPDATE discovery_attempts SET accepted = $1, user_note = $2 WHERE id = $3`
	res, err := repo.db.ExecContext(ctx, query, accepted, note, attemptID)
	if err != nil {
		return fmt.Errorf("MarkAccepted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("MarkAccepted: %w", entity.ErrNotFound)
	}
	return nil
}

// Get returns the attempt with attemptID, or nil when it does not exist.
func (repo *DiscoveryRepo) Get(ctx context.Context, attemptID int64) (*entity.DiscoveryAttempt, error) {
	defer observe("discovery_get", time.Now())
	const query = `
SELECT id, original_feed_id, candidate_feed_id, candidate_url, strategy, confidence,
       auto_subscribed, accepted, user_note, metadata, validated_at, processed_at
FROM discovery_attempts
WHERE id = $1`
	var a entity.DiscoveryAttempt
	var meta []byte
	err := repo.db.QueryRowContext(ctx, query, attemptID).Scan(
		&a.ID, &a.OriginalFeedID, &a.CandidateFeedID, &a.CandidateURL, &a.Strategy, &a.Confidence,
		&a.AutoSubscribed, &a.Accepted, &a.UserNote, &meta, &a.ValidatedAt, &a.ProcessedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	if a.Metadata, err = unmarshalMetadata(meta); err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &a, nil
}

// ResetAttempts keeps the rows for history and stops counting them.
func (repo *DiscoveryRepo) ResetAttempts(ctx context.Context, feedID int64) error {
	defer observe("discovery_reset", time.Now())
	const query = `UPDATE discovery_attempts SET counted = FALSE WHERE original_feed_id = $1 AND counted = TRUE`
	if _, err := repo.db.ExecContext(ctx, query, feedID); err != nil {
		return fmt.Errorf("ResetAttempts: %w", err)
	}
	return nil
}
