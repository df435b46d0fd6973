package repository

import (
	"context"

	"feed-resilience/internal/domain/entity"
)

// DiscoveryRepository persists discovery attempts.
type DiscoveryRepository interface {
	// CountAttempts returns the persisted discovery attempt count for a feed.
	// It is independent of in-memory job retries.
	CountAttempts(ctx context.Context, feedID int64) (int, error)
	SaveAttempt(ctx context.Context, attempt *entity.DiscoveryAttempt) error
	MarkAccepted(ctx context.Context, attemptID int64, accepted bool, note string) error
	Get(ctx context.Context, attemptID int64) (*entity.DiscoveryAttempt, error)
	// ResetAttempts lifts the attempt cap for a feed.
	ResetAttempts(ctx context.Context, feedID int64) error
}
