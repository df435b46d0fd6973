package repository

import (
	"context"
	"time"

	"feed-resilience/internal/domain/entity"
)

// HealingRepository persists healing profiles and the append-only attempt log.
type HealingRepository interface {
	// GetProfile returns nil, nil when the feed has no profile yet.
	GetProfile(ctx context.Context, feedID int64) (*entity.HealingProfile, error)
	// UpdateProfile upserts the profile, applying only the non-nil patch fields.
	UpdateProfile(ctx context.Context, feedID int64, patch entity.ProfilePatch) error
	ListProfiles(ctx context.Context) ([]*entity.HealingProfile, error)

	LogAttempt(ctx context.Context, attempt *entity.HealingAttempt) error
	// RecentAttempts returns up to limit attempts for a feed, newest first.
	RecentAttempts(ctx context.Context, feedID int64, limit int) ([]*entity.HealingAttempt, error)
	// AttemptsSince returns every attempt created at or after since, oldest first.
	AttemptsSince(ctx context.Context, since time.Time) ([]*entity.HealingAttempt, error)
	// FeedsByHealingStatus returns the IDs of feeds whose latest attempt puts
	// them in the given entity.HealingStatus* bucket.
	FeedsByHealingStatus(ctx context.Context, status string) ([]int64, error)
}
