package repository

import (
	"context"

	"feed-resilience/internal/domain/entity"
)

// FeedCatalog is the feed catalog store owned by the host application.
// The resilience engine reads feeds through it and requests health and
// subscription changes; it never writes feed rows directly.
type FeedCatalog interface {
	GetFeedByID(ctx context.Context, id int64) (*entity.Feed, error)
	GetFeedCatalog(ctx context.Context, filter entity.CatalogFilter) ([]*entity.Feed, error)
	// InsertOrFindCatalogEntry returns the catalog feed for the candidate URL,
	// creating an unapproved entry when none exists.
	InsertOrFindCatalogEntry(ctx context.Context, candidate *entity.Candidate) (*entity.Feed, error)
	UpdateFeedHealth(ctx context.Context, feedID int64, patch entity.HealthPatch) error
	GetAllFeedSubscriptions(ctx context.Context) ([]entity.Subscription, error)
	// AutoSubscribeUsersToAlternative moves every active subscriber of oldFeedID
	// to newFeedID and returns the migrated user IDs.
	AutoSubscribeUsersToAlternative(ctx context.Context, oldFeedID, newFeedID int64) ([]string, error)
}
