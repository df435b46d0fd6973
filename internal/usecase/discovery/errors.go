// Package discovery finds, scores and validates replacement candidates for a
// broken feed, then decides whether to adopt one, suggest one, or do nothing.
package discovery

import "errors"

// Sentinel errors for discovery use case operations.
var (
	// ErrNilFeed indicates that Run was called without a feed record.
	ErrNilFeed = errors.New("discovery: feed is nil")

	// ErrCatalogEntry indicates that the winning candidate could not be
	// registered in the feed catalog. The job is retried.
	ErrCatalogEntry = errors.New("discovery: ensure catalog entry failed")

	// ErrMigration indicates that moving subscribers to the adopted feed failed.
	ErrMigration = errors.New("discovery: subscriber migration failed")

	// ErrSubscriptions indicates that subscribers of the broken feed could not be listed.
	ErrSubscriptions = errors.New("discovery: list subscriptions failed")
)
