// Package healing is the entry point of the resilience engine. It records
// fetch outcomes reported by the host crawler, schedules discovery jobs for
// feeds that keep failing and runs those jobs through discovery and the
// learning loop.
package healing

import "errors"

var (
	// ErrNilFeed indicates a nil feed record.
	ErrNilFeed = errors.New("healing: feed is nil")

	// ErrAttemptNotFound indicates an unknown discovery attempt ID.
	ErrAttemptNotFound = errors.New("healing: discovery attempt not found")
)
