// Package jobqueue schedules discovery jobs for broken feeds: an in-memory
// priority queue with at most one job per feed, and a processor that drains
// it on a fixed interval with retry, downgrade and abandonment.
package jobqueue

import "errors"

var (
	// ErrAlreadyQueued indicates a job for the feed is already queued or
	// processing. The enqueue was a no-op.
	ErrAlreadyQueued = errors.New("jobqueue: feed already queued or processing")

	// ErrAttemptCapReached indicates the feed exhausted its persisted
	// discovery attempts and needs a manual reset.
	ErrAttemptCapReached = errors.New("jobqueue: discovery attempt cap reached")

	// ErrInvalidFeedID indicates a non-positive feed ID.
	ErrInvalidFeedID = errors.New("jobqueue: invalid feed id")
)
