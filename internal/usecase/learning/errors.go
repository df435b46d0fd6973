// Package learning keeps per-feed healing profiles up to date, promotes
// tactics that keep working, decays stale preferences and derives
// source-type level tactic patterns.
package learning

import "errors"

var (
	// ErrNilAttempt indicates RecordAttempt was called without an attempt.
	ErrNilAttempt = errors.New("learning: attempt is nil")

	// ErrMissingTactic indicates an attempt without a tactic name.
	ErrMissingTactic = errors.New("learning: attempt tactic is empty")
)
