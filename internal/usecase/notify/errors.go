// Package notify turns healing outcomes into messages: notification
// records for subscribers whose feed was switched or has a suggested
// replacement, and webhook alerts for operators.
package notify

import "errors"

var (
	// ErrInvalidFeed is returned when a switch or suggestion lacks a feed.
	ErrInvalidFeed = errors.New("notify: old and new feed are required")

	// ErrAlertDropped is returned when no worker slot freed up in time.
	ErrAlertDropped = errors.New("notify: alert dropped due to pool saturation")
)
