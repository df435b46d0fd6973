// Package notifier delivers operator alerts to chat webhooks.
//
// Each webhook is rate limited, retried with backoff and guarded by its own
// circuit breaker, so a dead webhook never stalls the healing pipeline.
package notifier

import (
	"context"

	"feed-resilience/internal/domain/entity"
)

// Notifier sends an alert to one destination.
type Notifier interface {
	Name() string
	IsEnabled() bool
	NotifyAlert(ctx context.Context, alert *entity.Alert) error
}
