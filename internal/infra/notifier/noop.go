package notifier

import (
	"context"

	"feed-resilience/internal/domain/entity"
)

// NoOpNotifier is listed when no webhook is configured, so channel status
// still shows that alerts go nowhere.
type NoOpNotifier struct{}

func NewNoOpNotifier() *NoOpNotifier { return &NoOpNotifier{} }

func (*NoOpNotifier) Name() string                                     { return "noop" }
func (*NoOpNotifier) IsEnabled() bool                                  { return false }
func (*NoOpNotifier) NotifyAlert(context.Context, *entity.Alert) error { return nil }
