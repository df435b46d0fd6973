package repository

import (
	"context"

	"feed-resilience/internal/domain/entity"
)

// NotificationRepository stores user-visible notification records.
type NotificationRepository interface {
	CreateBatch(ctx context.Context, notifications []*entity.Notification) error
}
