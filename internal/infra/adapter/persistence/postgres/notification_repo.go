package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/repository"
)

// NotificationRepo stores user-visible notification records.
type NotificationRepo struct{ db DB }

func NewNotificationRepo(db DB) repository.NotificationRepository {
	return &NotificationRepo{db: db}
}

// CreateBatch inserts all notifications in a single statement.
func (repo *NotificationRepo) CreateBatch(ctx context.Context, notifications []*entity.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	defer observe("notification_batch", time.Now())

	const cols = 8
	placeholders := make([]string, 0, len(notifications))
	args := make([]any, 0, len(notifications)*cols)
	for i, n := range notifications {
		base := i * cols
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		createdAt := n.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		args = append(args, n.UserID, n.Kind, n.OldFeedID, n.NewFeedID, n.Title, n.Body, n.Actionable, createdAt)
	}

	query := `
INSERT INTO notifications (user_id, kind, old_feed_id, new_feed_id, title, body, actionable, created_at)
VALUES ` + strings.Join(placeholders, ",\n       ")
	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("CreateBatch: %w", err)
	}
	return nil
}
