package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/repository"
)

// Recorder stores one notification per affected subscriber. Delivery to
// the user happens elsewhere.
type Recorder struct {
	repo   repository.NotificationRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewRecorder(repo repository.NotificationRepository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, logger: logger, now: time.Now}
}

// NotifyUsersOfSwitch records that userIDs were moved from oldFeed to newFeed.
func (r *Recorder) NotifyUsersOfSwitch(ctx context.Context, userIDs []string, oldFeed, newFeed *entity.Feed) error {
	if oldFeed == nil || newFeed == nil {
		return ErrInvalidFeed
	}
	return r.record(ctx, userIDs, oldFeed, newFeed, entity.NotificationFeedSwitched,
		fmt.Sprintf("%s has moved", displayName(oldFeed)),
		fmt.Sprintf("%s stopped responding, so your subscription now follows %s (%s).",
			displayName(oldFeed), displayName(newFeed), newFeed.URL),
		false)
}

// NotifyUsersOfSuggestion records that newFeed may replace oldFeed. The
// user decides, so the notification is actionable.
func (r *Recorder) NotifyUsersOfSuggestion(ctx context.Context, userIDs []string, oldFeed, newFeed *entity.Feed) error {
	if oldFeed == nil || newFeed == nil {
		return ErrInvalidFeed
	}
	return r.record(ctx, userIDs, oldFeed, newFeed, entity.NotificationAlternativeFound,
		fmt.Sprintf("Possible replacement for %s", displayName(oldFeed)),
		fmt.Sprintf("%s has been failing. %s (%s) looks like a replacement. Switch to it?",
			displayName(oldFeed), displayName(newFeed), newFeed.URL),
		true)
}

func (r *Recorder) record(ctx context.Context, userIDs []string, oldFeed, newFeed *entity.Feed,
	kind, title, body string, actionable bool) error {
	if len(userIDs) == 0 {
		return nil
	}
	now := r.now()
	batch := make([]*entity.Notification, 0, len(userIDs))
	for _, id := range userIDs {
		batch = append(batch, &entity.Notification{
			UserID:     id,
			Kind:       kind,
			OldFeedID:  oldFeed.ID,
			NewFeedID:  newFeed.ID,
			Title:      title,
			Body:       body,
			Actionable: actionable,
			CreatedAt:  now,
		})
	}
	if err := r.repo.CreateBatch(ctx, batch); err != nil {
		return fmt.Errorf("record %s notifications: %w", kind, err)
	}
	RecordUserNotifications(kind, len(batch))
	r.logger.Info("user notifications recorded",
		slog.String("kind", kind),
		slog.Int64("old_feed_id", oldFeed.ID),
		slog.Int64("new_feed_id", newFeed.ID),
		slog.Int("users", len(batch)))
	return nil
}

func displayName(f *entity.Feed) string {
	if f.Title != "" {
		return f.Title
	}
	return f.URL
}
