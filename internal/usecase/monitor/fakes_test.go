package monitor

import (
	"context"
	"io"
	"log/slog"
	"time"

	"feed-resilience/internal/domain/entity"
)

type fakeHealing struct {
	attempts []*entity.HealingAttempt
	byStatus map[string][]int64
	err      error
}

func (f *fakeHealing) GetProfile(context.Context, int64) (*entity.HealingProfile, error) {
	return nil, nil
}

func (f *fakeHealing) UpdateProfile(context.Context, int64, entity.ProfilePatch) error {
	return nil
}

func (f *fakeHealing) ListProfiles(context.Context) ([]*entity.HealingProfile, error) {
	return nil, nil
}

func (f *fakeHealing) LogAttempt(context.Context, *entity.HealingAttempt) error { return nil }

func (f *fakeHealing) RecentAttempts(context.Context, int64, int) ([]*entity.HealingAttempt, error) {
	return nil, nil
}

func (f *fakeHealing) AttemptsSince(_ context.Context, since time.Time) ([]*entity.HealingAttempt, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*entity.HealingAttempt
	for _, a := range f.attempts {
		if !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeHealing) FeedsByHealingStatus(_ context.Context, status string) ([]int64, error) {
	return f.byStatus[status], nil
}

type fakeCatalog struct {
	feeds []*entity.Feed
	err   error
}

func (c *fakeCatalog) GetFeedCatalog(_ context.Context, filter entity.CatalogFilter) ([]*entity.Feed, error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []*entity.Feed
	for _, f := range c.feeds {
		if filter.ActiveOnly && !f.IsActive {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

type fakeAlerter struct {
	reports []*Report
}

func (a *fakeAlerter) AlertHealthReport(_ context.Context, r *Report) error {
	a.reports = append(a.reports, r)
	return nil
}

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func newTestMonitor(h *fakeHealing, c *fakeCatalog, opts ...Option) *Monitor {
	m := New(h, c, DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	m.now = func() time.Time { return testNow }
	return m
}

func at(feedID int64, tactic string, success bool, ago time.Duration, msg string) *entity.HealingAttempt {
	return &entity.HealingAttempt{
		FeedID: feedID, Tactic: tactic, Success: success,
		ErrorMessage: msg, ResponseTime: 4 * time.Second, CreatedAt: testNow.Add(-ago),
	}
}
