package learning

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"feed-resilience/internal/domain/entity"
)

// memHealing is an in-memory HealingRepository.
type memHealing struct {
	profiles map[int64]*entity.HealingProfile
	attempts []*entity.HealingAttempt

	logErr     error
	updateErr  error
	listErr    error
	profileErr error
	patches    []entity.ProfilePatch
}

func newMemHealing() *memHealing {
	return &memHealing{profiles: make(map[int64]*entity.HealingProfile)}
}

func (m *memHealing) GetProfile(_ context.Context, feedID int64) (*entity.HealingProfile, error) {
	if m.profileErr != nil {
		return nil, m.profileErr
	}
	p, ok := m.profiles[feedID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memHealing) UpdateProfile(_ context.Context, feedID int64, patch entity.ProfilePatch) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.patches = append(m.patches, patch)
	p, ok := m.profiles[feedID]
	if !ok {
		p = &entity.HealingProfile{FeedID: feedID}
		m.profiles[feedID] = p
	}
	if patch.SuccessCount != nil {
		p.SuccessCount = *patch.SuccessCount
	}
	if patch.FailureCount != nil {
		p.FailureCount = *patch.FailureCount
	}
	if patch.AvgRecoveryTime != nil {
		p.AvgRecoveryTime = *patch.AvgRecoveryTime
	}
	if patch.PreferredTactic != nil {
		p.PreferredTactic = *patch.PreferredTactic
	}
	if patch.ClearPreferredTactic {
		p.PreferredTactic = ""
	}
	if patch.LastSuccessfulTactic != nil {
		p.LastSuccessfulTactic = *patch.LastSuccessfulTactic
	}
	if patch.UpdatedAt != nil {
		p.UpdatedAt = *patch.UpdatedAt
	}
	return nil
}

func (m *memHealing) ListProfiles(context.Context) ([]*entity.HealingProfile, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*entity.HealingProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FeedID < out[j].FeedID })
	return out, nil
}

func (m *memHealing) LogAttempt(_ context.Context, a *entity.HealingAttempt) error {
	if m.logErr != nil {
		return m.logErr
	}
	cp := *a
	cp.ID = int64(len(m.attempts) + 1)
	m.attempts = append(m.attempts, &cp)
	return nil
}

func (m *memHealing) RecentAttempts(_ context.Context, feedID int64, limit int) ([]*entity.HealingAttempt, error) {
	var out []*entity.HealingAttempt
	for i := len(m.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		if m.attempts[i].FeedID == feedID {
			out = append(out, m.attempts[i])
		}
	}
	return out, nil
}

func (m *memHealing) AttemptsSince(_ context.Context, since time.Time) ([]*entity.HealingAttempt, error) {
	var out []*entity.HealingAttempt
	for _, a := range m.attempts {
		if !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memHealing) FeedsByHealingStatus(context.Context, string) ([]int64, error) {
	return nil, nil
}

type fakeCatalog struct {
	feeds []*entity.Feed
	calls int
	err   error
}

func (c *fakeCatalog) GetFeedCatalog(context.Context, entity.CatalogFilter) ([]*entity.Feed, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.feeds, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLoop(h *memHealing, c *fakeCatalog) *Loop {
	l := NewLoop(h, c, DefaultConfig(), discardLogger())
	l.now = func() time.Time { return testNow }
	return l
}
