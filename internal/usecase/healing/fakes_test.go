package healing

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/usecase/discovery"
	"feed-resilience/internal/usecase/learning"
)

type fakeCatalog struct {
	mu       sync.Mutex
	feeds    map[int64]*entity.Feed
	subs     []entity.Subscription
	patches  map[int64]entity.HealthPatch
	getErr   error
	patchErr error
	subsErr  error
}

func newFakeCatalog(feeds ...*entity.Feed) *fakeCatalog {
	c := &fakeCatalog{feeds: make(map[int64]*entity.Feed), patches: make(map[int64]entity.HealthPatch)}
	for _, f := range feeds {
		c.feeds[f.ID] = f
	}
	return c
}

func (c *fakeCatalog) GetFeedByID(_ context.Context, id int64) (*entity.Feed, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.feeds[id]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

func (c *fakeCatalog) GetFeedCatalog(_ context.Context, filter entity.CatalogFilter) ([]*entity.Feed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*entity.Feed
	for id := int64(1); id <= 1000; id++ {
		f, ok := c.feeds[id]
		if !ok || (filter.ActiveOnly && !f.IsActive) {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	return out, nil
}

func (c *fakeCatalog) InsertOrFindCatalogEntry(context.Context, *entity.Candidate) (*entity.Feed, error) {
	return nil, nil
}

func (c *fakeCatalog) UpdateFeedHealth(_ context.Context, feedID int64, patch entity.HealthPatch) error {
	if c.patchErr != nil {
		return c.patchErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patches[feedID] = patch
	return nil
}

func (c *fakeCatalog) GetAllFeedSubscriptions(context.Context) ([]entity.Subscription, error) {
	if c.subsErr != nil {
		return nil, c.subsErr
	}
	return c.subs, nil
}

func (c *fakeCatalog) AutoSubscribeUsersToAlternative(context.Context, int64, int64) ([]string, error) {
	return nil, nil
}

type fakeDiscoveryRepo struct {
	counts   map[int64]int
	attempts map[int64]*entity.DiscoveryAttempt
	marked   map[int64]bool
	resets   []int64
}

func newFakeDiscoveryRepo() *fakeDiscoveryRepo {
	return &fakeDiscoveryRepo{
		counts:   make(map[int64]int),
		attempts: make(map[int64]*entity.DiscoveryAttempt),
		marked:   make(map[int64]bool),
	}
}

func (r *fakeDiscoveryRepo) CountAttempts(_ context.Context, feedID int64) (int, error) {
	return r.counts[feedID], nil
}

func (r *fakeDiscoveryRepo) SaveAttempt(context.Context, *entity.DiscoveryAttempt) error {
	return nil
}

func (r *fakeDiscoveryRepo) MarkAccepted(_ context.Context, id int64, accepted bool, _ string) error {
	r.marked[id] = accepted
	return nil
}

func (r *fakeDiscoveryRepo) Get(_ context.Context, id int64) (*entity.DiscoveryAttempt, error) {
	return r.attempts[id], nil
}

func (r *fakeDiscoveryRepo) ResetAttempts(_ context.Context, feedID int64) error {
	r.resets = append(r.resets, feedID)
	delete(r.counts, feedID)
	return nil
}

type fakeHealingRepo struct {
	recent map[int64][]*entity.HealingAttempt
}

func (h *fakeHealingRepo) GetProfile(context.Context, int64) (*entity.HealingProfile, error) {
	return nil, nil
}

func (h *fakeHealingRepo) UpdateProfile(context.Context, int64, entity.ProfilePatch) error {
	return nil
}

func (h *fakeHealingRepo) ListProfiles(context.Context) ([]*entity.HealingProfile, error) {
	return nil, nil
}

func (h *fakeHealingRepo) LogAttempt(context.Context, *entity.HealingAttempt) error {
	return nil
}

func (h *fakeHealingRepo) RecentAttempts(_ context.Context, feedID int64, limit int) ([]*entity.HealingAttempt, error) {
	out := h.recent[feedID]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *fakeHealingRepo) AttemptsSince(context.Context, time.Time) ([]*entity.HealingAttempt, error) {
	return nil, nil
}

func (h *fakeHealingRepo) FeedsByHealingStatus(context.Context, string) ([]int64, error) {
	return nil, nil
}

type fakeDiscoverer struct {
	outcome   *discovery.Outcome
	err       error
	calls     int
	preferred string
}

func (d *fakeDiscoverer) Run(_ context.Context, _ *entity.Feed, opts ...discovery.RunOption) (*discovery.Outcome, error) {
	d.calls++
	d.preferred = ""
	if len(opts) > 0 {
		d.preferred = "set"
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.outcome, nil
}

type fakeLearner struct {
	rec      learning.Recommendation
	recErr   error
	recorded []*entity.HealingAttempt
	err      error
}

func (l *fakeLearner) RecordAttempt(_ context.Context, a *entity.HealingAttempt) error {
	l.recorded = append(l.recorded, a)
	return l.err
}

func (l *fakeLearner) BestTactic(context.Context, *entity.Feed) (learning.Recommendation, error) {
	return l.rec, l.recErr
}

var testNow = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	catalog    *fakeCatalog
	discovery  *fakeDiscoveryRepo
	healing    *fakeHealingRepo
	discoverer *fakeDiscoverer
	learner    *fakeLearner
}

func newFixture(feeds ...*entity.Feed) *fixture {
	return &fixture{
		catalog:    newFakeCatalog(feeds...),
		discovery:  newFakeDiscoveryRepo(),
		healing:    &fakeHealingRepo{recent: make(map[int64][]*entity.HealingAttempt)},
		discoverer: &fakeDiscoverer{outcome: &discovery.Outcome{Action: discovery.ActionNone}},
		learner:    &fakeLearner{rec: learning.Recommendation{Source: learning.SourceNone}},
	}
}

func (f *fixture) engine() *Engine {
	e := NewEngine(Deps{
		Catalog:    f.catalog,
		Discovery:  f.discovery,
		Healing:    f.healing,
		Discoverer: f.discoverer,
		Learner:    f.learner,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, DefaultConfig())
	e.now = func() time.Time { return testNow }
	return e
}
