package discovery

import (
	"context"
	"errors"
	"sync"

	"feed-resilience/internal/domain/entity"
)

type fakeStrategy struct {
	name       string
	applicable bool
	candidates []entity.Candidate
	panics     bool
	calls      int
	mu         sync.Mutex
}

func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) IsApplicable(*entity.Feed) bool { return s.applicable }

func (s *fakeStrategy) Discover(context.Context, *entity.Feed) []entity.Candidate {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.panics {
		panic("strategy exploded")
	}
	out := make([]entity.Candidate, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// fakeValidator reports every URL in valid as a feed with items; any other
// URL fails validation.
type fakeValidator struct {
	mu    sync.Mutex
	valid map[string]entity.ValidationResult
	seen  []string
}

func (v *fakeValidator) ValidateCandidate(_ context.Context, url string) entity.ValidationResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seen = append(v.seen, url)
	if res, ok := v.valid[url]; ok {
		return res
	}
	return entity.ValidationResult{IsValid: false, Error: "not a feed"}
}

func validFeed(title string, items int) entity.ValidationResult {
	return entity.ValidationResult{IsValid: true, HasItems: items > 0, ItemCount: items, Title: title}
}

type fakeCatalog struct {
	mu            sync.Mutex
	nextID        int64
	entries       map[string]*entity.Feed
	subscriptions []entity.Subscription
	migrations    [][2]int64
	insertErr     error
	migrateErr    error
	subsErr       error
}

func newFakeCatalog(subs ...entity.Subscription) *fakeCatalog {
	return &fakeCatalog{nextID: 100, entries: map[string]*entity.Feed{}, subscriptions: subs}
}

func (c *fakeCatalog) GetFeedByID(_ context.Context, id int64) (*entity.Feed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.entries {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, nil
}

func (c *fakeCatalog) GetFeedCatalog(context.Context, entity.CatalogFilter) ([]*entity.Feed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*entity.Feed, 0, len(c.entries))
	for _, f := range c.entries {
		out = append(out, f)
	}
	return out, nil
}

func (c *fakeCatalog) InsertOrFindCatalogEntry(_ context.Context, cand *entity.Candidate) (*entity.Feed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.insertErr != nil {
		return nil, c.insertErr
	}
	if f, ok := c.entries[cand.URL]; ok {
		return f, nil
	}
	c.nextID++
	f := &entity.Feed{ID: c.nextID, URL: cand.URL, Title: cand.Title, SourceType: cand.SourceType, IsActive: true}
	c.entries[cand.URL] = f
	return f, nil
}

func (c *fakeCatalog) UpdateFeedHealth(context.Context, int64, entity.HealthPatch) error {
	return nil
}

func (c *fakeCatalog) GetAllFeedSubscriptions(context.Context) ([]entity.Subscription, error) {
	if c.subsErr != nil {
		return nil, c.subsErr
	}
	return c.subscriptions, nil
}

func (c *fakeCatalog) AutoSubscribeUsersToAlternative(_ context.Context, oldID, newID int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.migrateErr != nil {
		return nil, c.migrateErr
	}
	c.migrations = append(c.migrations, [2]int64{oldID, newID})
	var users []string
	for i, s := range c.subscriptions {
		if s.FeedID == oldID && s.Active {
			users = append(users, s.UserID)
			c.subscriptions[i].FeedID = newID
		}
	}
	return users, nil
}

type fakeAttempts struct {
	mu      sync.Mutex
	saved   []*entity.DiscoveryAttempt
	saveErr error
}

func (r *fakeAttempts) CountAttempts(_ context.Context, feedID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.saved {
		if a.OriginalFeedID == feedID {
			n++
		}
	}
	return n, nil
}

func (r *fakeAttempts) SaveAttempt(_ context.Context, a *entity.DiscoveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	a.ID = int64(len(r.saved) + 1)
	r.saved = append(r.saved, a)
	return nil
}

func (r *fakeAttempts) MarkAccepted(context.Context, int64, bool, string) error { return nil }

func (r *fakeAttempts) Get(context.Context, int64) (*entity.DiscoveryAttempt, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeAttempts) ResetAttempts(context.Context, int64) error { return nil }

type fakeNotifier struct {
	mu          sync.Mutex
	switched    []string
	suggested   []string
	suggestFeed *entity.Feed
	err         error
}

func (n *fakeNotifier) NotifyUsersOfSwitch(_ context.Context, users []string, _, _ *entity.Feed) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.switched = append(n.switched, users...)
	return nil
}

func (n *fakeNotifier) NotifyUsersOfSuggestion(_ context.Context, users []string, _, newFeed *entity.Feed) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.suggested = append(n.suggested, users...)
	n.suggestFeed = newFeed
	return nil
}
