package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/infra/archive"
	"feed-resilience/internal/infra/prober"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProber struct {
	mu       sync.Mutex
	existing map[string]bool
	resolved map[string]string
	pages    map[string]string
	probed   []string
}

func newFakeProber() *fakeProber {
	return &fakeProber{existing: map[string]bool{}, resolved: map[string]string{}, pages: map[string]string{}}
}

func (p *fakeProber) Exists(_ context.Context, u string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed = append(p.probed, u)
	return p.existing[u]
}

func (p *fakeProber) Resolve(_ context.Context, u string) string {
	return p.resolved[u]
}

func (p *fakeProber) Fetch(_ context.Context, u string) (*prober.Page, error) {
	body, ok := p.pages[u]
	if !ok {
		return nil, &entity.FetchError{Type: entity.ErrTypeNotFound, StatusCode: 404, URL: u}
	}
	return &prober.Page{URL: u, StatusCode: 200, Body: []byte(body)}, nil
}

type fakeValidator struct {
	valid map[string]string // url -> title
}

func (v *fakeValidator) ValidateCandidate(_ context.Context, u string) entity.ValidationResult {
	if title, ok := v.valid[u]; ok {
		return entity.ValidationResult{IsValid: true, HasItems: true, ItemCount: 1, Title: title}
	}
	return entity.ValidationResult{Error: "HTTP 404"}
}

type fakeCatalog struct {
	mu    sync.Mutex
	feeds []*entity.Feed
	err   error
	calls int
}

func (c *fakeCatalog) GetFeedCatalog(context.Context, entity.CatalogFilter) ([]*entity.Feed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.feeds, nil
}

type fakeArchive struct {
	snapshot *archive.Snapshot
	body     string
	err      error
	fetchErr error
	queried  []string
}

func (a *fakeArchive) Closest(_ context.Context, target string) (*archive.Snapshot, error) {
	a.queried = append(a.queried, target)
	if a.err != nil {
		return nil, a.err
	}
	if a.snapshot == nil {
		return nil, archive.ErrNoSnapshot
	}
	return a.snapshot, nil
}

func (a *fakeArchive) FetchSnapshot(context.Context, *archive.Snapshot) ([]byte, error) {
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return []byte(a.body), nil
}

var errBoom = errors.New("boom")

func candidateURLs(cs []entity.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.URL
	}
	return out
}
