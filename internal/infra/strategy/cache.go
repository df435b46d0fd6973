package strategy

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"feed-resilience/internal/domain/entity"
)

// DefaultCatalogTTL is how long a catalog listing is reused.
const DefaultCatalogTTL = 5 * time.Minute

type catalogEntry struct {
	feeds     []*entity.Feed
	fetchedAt time.Time
}

// CachedCatalog memoizes GetFeedCatalog results per filter for a TTL.
// Entries refresh lazily on the first read after expiry; errors are not
// cached.
type CachedCatalog struct {
	inner CatalogReader
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]catalogEntry
}

// NewCachedCatalog wraps inner with a TTL cache.
func NewCachedCatalog(inner CatalogReader, ttl time.Duration) *CachedCatalog {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	return &CachedCatalog{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]catalogEntry),
	}
}

// GetFeedCatalog returns the cached listing for filter, refreshing it when stale.
func (c *CachedCatalog) GetFeedCatalog(ctx context.Context, filter entity.CatalogFilter) ([]*entity.Feed, error) {
	key := filterKey(filter)

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.feeds, nil
	}

	feeds, err := c.inner.GetFeedCatalog(ctx, filter)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = catalogEntry{feeds: feeds, fetchedAt: c.now()}
	c.mu.Unlock()
	return feeds, nil
}

// Invalidate drops every cached listing.
func (c *CachedCatalog) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]catalogEntry)
	c.mu.Unlock()
}

func filterKey(f entity.CatalogFilter) string {
	topics := append([]string(nil), f.Topics...)
	sort.Strings(topics)
	var b strings.Builder
	if f.ActiveOnly {
		b.WriteString("active|")
	} else {
		b.WriteString("all|")
	}
	b.WriteString(strings.ToLower(f.SourceType))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(strings.Join(topics, ",")))
	return b.String()
}
