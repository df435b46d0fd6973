package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-resilience/internal/domain/entity"
)

func TestVariantURLs(t *testing.T) {
	feed := &entity.Feed{URL: "https://blog.example.com/feed.xml", SourceType: entity.SourceTypeWordPress}

	urls := VariantURLs(feed, 0)

	require.NotEmpty(t, urls)
	assert.Equal(t, "https://blog.example.com/?feed=rss2", urls[0])
	assert.NotContains(t, urls, "https://blog.example.com/feed.xml")
	assert.Contains(t, urls, "https://example.com/feed.xml")
	assert.Contains(t, urls, "https://www.example.com/rss")
	assert.Contains(t, urls, "https://feeds.example.com/atom.xml")
	assert.Contains(t, urls, "http://news.example.com/index.xml")

	seen := map[string]bool{}
	for _, u := range urls {
		assert.False(t, seen[u], "duplicate %s", u)
		seen[u] = true
	}
}

func TestVariantURLs_Limit(t *testing.T) {
	feed := &entity.Feed{URL: "https://example.com/rss", SourceType: entity.SourceTypeRSS}

	urls := VariantURLs(feed, 10)

	require.Len(t, urls, 10)
	assert.Equal(t, "https://example.com/feed", urls[0])
	assert.Equal(t, "http://example.com/feed", urls[1])
}

func TestVariantURLs_DefaultLimitCoversEveryHostAndScheme(t *testing.T) {
	feed := &entity.Feed{URL: "https://example.com/feed.xml", SourceType: entity.SourceTypeRSS}

	urls := VariantURLs(feed, DefaultDomainVariantConfig().MaxProbes)

	assert.Equal(t, VariantURLs(feed, 0), urls)
	for _, sub := range variantSubdomains {
		for _, scheme := range []string{"https", "http"} {
			assert.Contains(t, urls, scheme+"://"+sub+"example.com/feeds/posts/default")
		}
	}
	assert.Contains(t, urls, "http://example.com/feed.xml")
}

func TestVariantURLs_BadURL(t *testing.T) {
	assert.Nil(t, VariantURLs(&entity.Feed{URL: "::"}, 10))
}

func TestDomainVariant_Discover(t *testing.T) {
	feed := &entity.Feed{ID: 7, URL: "https://www.example.com/old-feed", SourceType: entity.SourceTypeRSS, Topics: []string{"go"}}

	p := newFakeProber()
	p.pages["https://example.com/"] = `<html><head>
		<link rel="alternate" type="application/rss+xml" href="/blog/index.xml">
		<link rel="stylesheet" href="/style.css">
	</head></html>`
	p.existing["https://example.com/feed"] = true
	p.existing["https://www.example.com/rss"] = true

	v := &fakeValidator{valid: map[string]string{
		"https://example.com/blog/index.xml": "Example Blog",
		"https://example.com/feed":           "Example Feed",
	}}

	cfg := DefaultDomainVariantConfig()
	s := NewDomainVariant(p, v, cfg, discardLogger())
	pauses := 0
	s.pause = func(context.Context, time.Duration) error { pauses++; return nil }

	got := s.Discover(context.Background(), feed)

	assert.Equal(t, []string{"https://example.com/blog/index.xml", "https://example.com/feed"}, candidateURLs(got))
	assert.Equal(t, "Example Blog", got[0].Title)
	assert.Equal(t, entity.SourceTypeRSS, got[0].SourceType)
	assert.Equal(t, []string{"go"}, got[0].Topics)
	assert.Equal(t, entity.StrategyDomainVariant, got[0].Strategy)

	n := len(VariantURLs(feed, cfg.MaxProbes))
	assert.Len(t, p.probed, n)
	assert.Equal(t, (n+cfg.ChunkSize-1)/cfg.ChunkSize-1, pauses)
}

func TestDomainVariant_StopsProbingWhenCancelled(t *testing.T) {
	feed := &entity.Feed{ID: 7, URL: "https://example.com/feed"}
	p := newFakeProber()
	s := NewDomainVariant(p, &fakeValidator{}, DefaultDomainVariantConfig(), discardLogger())
	s.pause = func(context.Context, time.Duration) error { return context.Canceled }

	got := s.Discover(context.Background(), feed)

	assert.Empty(t, got)
	assert.Len(t, p.probed, 5)
}

func TestDomainVariant_IsApplicable(t *testing.T) {
	s := NewDomainVariant(newFakeProber(), &fakeValidator{}, DefaultDomainVariantConfig(), nil)
	assert.True(t, s.IsApplicable(&entity.Feed{URL: "https://example.com/feed"}))
	assert.False(t, s.IsApplicable(&entity.Feed{URL: ""}))
}

func TestRootHost(t *testing.T) {
	assert.Equal(t, "example.com", rootHost("www.example.com"))
	assert.Equal(t, "example.com", rootHost("feeds.blog.example.com"))
	assert.Equal(t, "example.com", rootHost("example.com"))
	assert.Equal(t, "news.com", rootHost("news.com"))
}

func TestSleepCtx(t *testing.T) {
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}
