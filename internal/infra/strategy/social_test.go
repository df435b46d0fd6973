package strategy

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-resilience/internal/domain/entity"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestRedditVariants(t *testing.T) {
	got := redditVariants(mustParse(t, "https://www.reddit.com/r/golang/.rss"))

	assert.Equal(t, []string{
		"https://www.reddit.com/r/golang/.rss",
		"https://www.reddit.com/r/golang/hot/.rss",
		"https://www.reddit.com/r/golang/new/.rss",
		"https://www.reddit.com/r/golang/top/.rss",
		"https://www.reddit.com/r/golang/rising/.rss",
		"https://old.reddit.com/r/golang/.rss",
	}, got)
	assert.Nil(t, redditVariants(mustParse(t, "https://www.reddit.com/user/someone")))
}

func TestYoutubeVariants(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want []string
	}{
		{
			name: "channel id query",
			url:  "https://www.youtube.com/feeds/videos.xml?channel_id=UCabcdefghij12345",
			want: []string{
				"https://www.youtube.com/feeds/videos.xml?channel_id=UCabcdefghij12345",
				"https://www.youtube.com/feeds/videos.xml?playlist_id=UUabcdefghij12345",
			},
		},
		{
			name: "channel path",
			url:  "https://www.youtube.com/channel/UCabcdefghij12345/videos",
			want: []string{
				"https://www.youtube.com/feeds/videos.xml?channel_id=UCabcdefghij12345",
				"https://www.youtube.com/feeds/videos.xml?playlist_id=UUabcdefghij12345",
			},
		},
		{
			name: "legacy user",
			url:  "https://www.youtube.com/user/golang",
			want: []string{"https://www.youtube.com/feeds/videos.xml?user=golang"},
		},
		{
			name: "playlist",
			url:  "https://www.youtube.com/playlist?list=PL123",
			want: []string{"https://www.youtube.com/feeds/videos.xml?playlist_id=PL123"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, youtubeVariants(mustParse(t, tt.url)))
		})
	}
}

func TestPodcastSlug(t *testing.T) {
	assert.Equal(t, "gotime", podcastSlug(mustParse(t, "https://gotime.libsyn.com/rss")))
	assert.Equal(t, "abc123", podcastSlug(mustParse(t, "https://anchor.fm/s/abc123/podcast/rss")))
	assert.Equal(t, "my-show", podcastSlug(mustParse(t, "https://feeds.example.com/My_Show.xml")))
	assert.Equal(t, "example", podcastSlug(mustParse(t, "https://www.example.com/feed")))
}

func TestSocialAPI_DiscoverPodcast(t *testing.T) {
	s := NewSocialAPI(nil, discardLogger())
	feed := &entity.Feed{ID: 3, URL: "https://gotime.libsyn.com/rss", SourceType: entity.SourceTypePodcast, Title: "Go Time"}

	got := s.Discover(context.Background(), feed)

	urls := candidateURLs(got)
	assert.Contains(t, urls, "https://anchor.fm/s/gotime/podcast/rss")
	assert.Contains(t, urls, "https://feed.podbean.com/gotime/feed.xml")
	assert.NotContains(t, urls, "https://gotime.libsyn.com/rss")
	for _, c := range got {
		assert.Equal(t, entity.SourceTypePodcast, c.SourceType)
		assert.Nil(t, c.Similarity)
	}
}

func TestSocialAPI_KnownSourcesByTopic(t *testing.T) {
	known, err := LoadKnownSources([]byte(`
sources:
  - url: https://go.dev/blog/feed.atom
    title: The Go Blog
    source_type: atom
    topics: [Go, programming]
  - url: https://blog.rust-lang.org/feed.xml
    title: Rust Blog
    source_type: atom
    topics: [rust]
`))
	require.NoError(t, err)
	s := NewSocialAPI(known, discardLogger())
	feed := &entity.Feed{ID: 9, URL: "https://gophers.example.com/rss", SourceType: entity.SourceTypeRSS, Topics: []string{"go", "cloud"}}

	require.True(t, s.IsApplicable(feed))
	got := s.Discover(context.Background(), feed)

	require.Len(t, got, 1)
	assert.Equal(t, "https://go.dev/blog/feed.atom", got[0].URL)
	assert.Equal(t, "The Go Blog", got[0].Title)
	assert.Equal(t, entity.SourceTypeAtom, got[0].SourceType)
	assert.InDelta(t, 0.5, *got[0].Similarity, 1e-9)

	assert.False(t, s.IsApplicable(&entity.Feed{URL: "https://x.com/rss", SourceType: entity.SourceTypeRSS, Topics: []string{"gardening"}}))
}

func TestLoadKnownSources(t *testing.T) {
	ks, err := DefaultKnownSources()
	require.NoError(t, err)
	assert.Greater(t, ks.Len(), 10)
	assert.NotEmpty(t, ks.ForTopics([]string{"golang"}))

	_, err = LoadKnownSources([]byte("sources: [unclosed"))
	assert.Error(t, err)

	_, err = LoadKnownSources([]byte("sources:\n  - url: ftp://example.com/feed\n"))
	assert.Error(t, err)

	var nilKnown *KnownSources
	assert.Equal(t, 0, nilKnown.Len())
	assert.Nil(t, nilKnown.ForTopics([]string{"go"}))
}
