package strategy

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/usecase/discovery"
)

var (
	subredditPattern = regexp.MustCompile(`(?i)/r/([A-Za-z0-9_]+)`)
	channelPattern   = regexp.MustCompile(`/channel/(UC[A-Za-z0-9_-]{10,})`)
	userPattern      = regexp.MustCompile(`/(?:user|c)/([A-Za-z0-9_.-]+)`)
	slugPattern      = regexp.MustCompile(`[^a-z0-9-]+`)
)

var redditSorts = []string{"hot", "new", "top", "rising"}

// SocialAPI applies platform heuristics for reddit, YouTube and podcast
// feeds and proposes curated sources that share the feed's topics.
type SocialAPI struct {
	known  *KnownSources
	logger *slog.Logger
}

// NewSocialAPI creates the social strategy. known may be nil.
func NewSocialAPI(known *KnownSources, logger *slog.Logger) *SocialAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &SocialAPI{known: known, logger: logger}
}

// Name returns the tactic name recorded on attempts.
func (s *SocialAPI) Name() string { return entity.StrategySocialAPI }

// IsApplicable reports whether the source type is a social platform or the topics map to known feeds.
func (s *SocialAPI) IsApplicable(feed *entity.Feed) bool {
	switch strings.ToLower(feed.SourceType) {
	case entity.SourceTypeReddit, entity.SourceTypeYouTube, entity.SourceTypePodcast:
		return true
	}
	return len(s.known.ForTopics(feed.Topics)) > 0
}

// Discover returns platform feed URLs and known topic feeds.
func (s *SocialAPI) Discover(_ context.Context, feed *entity.Feed) []entity.Candidate {
	u, err := url.Parse(feed.URL)
	if err != nil {
		s.logger.Warn("social strategy: unparseable feed URL",
			slog.Int64("feed_id", feed.ID),
			slog.Any("error", err))
		return nil
	}

	var urls []string
	switch strings.ToLower(feed.SourceType) {
	case entity.SourceTypeReddit:
		urls = redditVariants(u)
	case entity.SourceTypeYouTube:
		urls = youtubeVariants(u)
	case entity.SourceTypePodcast:
		urls = podcastVariants(u)
	}

	own := strings.ToLower(feed.URL)
	seen := map[string]struct{}{own: {}}
	var out []entity.Candidate
	for _, v := range urls {
		if _, dup := seen[strings.ToLower(v)]; dup {
			continue
		}
		seen[strings.ToLower(v)] = struct{}{}
		out = append(out, entity.Candidate{
			URL:        v,
			Title:      feed.Title,
			SourceType: feed.SourceType,
			Topics:     feed.Topics,
			Strategy:   entity.StrategySocialAPI,
		})
	}

	for _, k := range s.known.ForTopics(feed.Topics) {
		if _, dup := seen[strings.ToLower(k.URL)]; dup {
			continue
		}
		seen[strings.ToLower(k.URL)] = struct{}{}
		out = append(out, entity.Candidate{
			URL:        k.URL,
			Title:      k.Title,
			SourceType: k.SourceType,
			Topics:     k.Topics,
			Strategy:   entity.StrategySocialAPI,
			Similarity: entity.Float64(discovery.TopicOverlap(feed.Topics, k.Topics)),
		})
	}
	return out
}

// redditVariants returns the subreddit feed under each sort order and on
// both reddit frontends.
func redditVariants(u *url.URL) []string {
	m := subredditPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return nil
	}
	sub := m[1]
	out := []string{"https://www.reddit.com/r/" + sub + "/.rss"}
	for _, sort := range redditSorts {
		out = append(out, "https://www.reddit.com/r/"+sub+"/"+sort+"/.rss")
	}
	out = append(out, "https://old.reddit.com/r/"+sub+"/.rss")
	return out
}

// youtubeVariants returns the videos.xml feed shapes for the channel, user
// or playlist identified by u.
func youtubeVariants(u *url.URL) []string {
	const base = "https://www.youtube.com/feeds/videos.xml"
	q := u.Query()
	var out []string

	channelID := q.Get("channel_id")
	if channelID == "" {
		if m := channelPattern.FindStringSubmatch(u.Path); m != nil {
			channelID = m[1]
		}
	}
	if channelID != "" {
		out = append(out, base+"?channel_id="+url.QueryEscape(channelID))
		// uploads playlist of a channel is UU + channel suffix
		if strings.HasPrefix(channelID, "UC") {
			out = append(out, base+"?playlist_id="+url.QueryEscape("UU"+channelID[2:]))
		}
	}

	user := q.Get("user")
	if user == "" {
		if m := userPattern.FindStringSubmatch(u.Path); m != nil {
			user = m[1]
		}
	}
	if user != "" {
		out = append(out, base+"?user="+url.QueryEscape(user))
	}

	if playlist := q.Get("playlist_id"); playlist != "" {
		out = append(out, base+"?playlist_id="+url.QueryEscape(playlist))
	} else if playlist := q.Get("list"); playlist != "" {
		out = append(out, base+"?playlist_id="+url.QueryEscape(playlist))
	}
	return out
}

// podcastVariants returns the feed shapes of common podcast hosts for the
// show slug derived from u.
func podcastVariants(u *url.URL) []string {
	slug := podcastSlug(u)
	if slug == "" {
		return nil
	}
	return []string{
		"https://anchor.fm/s/" + slug + "/podcast/rss",
		"https://" + slug + ".libsyn.com/rss",
		"https://feeds.buzzsprout.com/" + slug + ".rss",
		"https://feed.podbean.com/" + slug + "/feed.xml",
		"https://feeds.simplecast.com/" + slug,
		"https://feeds.megaphone.fm/" + slug,
	}
}

// podcastSlug picks the show identifier: the subdomain on hosted platforms,
// the last meaningful path segment otherwise.
func podcastSlug(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	for _, platform := range []string{".libsyn.com", ".podbean.com"} {
		if strings.HasSuffix(host, platform) {
			return sanitizeSlug(strings.TrimSuffix(host, platform))
		}
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := strings.ToLower(segments[i])
		switch seg {
		case "", "rss", "feed", "feed.xml", "rss.xml", "podcast", "s":
			continue
		}
		seg = strings.TrimSuffix(seg, ".rss")
		seg = strings.TrimSuffix(seg, ".xml")
		return sanitizeSlug(seg)
	}
	return sanitizeSlug(discovery.BaseName(rootHost(host)))
}

func sanitizeSlug(s string) string {
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
