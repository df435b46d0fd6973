package strategy

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/usecase/discovery"
)

var (
	searchTLDs  = []string{".com", ".org", ".net", ".io", ".co"}
	searchPaths = []string{"/feed", "/rss", "/feed.xml", "/atom.xml", "/rss.xml"}

	// titleNoise are words dropped when turning a title into a site name.
	titleNoise = map[string]struct{}{
		"the": {}, "a": {}, "an": {}, "blog": {}, "feed": {}, "rss": {},
		"news": {}, "official": {}, "podcast": {}, "channel": {}, "of": {}, "and": {},
	}
)

const maxSearchResults = 15

// SearchEngine approximates a web search: it derives clean site names from
// the feed's title and domain and synthesizes feed URLs on the same and
// sibling TLDs, ranked by a static relevance heuristic. It performs no
// network I/O.
type SearchEngine struct {
	logger *slog.Logger
}

// NewSearchEngine creates the search strategy.
func NewSearchEngine(logger *slog.Logger) *SearchEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchEngine{logger: logger}
}

// Name returns the tactic name recorded on attempts.
func (s *SearchEngine) Name() string { return entity.StrategySearchEngine }

// IsApplicable reports whether any site name can be derived from the feed.
func (s *SearchEngine) IsApplicable(feed *entity.Feed) bool {
	return len(SiteNames(feed)) > 0
}

type ranked struct {
	url   string
	score float64
}

// Discover scores name, TLD and path combinations and returns the best ones.
func (s *SearchEngine) Discover(_ context.Context, feed *entity.Feed) []entity.Candidate {
	names := SiteNames(feed)
	ownTLD := tldOf(feed.Host())

	tlds := make([]string, 0, len(searchTLDs)+1)
	tldSeen := map[string]struct{}{}
	if ownTLD != "" {
		tlds = appendUnique(tlds, tldSeen, ownTLD)
	}
	for _, t := range searchTLDs {
		tlds = appendUnique(tlds, tldSeen, t)
	}

	own := strings.ToLower(feed.URL)
	var results []ranked
	for ni, name := range names {
		nameScore := 0.6
		if ni > 0 {
			nameScore = 0.45
		}
		for ti, tld := range tlds {
			for pi, path := range searchPaths {
				u := "https://" + name + tld + path
				if strings.ToLower(u) == own {
					continue
				}
				score := nameScore - 0.05*float64(ti) - 0.02*float64(pi)
				if score < 0.1 {
					score = 0.1
				}
				results = append(results, ranked{url: u, score: score})
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}

	out := make([]entity.Candidate, 0, len(results))
	for _, r := range results {
		out = append(out, entity.Candidate{
			URL:        r.url,
			Title:      feed.Title,
			SourceType: feed.SourceType,
			Topics:     feed.Topics,
			Strategy:   entity.StrategySearchEngine,
			Similarity: entity.Float64(r.score),
		})
	}
	return out
}

// SiteNames returns the candidate site names for feed: the domain's base
// name first, then the title squashed into a single label.
func SiteNames(feed *entity.Feed) []string {
	seen := map[string]struct{}{}
	var names []string

	if host := feed.Host(); host != "" {
		if base := sanitizeSlug(discovery.BaseName(rootHost(host))); base != "" {
			names = appendUnique(names, seen, base)
		}
	}

	var words []string
	for _, w := range strings.Fields(strings.ToLower(feed.Title)) {
		w = sanitizeSlug(w)
		if w == "" {
			continue
		}
		if _, noise := titleNoise[w]; noise {
			continue
		}
		words = append(words, w)
	}
	if len(words) > 0 {
		names = appendUnique(names, seen, strings.ReplaceAll(strings.Join(words, ""), "-", ""))
		if len(words) > 1 {
			names = appendUnique(names, seen, strings.Join(words, "-"))
		}
	}
	return names
}

// tldOf returns the final label of host with its leading dot.
func tldOf(host string) string {
	i := strings.LastIndex(host, ".")
	if i < 0 || i == len(host)-1 {
		return ""
	}
	return host[i:]
}
