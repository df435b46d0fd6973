package strategy

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/usecase/discovery"
)

// DomainVariantConfig tunes URL probing.
type DomainVariantConfig struct {
	ChunkSize  int
	ChunkPause time.Duration
	MaxProbes  int
	// MaxValidated caps how many probe hits are parsed before proposing.
	MaxValidated int
}

// DefaultDomainVariantConfig returns the production probing settings.
func DefaultDomainVariantConfig() DomainVariantConfig {
	return DomainVariantConfig{
		ChunkSize:    5,
		ChunkPause:   200 * time.Millisecond,
		MaxProbes:    160,
		MaxValidated: 6,
	}
}

var variantSubdomains = []string{"", "www.", "feed.", "feeds.", "blog.", "news."}

// DomainVariant probes URL permutations of the feed's own site and the
// feeds advertised on its homepage.
type DomainVariant struct {
	prober    Prober
	validator discovery.FeedValidator
	cfg       DomainVariantConfig
	logger    *slog.Logger
	pause     func(ctx context.Context, d time.Duration) error
}

// NewDomainVariant creates the domain variant strategy.
func NewDomainVariant(p Prober, v discovery.FeedValidator, cfg DomainVariantConfig, logger *slog.Logger) *DomainVariant {
	if logger == nil {
		logger = slog.Default()
	}
	return &DomainVariant{prober: p, validator: v, cfg: cfg, logger: logger, pause: sleepCtx}
}

// Name returns the tactic name recorded on attempts.
func (s *DomainVariant) Name() string { return entity.StrategyDomainVariant }

// IsApplicable reports whether the feed has a host to permute.
func (s *DomainVariant) IsApplicable(feed *entity.Feed) bool {
	return feed.Host() != ""
}

// Discover probes the permutations in paced chunks and returns the ones that validate.
func (s *DomainVariant) Discover(ctx context.Context, feed *entity.Feed) []entity.Candidate {
	root := rootHost(feed.Host())
	if root == "" {
		return nil
	}

	seen := map[string]struct{}{strings.ToLower(feed.URL): {}}
	var hits []string
	for _, link := range s.homepageFeeds(ctx, feed, root) {
		hits = appendUnique(hits, seen, link)
	}

	probes := VariantURLs(feed, s.cfg.MaxProbes)
	for _, u := range s.probe(ctx, probes) {
		hits = appendUnique(hits, seen, u)
	}

	var out []entity.Candidate
	for _, u := range hits {
		if len(out) >= s.cfg.MaxValidated || ctx.Err() != nil {
			break
		}
		res := s.validator.ValidateCandidate(ctx, u)
		if !res.IsValid {
			continue
		}
		out = append(out, entity.Candidate{
			URL:         u,
			Title:       res.Title,
			Description: res.Description,
			SourceType:  feed.SourceType,
			Topics:      feed.Topics,
			Strategy:    entity.StrategyDomainVariant,
		})
	}

	s.logger.Debug("domain variant probing finished",
		slog.Int64("feed_id", feed.ID),
		slog.Int("probed", len(probes)),
		slog.Int("hits", len(hits)),
		slog.Int("candidates", len(out)))
	return out
}

// homepageFeeds returns the feed links advertised on the site's homepage.
func (s *DomainVariant) homepageFeeds(ctx context.Context, feed *entity.Feed, root string) []string {
	scheme := "https"
	if u, err := url.Parse(feed.URL); err == nil && u.Scheme == "http" {
		scheme = "http"
	}
	home := scheme + "://" + root + "/"

	page, err := s.prober.Fetch(ctx, home)
	if err != nil {
		s.logger.Debug("domain variant: homepage fetch failed",
			slog.Int64("feed_id", feed.ID),
			slog.String("url", home),
			slog.Any("error", err))
		return nil
	}
	return extractFeedLinks(page.URL, page.Body)
}

// probe checks urls in chunks, pausing between chunks, and returns the ones
// that exist in input order.
func (s *DomainVariant) probe(ctx context.Context, urls []string) []string {
	chunk := s.cfg.ChunkSize
	if chunk <= 0 {
		chunk = 1
	}

	exists := make([]bool, len(urls))
	for start := 0; start < len(urls); start += chunk {
		if start > 0 {
			if err := s.pause(ctx, s.cfg.ChunkPause); err != nil {
				break
			}
		}
		end := start + chunk
		if end > len(urls) {
			end = len(urls)
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				exists[i] = s.prober.Exists(ctx, urls[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	var found []string
	for i, ok := range exists {
		if ok {
			found = append(found, urls[i])
		}
	}
	return found
}

// VariantURLs returns up to limit candidate feed URLs on the feed's own
// site: platform-specific paths first, then every subdomain and path
// combination, each tried over https and then http. The feed URL itself is
// excluded. A limit of 0 returns the full permutation.
func VariantURLs(feed *entity.Feed, limit int) []string {
	u, err := url.Parse(feed.URL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	root := rootHost(u.Hostname())
	host := strings.ToLower(u.Hostname())

	paths := make([]string, 0, len(commonFeedPaths)+4)
	pathSeen := map[string]struct{}{}
	paths = appendUnique(paths, pathSeen, u.EscapedPath())
	for _, p := range sourceTypePaths[strings.ToLower(feed.SourceType)] {
		paths = appendUnique(paths, pathSeen, p)
	}
	for _, p := range commonFeedPaths {
		paths = appendUnique(paths, pathSeen, p)
	}

	seen := map[string]struct{}{strings.ToLower(feed.URL): {}}
	var out []string
	add := func(s string) bool {
		out = appendUnique(out, seen, s)
		return limit <= 0 || len(out) < limit
	}

	for _, p := range sourceTypePaths[strings.ToLower(feed.SourceType)] {
		if !add("https://" + host + p) {
			return out
		}
	}
	for _, sub := range variantSubdomains {
		for _, p := range paths {
			if p == "" || p == "/" {
				continue
			}
			for _, scheme := range []string{"https", "http"} {
				if !add(scheme + "://" + sub + root + p) {
					return out
				}
			}
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
