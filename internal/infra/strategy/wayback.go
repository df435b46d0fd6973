package strategy

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/infra/archive"
)

// ArchiveClient looks up and downloads archived pages.
type ArchiveClient interface {
	Closest(ctx context.Context, target string) (*archive.Snapshot, error)
	FetchSnapshot(ctx context.Context, snap *archive.Snapshot) ([]byte, error)
}

var (
	archivePrefix  = regexp.MustCompile(`^https?://web\.archive\.org/web/\d+[a-z_]*/`)
	movedToPattern = regexp.MustCompile(`(?i)\b(?:moved|moving|migrated|relocated|new home)\s+(?:over\s+)?(?:to|at|is)\s+(?:https?://)?((?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,})`)
	movedPaths     = []string{"/feed", "/rss", "/feed.xml", "/atom.xml"}
)

const maxWaybackCandidates = 12

// Wayback looks for where a permanently broken source went: feed links in
// its last archived homepage, "moved to" notices in that page, and live
// redirects from the old domain.
type Wayback struct {
	archive ArchiveClient
	prober  Prober
	logger  *slog.Logger
}

// NewWayback creates the wayback strategy.
func NewWayback(a ArchiveClient, p Prober, logger *slog.Logger) *Wayback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Wayback{archive: a, prober: p, logger: logger}
}

// Name returns the tactic name recorded on attempts.
func (s *Wayback) Name() string { return entity.StrategyWayback }

// IsApplicable is true only for failures that look permanent: 404, 410 or
// an unresolvable host.
func (s *Wayback) IsApplicable(feed *entity.Feed) bool {
	return feed.Host() != "" && feed.HasPermanentFailure()
}

// Discover follows a live redirect of the host, then mines the archived homepage for feed links.
func (s *Wayback) Discover(ctx context.Context, feed *entity.Feed) []entity.Candidate {
	host := feed.Host()
	seen := map[string]struct{}{strings.ToLower(feed.URL): {}}
	var out []entity.Candidate
	add := func(u string, similarity float64) {
		if len(out) >= maxWaybackCandidates {
			return
		}
		if _, dup := seen[strings.ToLower(u)]; dup {
			return
		}
		seen[strings.ToLower(u)] = struct{}{}
		out = append(out, entity.Candidate{
			URL:        u,
			Title:      feed.Title,
			SourceType: feed.SourceType,
			Topics:     feed.Topics,
			Strategy:   entity.StrategyWayback,
			Similarity: entity.Float64(similarity),
		})
	}

	if moved := s.liveRedirect(ctx, host); moved != "" {
		for _, p := range movedPaths {
			add("https://"+moved+p, 0.75)
		}
	}

	home := "https://" + host + "/"
	snap, err := s.archive.Closest(ctx, home)
	if err != nil {
		if !errors.Is(err, archive.ErrNoSnapshot) {
			s.logger.Warn("wayback strategy: availability lookup failed",
				slog.Int64("feed_id", feed.ID),
				slog.Any("error", err))
		}
		return out
	}

	body, err := s.archive.FetchSnapshot(ctx, snap)
	if err != nil {
		s.logger.Warn("wayback strategy: snapshot fetch failed",
			slog.Int64("feed_id", feed.ID),
			slog.String("snapshot", snap.URL),
			slog.Any("error", err))
		return out
	}

	for _, link := range archivedFeedLinks(home, snap.URL, body) {
		add(link, 0.8)
	}
	for _, domain := range MovedToDomains(body) {
		if domain == host || domain == rootHost(host) {
			continue
		}
		for _, p := range movedPaths {
			add("https://"+domain+p, 0.7)
		}
	}
	return out
}

// liveRedirect returns the new host when the old homepage now redirects to
// another domain.
func (s *Wayback) liveRedirect(ctx context.Context, host string) string {
	final := s.prober.Resolve(ctx, "https://"+host+"/")
	if final == "" {
		return ""
	}
	u, err := url.Parse(final)
	if err != nil {
		return ""
	}
	newHost := strings.ToLower(u.Hostname())
	if newHost == "" || rootHost(newHost) == rootHost(host) {
		return ""
	}
	return newHost
}

// archivedFeedLinks extracts feed links from an archived page and strips
// the archive's URL rewriting so they point at the live site.
func archivedFeedLinks(home, snapshotURL string, body []byte) []string {
	var out []string
	for _, link := range extractFeedLinks(snapshotURL, body) {
		live := archivePrefix.ReplaceAllString(link, "")
		if resolved := resolveURL(home, live); resolved != "" {
			out = append(out, resolved)
		}
	}
	return out
}

// MovedToDomains finds domains announced in "moved to example.org" style
// notices in an HTML page.
func MovedToDomains(body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}
	text := doc.Find("body").Text()

	seen := map[string]struct{}{}
	var out []string
	for _, m := range movedToPattern.FindAllStringSubmatch(text, -1) {
		domain := strings.TrimSuffix(strings.ToLower(m[1]), ".")
		domain = strings.TrimPrefix(domain, "www.")
		if domain == "web.archive.org" {
			continue
		}
		out = appendUnique(out, seen, domain)
	}
	return out
}
