// Package strategy implements the discovery strategies that propose
// replacement candidates for a broken feed. Every strategy satisfies
// discovery.Strategy and swallows its own errors: a failing strategy logs
// and returns no candidates.
package strategy

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/infra/prober"
)

// Prober is the HTTP surface the strategies need.
type Prober interface {
	Exists(ctx context.Context, rawURL string) bool
	Resolve(ctx context.Context, rawURL string) string
	Fetch(ctx context.Context, rawURL string) (*prober.Page, error)
}

// CatalogReader lists catalog feeds.
type CatalogReader interface {
	GetFeedCatalog(ctx context.Context, filter entity.CatalogFilter) ([]*entity.Feed, error)
}

// commonFeedPaths are well-known feed locations, most likely first.
var commonFeedPaths = []string{
	"/feed",
	"/rss",
	"/atom.xml",
	"/rss.xml",
	"/feed.xml",
	"/index.xml",
	"/feed/atom",
	"/rss/",
	"/feeds/posts/default",
}

// sourceTypePaths are feed locations specific to a publishing platform.
var sourceTypePaths = map[string][]string{
	entity.SourceTypeWordPress: {"/?feed=rss2", "/feed/", "/comments/feed/"},
	entity.SourceTypeSubstack:  {"/feed"},
	entity.SourceTypeMedium:    {"/feed"},
	entity.SourceTypeBlogger:   {"/feeds/posts/default", "/feeds/posts/default?alt=rss"},
	entity.SourceTypeGhost:     {"/rss/"},
}

// hostPrefixes are subdomains that usually point at the same publication.
var hostPrefixes = []string{"www.", "feeds.", "feed.", "blog.", "news.", "rss.", "m."}

// MIME type substrings of feed <link> tags.
const (
	rssXMLType  = "rss+xml"
	atomXMLType = "atom+xml"
	jsonFeed    = "feed+json"
)

// rootHost strips well-known publication subdomains from host.
func rootHost(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for {
		stripped := false
		for _, p := range hostPrefixes {
			if strings.HasPrefix(host, p) && strings.Count(host, ".") > 1 {
				host = strings.TrimPrefix(host, p)
				stripped = true
			}
		}
		if !stripped {
			return host
		}
	}
}

// extractFeedLinks parses HTML and returns the feed URLs advertised with
// <link rel="alternate">, resolved against baseURL.
func extractFeedLinks(baseURL string, body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	var links []string
	doc.Find(`link[rel="alternate"]`).Each(func(_ int, s *goquery.Selection) {
		linkType, _ := s.Attr("type")
		if !isFeedType(linkType) {
			return
		}
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		if resolved := resolveURL(baseURL, href); resolved != "" {
			links = append(links, resolved)
		}
	})
	return links
}

// feedLinkType returns the source type implied by a feed <link> MIME type.
func feedLinkType(linkType string) string {
	if strings.Contains(linkType, atomXMLType) {
		return entity.SourceTypeAtom
	}
	return entity.SourceTypeRSS
}

func isFeedType(linkType string) bool {
	linkType = strings.ToLower(linkType)
	return strings.Contains(linkType, rssXMLType) ||
		strings.Contains(linkType, atomXMLType) ||
		strings.Contains(linkType, jsonFeed)
}

// resolveURL resolves a potentially relative href against a base URL.
func resolveURL(baseURL, href string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// appendUnique appends s to list when it is not already present.
func appendUnique(list []string, seen map[string]struct{}, s string) []string {
	key := strings.ToLower(s)
	if _, ok := seen[key]; ok {
		return list
	}
	seen[key] = struct{}{}
	return append(list, s)
}
