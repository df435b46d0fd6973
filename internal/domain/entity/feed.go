package entity

import (
	"net/url"
	"strings"
	"time"
)

// Fetch status values recorded on a Feed by the catalog.
const (
	FetchStatusOK             = "ok"
	FetchStatusError          = "error"
	FetchStatusPermanentError = "permanent_error"
)

// Source types the discovery strategies know something about.
// Unknown types are accepted and treated as generic syndication feeds.
const (
	SourceTypeRSS       = "rss"
	SourceTypeAtom      = "atom"
	SourceTypeReddit    = "reddit"
	SourceTypeYouTube   = "youtube"
	SourceTypePodcast   = "podcast"
	SourceTypeWordPress = "wordpress"
	SourceTypeSubstack  = "substack"
	SourceTypeMedium    = "medium"
	SourceTypeBlogger   = "blogger"
	SourceTypeGhost     = "ghost"
)

// Feed is a syndication source as known to the feed catalog.
// The resilience engine only reads it; health changes go through
// repository.FeedCatalog.UpdateFeedHealth.
type Feed struct {
	ID          int64
	URL         string
	Title       string
	Description string
	SourceType  string
	Topics      []string
	Domain      string
	Category    string

	ConsecutiveFailures int
	LastFetchStatus     string
	LastErrorMessage    string
	LastFetchedAt       *time.Time

	IsActive   bool
	IsApproved bool
}

// Host returns the lowercased hostname of the feed URL, or "" when the URL
// cannot be parsed.
func (f *Feed) Host() string {
	u, err := url.Parse(f.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// HasPermanentFailure reports whether the last recorded error looks like the
// source is gone rather than temporarily unavailable.
func (f *Feed) HasPermanentFailure() bool {
	if f.LastFetchStatus == FetchStatusPermanentError {
		return true
	}
	t := ClassifyErrorMessage(f.LastErrorMessage)
	return t.IsPermanent()
}

// HealthPatch is a partial update of a feed's health counters.
// Nil fields are left untouched.
type HealthPatch struct {
	ConsecutiveFailures *int
	LastFetchStatus     *string
	LastErrorMessage    *string
	LastFetchedAt       *time.Time
	IsActive            *bool
}

// CatalogFilter narrows GetFeedCatalog results.
type CatalogFilter struct {
	ActiveOnly bool
	SourceType string
	Topics     []string
}

// Subscription links a user to a feed.
type Subscription struct {
	UserID string
	FeedID int64
	Active bool
}
