package entity

import "time"

// Confidence bounds for a Candidate.
const (
	MinConfidence = 0
	MaxConfidence = 100
)

// Strategy names. They double as tactic names in healing profiles.
const (
	StrategyTopicBased    = "topic_based"
	StrategyDomainVariant = "domain_variant"
	StrategySocialAPI     = "social_api"
	StrategySearchEngine  = "search_engine"
	StrategyWayback       = "wayback"

	// TacticAllStrategies is logged when a discovery run with no single
	// responsible strategy fails.
	TacticAllStrategies = "all_strategies"
)

// Candidate is a proposed replacement for a broken feed.
type Candidate struct {
	URL         string
	Title       string
	Description string
	SourceType  string
	Topics      []string

	// Strategy is the name of the discovery strategy that produced it.
	Strategy string
	// Similarity is the strategy's own similarity estimate in [0,1], if any.
	Similarity *float64

	Confidence int
	Validation *ValidationResult
}

// ValidationResult is what a FeedValidator reports for a candidate URL.
type ValidationResult struct {
	IsValid     bool
	HasItems    bool
	ItemCount   int
	Title       string
	Description string
	Error       string
}

// ClampConfidence bounds c to [MinConfidence, MaxConfidence].
func ClampConfidence(c int) int {
	if c < MinConfidence {
		return MinConfidence
	}
	if c > MaxConfidence {
		return MaxConfidence
	}
	return c
}

// Float64 returns a pointer to v; handy for Candidate.Similarity.
func Float64(v float64) *float64 { return &v }

// DiscoveryAttempt records one adopted or surfaced candidate for a feed.
// Once processed only Accepted and UserNote change.
type DiscoveryAttempt struct {
	ID              int64
	OriginalFeedID  int64
	CandidateFeedID *int64
	CandidateURL    string
	Strategy        string
	Confidence      int
	AutoSubscribed  bool
	Accepted        *bool
	UserNote        string
	Metadata        map[string]any
	ValidatedAt     *time.Time
	ProcessedAt     time.Time
}

// Notification kinds persisted for users.
const (
	NotificationFeedSwitched     = "feed_switched"
	NotificationAlternativeFound = "alternative_found"
)

// Notification is a user-visible record. Delivery happens elsewhere.
type Notification struct {
	ID         int64
	UserID     string
	Kind       string
	OldFeedID  int64
	NewFeedID  int64
	Title      string
	Body       string
	Actionable bool
	CreatedAt  time.Time
}
