package discovery

import (
	"context"
	"time"

	"feed-resilience/internal/domain/entity"
)

// Strategy proposes replacement candidates for a broken feed.
// Discover must not return errors: failures are logged inside the strategy
// and yield an empty slice, so one strategy never blocks the others.
type Strategy interface {
	Name() string
	IsApplicable(feed *entity.Feed) bool
	Discover(ctx context.Context, feed *entity.Feed) []entity.Candidate
}

// FeedValidator fetches a candidate URL and tries to parse it as a feed.
type FeedValidator interface {
	ValidateCandidate(ctx context.Context, url string) entity.ValidationResult
}

// Notifier records user-facing notifications. Delivery is external.
type Notifier interface {
	NotifyUsersOfSwitch(ctx context.Context, userIDs []string, oldFeed, newFeed *entity.Feed) error
	NotifyUsersOfSuggestion(ctx context.Context, userIDs []string, oldFeed, newFeed *entity.Feed) error
}

// Action is the decision taken for a broken feed.
type Action string

const (
	ActionAdopt   Action = "adopt"
	ActionSuggest Action = "suggest"
	ActionNone    Action = "none"
)

// Outcome summarizes one aggregator run.
type Outcome struct {
	Action Action
	// Winner is the top validated candidate, nil when nothing survived.
	Winner *entity.Candidate
	// NewFeed is the catalog entry of the winner for adopt and suggest.
	NewFeed *entity.Feed
	// Candidates are the validated survivors, best first.
	Candidates []entity.Candidate
	// Evaluated is the number of unique candidates that were scored.
	Evaluated int
	// StrategiesRun lists the applicable strategies in execution order.
	StrategiesRun []string
	Persisted     int
	MigratedUsers int
	NotifiedUsers int
	Duration      time.Duration
}

// RunOption adjusts a single Run.
type RunOption func(*runOptions)

type runOptions struct {
	preferred string
}

// PreferStrategy runs the named strategy first so its candidates win
// duplicate URLs. Unknown names are ignored.
func PreferStrategy(name string) RunOption {
	return func(o *runOptions) { o.preferred = name }
}
