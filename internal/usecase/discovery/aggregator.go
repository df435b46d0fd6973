package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/observability/metrics"
	"feed-resilience/internal/observability/tracing"
	"feed-resilience/internal/repository"
)

// Config controls scoring bands and the validation fan-out.
type Config struct {
	MaxValidated          int           // candidates validated per run
	ValidationConcurrency int           // concurrent validations
	PersistTop            int           // survivors recorded as discovery attempts
	AdoptThreshold        int           // minimum confidence for auto-adoption
	SuggestThreshold      int           // minimum confidence for a suggestion
	ValidationBonus       int           // added when a valid feed has entries
	ValidationPenalty     int           // subtracted when validation fails
	StrategyTimeout       time.Duration // per strategy Discover call
	ValidationTimeout     time.Duration // per candidate validation
}

// DefaultConfig returns the production scoring configuration.
func DefaultConfig() Config {
	return Config{
		MaxValidated:          10,
		ValidationConcurrency: 10,
		PersistTop:            3,
		AdoptThreshold:        90,
		SuggestThreshold:      60,
		ValidationBonus:       10,
		ValidationPenalty:     20,
		StrategyTimeout:       45 * time.Second,
		ValidationTimeout:     10 * time.Second,
	}
}

// Aggregator runs the discovery strategies for a broken feed and acts on
// the best validated candidate.
type Aggregator struct {
	strategies []Strategy
	validator  FeedValidator
	catalog    repository.FeedCatalog
	attempts   repository.DiscoveryRepository
	notifier   Notifier
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewAggregator creates an Aggregator. Strategies run in the given order
// for deduplication purposes: an earlier strategy wins a duplicate URL.
func NewAggregator(
	strategies []Strategy,
	validator FeedValidator,
	catalog repository.FeedCatalog,
	attempts repository.DiscoveryRepository,
	notifier Notifier,
	cfg Config,
	logger *slog.Logger,
) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		strategies: strategies,
		validator:  validator,
		catalog:    catalog,
		attempts:   attempts,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Decide maps a validated winner to an action. Adoption requires both the
// adopt threshold and the same source type as the broken feed; a
// high-confidence candidate of another type is only suggested.
func Decide(original *entity.Feed, winner *entity.Candidate, cfg Config) Action {
	if winner == nil {
		return ActionNone
	}
	sameType := strings.EqualFold(winner.SourceType, original.SourceType)
	switch {
	case winner.Confidence >= cfg.AdoptThreshold && sameType:
		return ActionAdopt
	case winner.Confidence >= cfg.SuggestThreshold:
		return ActionSuggest
	default:
		return ActionNone
	}
}

// Run discovers, scores and validates candidates for feed and applies the
// decision. Strategy, validation and attempt-persistence failures never
// fail the run; catalog and migration failures do, so the job is retried.
func (a *Aggregator) Run(ctx context.Context, feed *entity.Feed, opts ...RunOption) (*Outcome, error) {
	if feed == nil {
		return nil, ErrNilFeed
	}
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	ctx, span := tracing.GetTracer().Start(ctx, "discovery.Run",
		trace.WithAttributes(
			attribute.Int64("feed.id", feed.ID),
			attribute.String("feed.source_type", feed.SourceType),
		))
	defer span.End()

	start := a.now()
	logger := a.logger.With(slog.Int64("feed_id", feed.ID))

	applicable := make([]Strategy, 0, len(a.strategies))
	names := make([]string, 0, len(a.strategies))
	for _, s := range a.strategies {
		if s.IsApplicable(feed) {
			applicable = append(applicable, s)
			names = append(names, s.Name())
		}
	}
	if ro.preferred != "" {
		preferFirst(applicable, names, ro.preferred)
	}

	raw := a.collect(ctx, feed, applicable)
	unique := a.filterCandidates(feed, Deduplicate(raw))
	for i := range unique {
		unique[i].Confidence = Score(feed, &unique[i])
	}
	sortByConfidence(unique)

	outcome := &Outcome{
		Action:        ActionNone,
		Evaluated:     len(unique),
		StrategiesRun: names,
	}

	top := unique
	if len(top) > a.cfg.MaxValidated {
		top = top[:a.cfg.MaxValidated]
	}
	survivors := a.validate(ctx, top)
	sortByConfidence(survivors)
	outcome.Candidates = survivors

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("discovery run: %w", err)
	}

	if len(survivors) == 0 {
		outcome.Duration = a.now().Sub(start)
		metrics.RecordDecision(string(ActionNone), 0)
		logger.Info("no valid replacement candidates",
			slog.Int("evaluated", outcome.Evaluated),
			slog.Any("strategies", names))
		return outcome, nil
	}

	winner := survivors[0]
	outcome.Winner = &winner
	outcome.Action = Decide(feed, &winner, a.cfg)

	var err error
	switch outcome.Action {
	case ActionAdopt:
		err = a.adopt(ctx, feed, outcome)
	case ActionSuggest:
		err = a.suggest(ctx, feed, outcome)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	outcome.Persisted = a.persistAttempts(ctx, feed, outcome)
	outcome.Duration = a.now().Sub(start)

	metrics.RecordDecision(string(outcome.Action), outcome.MigratedUsers)
	span.SetAttributes(
		attribute.String("discovery.action", string(outcome.Action)),
		attribute.Int("discovery.confidence", winner.Confidence),
	)
	logger.Info("discovery decision",
		slog.String("action", string(outcome.Action)),
		slog.String("candidate_url", winner.URL),
		slog.String("strategy", winner.Strategy),
		slog.Int("confidence", winner.Confidence),
		slog.Int("evaluated", outcome.Evaluated),
		slog.Int("valid", len(survivors)),
		slog.Int("migrated", outcome.MigratedUsers),
		slog.Int("notified", outcome.NotifiedUsers),
		slog.Duration("duration", outcome.Duration))

	return outcome, nil
}

// preferFirst moves the named strategy to the front, keeping the relative
// order of the rest.
func preferFirst(strategies []Strategy, names []string, preferred string) {
	for i, name := range names {
		if name != preferred {
			continue
		}
		s := strategies[i]
		copy(strategies[1:i+1], strategies[:i])
		copy(names[1:i+1], names[:i])
		strategies[0], names[0] = s, name
		return
	}
}

// collect runs every applicable strategy concurrently and concatenates the
// results in strategy order.
func (a *Aggregator) collect(ctx context.Context, feed *entity.Feed, strategies []Strategy) []entity.Candidate {
	results := make([][]entity.Candidate, len(strategies))

	var g errgroup.Group
	for i, s := range strategies {
		g.Go(func() error {
			results[i] = a.runStrategy(ctx, feed, s)
			return nil
		})
	}
	_ = g.Wait()

	var all []entity.Candidate
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

func (a *Aggregator) runStrategy(ctx context.Context, feed *entity.Feed, s Strategy) (out []entity.Candidate) {
	name := s.Name()
	start := time.Now()

	ctx, span := tracing.GetTracer().Start(ctx, "discovery.strategy",
		trace.WithAttributes(attribute.String("strategy", name)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.StrategyTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic in discovery strategy",
				slog.String("strategy", name),
				slog.Int64("feed_id", feed.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			metrics.RecordStrategyRun(name, time.Since(start), 0, true)
			span.SetStatus(codes.Error, "panic")
			out = nil
		}
	}()

	candidates := s.Discover(ctx, feed)
	for i := range candidates {
		if candidates[i].Strategy == "" {
			candidates[i].Strategy = name
		}
	}

	metrics.RecordStrategyRun(name, time.Since(start), len(candidates), false)
	span.SetAttributes(attribute.Int("strategy.candidates", len(candidates)))
	a.logger.Debug("strategy finished",
		slog.String("strategy", name),
		slog.Int64("feed_id", feed.ID),
		slog.Int("candidates", len(candidates)),
		slog.Duration("duration", time.Since(start)))
	return candidates
}

// filterCandidates drops malformed URLs and the broken feed's own URL.
func (a *Aggregator) filterCandidates(feed *entity.Feed, candidates []entity.Candidate) []entity.Candidate {
	own := strings.ToLower(strings.TrimSpace(feed.URL))
	out := candidates[:0]
	for _, c := range candidates {
		if strings.ToLower(strings.TrimSpace(c.URL)) == own {
			continue
		}
		if err := entity.ValidateCandidateURL(c.URL); err != nil {
			a.logger.Debug("dropping malformed candidate",
				slog.String("url", c.URL),
				slog.String("strategy", c.Strategy),
				slog.Any("error", err))
			continue
		}
		out = append(out, c)
	}
	return out
}

// validate checks candidates concurrently and returns the valid ones with
// adjusted confidence.
func (a *Aggregator) validate(ctx context.Context, candidates []entity.Candidate) []entity.Candidate {
	validated := make([]entity.Candidate, len(candidates))
	copy(validated, candidates)

	var g errgroup.Group
	g.SetLimit(a.cfg.ValidationConcurrency)
	for i := range validated {
		g.Go(func() error {
			c := &validated[i]
			vctx, cancel := context.WithTimeout(ctx, a.cfg.ValidationTimeout)
			defer cancel()

			res := a.validator.ValidateCandidate(vctx, c.URL)
			applyValidation(c, res, a.cfg)
			metrics.RecordCandidateValidation(res.IsValid, c.Confidence)
			return nil
		})
	}
	_ = g.Wait()

	survivors := make([]entity.Candidate, 0, len(validated))
	for _, c := range validated {
		if c.Validation != nil && c.Validation.IsValid {
			survivors = append(survivors, c)
		}
	}
	return survivors
}

// applyValidation folds a validation result into the candidate.
func applyValidation(c *entity.Candidate, res entity.ValidationResult, cfg Config) {
	if res.IsValid {
		if c.Title == "" {
			c.Title = res.Title
		}
		if c.Description == "" {
			c.Description = res.Description
		}
		if res.HasItems || res.ItemCount > 0 {
			c.Confidence += cfg.ValidationBonus
		}
	} else {
		c.Confidence -= cfg.ValidationPenalty
	}
	c.Confidence = entity.ClampConfidence(c.Confidence)
	c.Validation = &res
}

func (a *Aggregator) adopt(ctx context.Context, feed *entity.Feed, outcome *Outcome) error {
	newFeed, err := a.catalog.InsertOrFindCatalogEntry(ctx, outcome.Winner)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCatalogEntry, err)
	}
	outcome.NewFeed = newFeed

	migrated, err := a.catalog.AutoSubscribeUsersToAlternative(ctx, feed.ID, newFeed.ID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}
	outcome.MigratedUsers = len(migrated)

	if len(migrated) == 0 {
		return nil
	}
	if err := a.notifier.NotifyUsersOfSwitch(ctx, migrated, feed, newFeed); err != nil {
		a.logger.Warn("failed to record switch notifications",
			slog.Int64("feed_id", feed.ID),
			slog.Int64("new_feed_id", newFeed.ID),
			slog.Any("error", err))
		return nil
	}
	outcome.NotifiedUsers = len(migrated)
	return nil
}

func (a *Aggregator) suggest(ctx context.Context, feed *entity.Feed, outcome *Outcome) error {
	newFeed, err := a.catalog.InsertOrFindCatalogEntry(ctx, outcome.Winner)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCatalogEntry, err)
	}
	outcome.NewFeed = newFeed

	subs, err := a.catalog.GetAllFeedSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubscriptions, err)
	}
	users := SubscribersOf(subs, feed.ID)
	if len(users) == 0 {
		return nil
	}

	if err := a.notifier.NotifyUsersOfSuggestion(ctx, users, feed, newFeed); err != nil {
		a.logger.Warn("failed to record suggestion notifications",
			slog.Int64("feed_id", feed.ID),
			slog.Int64("new_feed_id", newFeed.ID),
			slog.Any("error", err))
		return nil
	}
	outcome.NotifiedUsers = len(users)
	return nil
}

// persistAttempts records the top survivors. Failures are logged and
// skipped: losing an attempt record must not undo a healing action.
func (a *Aggregator) persistAttempts(ctx context.Context, feed *entity.Feed, outcome *Outcome) int {
	n := len(outcome.Candidates)
	if n > a.cfg.PersistTop {
		n = a.cfg.PersistTop
	}

	now := a.now()
	saved := 0
	for i := 0; i < n; i++ {
		c := outcome.Candidates[i]
		attempt := &entity.DiscoveryAttempt{
			OriginalFeedID: feed.ID,
			CandidateURL:   c.URL,
			Strategy:       c.Strategy,
			Confidence:     c.Confidence,
			ValidatedAt:    &now,
			ProcessedAt:    now,
			Metadata: map[string]any{
				"action": string(outcome.Action),
				"rank":   i + 1,
				"title":  c.Title,
			},
		}
		if c.Validation != nil {
			attempt.Metadata["item_count"] = c.Validation.ItemCount
		}
		if i == 0 && outcome.NewFeed != nil {
			id := outcome.NewFeed.ID
			attempt.CandidateFeedID = &id
			attempt.AutoSubscribed = outcome.Action == ActionAdopt
		}

		if err := a.attempts.SaveAttempt(ctx, attempt); err != nil {
			a.logger.Warn("failed to persist discovery attempt",
				slog.Int64("feed_id", feed.ID),
				slog.String("candidate_url", c.URL),
				slog.Any("error", err))
			continue
		}
		saved++
	}
	return saved
}

// SubscribersOf returns the distinct active subscribers of feedID.
func SubscribersOf(subs []entity.Subscription, feedID int64) []string {
	seen := make(map[string]struct{})
	var users []string
	for _, s := range subs {
		if s.FeedID != feedID || !s.Active {
			continue
		}
		if _, ok := seen[s.UserID]; ok {
			continue
		}
		seen[s.UserID] = struct{}{}
		users = append(users, s.UserID)
	}
	return users
}
