package healing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/observability/logging"
	"feed-resilience/internal/repository"
	"feed-resilience/internal/usecase/discovery"
	"feed-resilience/internal/usecase/jobqueue"
	"feed-resilience/internal/usecase/learning"
)

// Trigger reasons stored on job metadata.
const (
	TriggerConsecutiveFailures = "consecutive_failures"
	TriggerScan                = "degraded_scan"
)

// Discoverer runs discovery for one broken feed.
type Discoverer interface {
	Run(ctx context.Context, feed *entity.Feed, opts ...discovery.RunOption) (*discovery.Outcome, error)
}

// Learner records healing attempts and recommends tactics.
type Learner interface {
	RecordAttempt(ctx context.Context, attempt *entity.HealingAttempt) error
	BestTactic(ctx context.Context, feed *entity.Feed) (learning.Recommendation, error)
}

// Config tunes the engine.
type Config struct {
	// FailureThreshold is the consecutive failure count that triggers
	// discovery.
	FailureThreshold int
	// RescanCooldown keeps the degraded scan from re-enqueuing a feed
	// healed or tried within this window.
	RescanCooldown time.Duration
	Queue          jobqueue.Config
}

// DefaultConfig returns the standard engine settings.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		RescanCooldown:   6 * time.Hour,
		Queue:            jobqueue.DefaultConfig(),
	}
}

// Deps are the engine's collaborators.
type Deps struct {
	Catalog    repository.FeedCatalog
	Discovery  repository.DiscoveryRepository
	Healing    repository.HealingRepository
	Discoverer Discoverer
	Learner    Learner
	Logger     *slog.Logger
}

// Engine coordinates failure tracking, the job queue and discovery.
type Engine struct {
	catalog    repository.FeedCatalog
	attempts   repository.DiscoveryRepository
	healing    repository.HealingRepository
	discoverer Discoverer
	learner    Learner
	processor  *jobqueue.Processor
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine wires an engine and its job processor. opts are passed to the
// processor.
func NewEngine(deps Deps, cfg Config, opts ...jobqueue.Option) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	e := &Engine{
		catalog:    deps.Catalog,
		attempts:   deps.Discovery,
		healing:    deps.Healing,
		discoverer: deps.Discoverer,
		learner:    deps.Learner,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
	e.processor = jobqueue.NewProcessor(jobqueue.NewQueue(), e, deps.Discovery, cfg.Queue, logger, opts...)
	return e
}

// Processor exposes the job processor for the worker loop and stats.
func (e *Engine) Processor() *jobqueue.Processor {
	return e.processor
}

// RecordFetchFailure stores a failed fetch on feed and enqueues discovery
// once the consecutive failure count reaches the threshold. It returns the
// new job, or nil when no job was created.
func (e *Engine) RecordFetchFailure(ctx context.Context, feed *entity.Feed, fetchErr error) (*jobqueue.Job, error) {
	if feed == nil {
		return nil, ErrNilFeed
	}

	errType := entity.ClassifyError(fetchErr)
	failures := feed.ConsecutiveFailures + 1
	status := entity.FetchStatusError
	if errType.IsPermanent() {
		status = entity.FetchStatusPermanentError
	}
	msg := ""
	if fetchErr != nil {
		msg = fetchErr.Error()
	}
	now := e.now()

	patch := entity.HealthPatch{
		ConsecutiveFailures: &failures,
		LastFetchStatus:     &status,
		LastErrorMessage:    &msg,
		LastFetchedAt:       &now,
	}
	if err := e.catalog.UpdateFeedHealth(ctx, feed.ID, patch); err != nil {
		return nil, fmt.Errorf("update feed health: %w", err)
	}
	feed.ConsecutiveFailures = failures
	feed.LastFetchStatus = status
	feed.LastErrorMessage = msg
	feed.LastFetchedAt = &now

	e.logger.Info("feed fetch failed",
		slog.Int64("feed_id", feed.ID),
		slog.String("error_type", string(errType)),
		slog.Int("consecutive_failures", failures))

	if failures < e.cfg.FailureThreshold {
		return nil, nil
	}

	subscribers := e.subscriberCount(ctx, feed.ID)
	return e.enqueue(ctx, feed.ID, jobqueue.EnqueueOptions{
		SubscriberCount: subscribers,
		LastErrorType:   string(errType),
		TriggerReason:   TriggerConsecutiveFailures,
	})
}

// RecordFetchSuccess clears a feed's failure state.
func (e *Engine) RecordFetchSuccess(ctx context.Context, feed *entity.Feed) error {
	if feed == nil {
		return ErrNilFeed
	}
	zero := 0
	status := entity.FetchStatusOK
	empty := ""
	now := e.now()
	patch := entity.HealthPatch{
		ConsecutiveFailures: &zero,
		LastFetchStatus:     &status,
		LastErrorMessage:    &empty,
		LastFetchedAt:       &now,
	}
	if err := e.catalog.UpdateFeedHealth(ctx, feed.ID, patch); err != nil {
		return fmt.Errorf("update feed health: %w", err)
	}
	feed.ConsecutiveFailures = 0
	feed.LastFetchStatus = status
	feed.LastErrorMessage = ""
	feed.LastFetchedAt = &now
	return nil
}

// ScanResult summarizes one degraded-feed scan.
type ScanResult struct {
	Scanned  int
	Degraded int
	Enqueued int
	Skipped  int
}

// ScanDegradedFeeds enqueues every active feed at or over the failure
// threshold. Jobs live in memory only, so this also restores the queue
// after a restart.
func (e *Engine) ScanDegradedFeeds(ctx context.Context) (ScanResult, error) {
	var res ScanResult

	feeds, err := e.catalog.GetFeedCatalog(ctx, entity.CatalogFilter{ActiveOnly: true})
	if err != nil {
		return res, fmt.Errorf("feed catalog: %w", err)
	}
	res.Scanned = len(feeds)

	var subs []entity.Subscription
	subsLoaded := false

	for _, feed := range feeds {
		if feed.ConsecutiveFailures < e.cfg.FailureThreshold {
			continue
		}
		res.Degraded++

		if e.recentlyAttempted(ctx, feed.ID) {
			res.Skipped++
			continue
		}

		if !subsLoaded {
			subs, err = e.catalog.GetAllFeedSubscriptions(ctx)
			if err != nil {
				e.logger.Warn("list subscriptions for scan failed", slog.Any("error", err))
			}
			subsLoaded = true
		}

		job, err := e.enqueue(ctx, feed.ID, jobqueue.EnqueueOptions{
			SubscriberCount: len(discovery.SubscribersOf(subs, feed.ID)),
			LastErrorType:   string(entity.ClassifyErrorMessage(feed.LastErrorMessage)),
			TriggerReason:   TriggerScan,
		})
		if err != nil {
			e.logger.Warn("enqueue from scan failed",
				slog.Int64("feed_id", feed.ID),
				slog.Any("error", err))
			res.Skipped++
			continue
		}
		if job == nil {
			res.Skipped++
			continue
		}
		res.Enqueued++
	}

	e.logger.Info("degraded feed scan finished",
		slog.Int("scanned", res.Scanned),
		slog.Int("degraded", res.Degraded),
		slog.Int("enqueued", res.Enqueued),
		slog.Int("skipped", res.Skipped))
	return res, nil
}

// recentlyAttempted reports whether the feed has a healing attempt newer
// than RescanCooldown. Lookup errors count as not attempted.
func (e *Engine) recentlyAttempted(ctx context.Context, feedID int64) bool {
	if e.cfg.RescanCooldown <= 0 || e.healing == nil {
		return false
	}
	recent, err := e.healing.RecentAttempts(ctx, feedID, 1)
	if err != nil || len(recent) == 0 {
		return false
	}
	return e.now().Sub(recent[0].CreatedAt) < e.cfg.RescanCooldown
}

// enqueue treats duplicate and capped feeds as "no job" rather than errors.
func (e *Engine) enqueue(ctx context.Context, feedID int64, opts jobqueue.EnqueueOptions) (*jobqueue.Job, error) {
	job, err := e.processor.Enqueue(ctx, feedID, opts)
	switch {
	case errors.Is(err, jobqueue.ErrAlreadyQueued), errors.Is(err, jobqueue.ErrAttemptCapReached):
		e.logger.Debug("discovery not enqueued",
			slog.Int64("feed_id", feedID),
			slog.String("reason", err.Error()))
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("enqueue discovery: %w", err)
	}
	return job, nil
}

func (e *Engine) subscriberCount(ctx context.Context, feedID int64) int {
	subs, err := e.catalog.GetAllFeedSubscriptions(ctx)
	if err != nil {
		e.logger.Warn("list subscriptions failed; using low priority",
			slog.Int64("feed_id", feedID),
			slog.Any("error", err))
		return 0
	}
	return len(discovery.SubscribersOf(subs, feedID))
}

// RespondToSuggestion records a user's answer to a surfaced alternative.
func (e *Engine) RespondToSuggestion(ctx context.Context, attemptID int64, accepted bool, note string) error {
	attempt, err := e.attempts.Get(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("get discovery attempt: %w", err)
	}
	if attempt == nil {
		return ErrAttemptNotFound
	}
	if err := e.attempts.MarkAccepted(ctx, attemptID, accepted, note); err != nil {
		return fmt.Errorf("mark accepted: %w", err)
	}
	e.logger.Info("suggestion answered",
		slog.Int64("attempt_id", attemptID),
		slog.Int64("feed_id", attempt.OriginalFeedID),
		slog.Bool("accepted", accepted))
	return nil
}

// ResetDiscoveryAttempts lifts the attempt cap of a feed.
func (e *Engine) ResetDiscoveryAttempts(ctx context.Context, feedID int64) error {
	if err := e.attempts.ResetAttempts(ctx, feedID); err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	e.logger.Info("discovery attempts reset", slog.Int64("feed_id", feedID))
	return nil
}

// HandleJob runs discovery for a queued feed and feeds the result to the
// learning loop. Only lookup and discovery errors are returned; learning
// failures are logged.
func (e *Engine) HandleJob(ctx context.Context, job *jobqueue.Job) error {
	logger := logging.WithJobID(ctx, e.logger).With(slog.Int64("feed_id", job.FeedID))

	feed, err := e.catalog.GetFeedByID(ctx, job.FeedID)
	if err != nil {
		return fmt.Errorf("get feed: %w", err)
	}
	if feed == nil {
		logger.Info("feed no longer in catalog; dropping job")
		return nil
	}
	if !feed.IsActive {
		logger.Info("feed inactive; dropping job")
		return nil
	}
	if feed.ConsecutiveFailures == 0 && feed.LastFetchStatus == entity.FetchStatusOK {
		logger.Info("feed recovered before discovery; dropping job")
		return nil
	}

	rec, err := e.learner.BestTactic(ctx, feed)
	if err != nil {
		logger.Warn("tactic recommendation failed", slog.Any("error", err))
		rec = learning.Recommendation{Source: learning.SourceNone}
	}

	var opts []discovery.RunOption
	if rec.Tactic != "" {
		opts = append(opts, discovery.PreferStrategy(rec.Tactic))
	}
	outcome, err := e.discoverer.Run(ctx, feed, opts...)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}

	attempt := e.healingAttempt(job, feed, rec, outcome)
	if err := e.learner.RecordAttempt(ctx, attempt); err != nil {
		logger.Warn("record healing attempt failed", slog.Any("error", err))
	}
	return nil
}

func (e *Engine) healingAttempt(job *jobqueue.Job, feed *entity.Feed, rec learning.Recommendation, outcome *discovery.Outcome) *entity.HealingAttempt {
	tactic := entity.TacticAllStrategies
	switch {
	case outcome.Winner != nil:
		tactic = outcome.Winner.Strategy
	case rec.Tactic != "":
		tactic = rec.Tactic
	}

	success := outcome.Action != discovery.ActionNone
	meta := map[string]any{
		"job_id":         job.ID,
		"retry_count":    job.RetryCount,
		"trigger":        job.Metadata.TriggerReason,
		"action":         string(outcome.Action),
		"evaluated":      outcome.Evaluated,
		"recommendation": rec.Source,
	}
	if outcome.Winner != nil {
		meta["candidate_url"] = outcome.Winner.URL
		meta["confidence"] = outcome.Winner.Confidence
	}

	a := &entity.HealingAttempt{
		FeedID:       feed.ID,
		Tactic:       tactic,
		Success:      success,
		ResponseTime: outcome.Duration,
		CreatedAt:    e.now(),
		Metadata:     meta,
	}
	if !success {
		a.ErrorMessage = feed.LastErrorMessage
	}
	return a
}
