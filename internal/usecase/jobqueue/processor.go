package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"feed-resilience/internal/observability/logging"
	"feed-resilience/internal/observability/metrics"
	"feed-resilience/internal/observability/tracing"
)

// Processor defaults.
const (
	DefaultPollInterval = 30 * time.Second
	DefaultBatchSize    = 3
	DefaultMaxAttempts  = 3
	DefaultMaxRetries   = 3
	DefaultJobTimeout   = 5 * time.Minute
)

// Handler processes a single job. A returned error sends the job through
// the retry path.
type Handler interface {
	HandleJob(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) error

// HandleJob calls f(ctx, job).
func (f HandlerFunc) HandleJob(ctx context.Context, job *Job) error { return f(ctx, job) }

// AttemptCounter reports the persisted discovery attempt count of a feed.
type AttemptCounter interface {
	CountAttempts(ctx context.Context, feedID int64) (int, error)
}

// AbandonFunc is called after a job is dropped for good.
type AbandonFunc func(ctx context.Context, job *Job, err error)

// Config tunes a Processor.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxAttempts caps persisted discovery attempts per feed.
	MaxAttempts int
	// MaxRetries is how many times a failing job is requeued.
	MaxRetries int
	JobTimeout time.Duration
}

// DefaultConfig returns the standard processor settings.
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		BatchSize:    DefaultBatchSize,
		MaxAttempts:  DefaultMaxAttempts,
		MaxRetries:   DefaultMaxRetries,
		JobTimeout:   DefaultJobTimeout,
	}
}

// EnqueueOptions carries job metadata. Priority overrides the
// subscriber-derived priority when set.
type EnqueueOptions struct {
	Priority        *Priority
	SubscriberCount int
	LastErrorType   string
	TriggerReason   string
}

// Stats is a point-in-time view of the processor.
type Stats struct {
	Queued     int            `json:"queued"`
	InFlight   int            `json:"in_flight"`
	ByPriority map[string]int `json:"by_priority"`
	Enqueued   int64          `json:"enqueued"`
	Completed  int64          `json:"completed"`
	Requeued   int64          `json:"requeued"`
	Abandoned  int64          `json:"abandoned"`
	LastRunAt  *time.Time     `json:"last_run_at,omitempty"`
}

// Processor drains the queue in small concurrent batches.
type Processor struct {
	queue     *Queue
	handler   Handler
	attempts  AttemptCounter
	cfg       Config
	logger    *slog.Logger
	onAbandon AbandonFunc
	now       func() time.Time

	enqueued  atomic.Int64
	completed atomic.Int64
	requeued  atomic.Int64
	abandoned atomic.Int64

	mu        sync.Mutex
	lastRunAt time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithAbandonHook registers fn to run when a job is abandoned.
func WithAbandonHook(fn AbandonFunc) Option {
	return func(p *Processor) { p.onAbandon = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// NewProcessor creates a Processor over queue. Zero config values fall back
// to the defaults.
func NewProcessor(queue *Queue, handler Handler, attempts AttemptCounter, cfg Config, logger *slog.Logger, opts ...Option) *Processor {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		queue:    queue,
		handler:  handler,
		attempts: attempts,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue schedules a discovery job for feedID. It returns ErrAlreadyQueued
// when the feed is queued or processing and ErrAttemptCapReached when the
// feed used up its persisted attempts.
func (p *Processor) Enqueue(ctx context.Context, feedID int64, opts EnqueueOptions) (*Job, error) {
	if feedID <= 0 {
		return nil, ErrInvalidFeedID
	}
	if _, ok := p.queue.State(feedID); ok {
		metrics.RecordJobEvent("duplicate")
		return nil, ErrAlreadyQueued
	}

	n, err := p.attempts.CountAttempts(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if n >= p.cfg.MaxAttempts {
		metrics.RecordJobEvent("capped")
		p.logger.Info("discovery attempt cap reached",
			slog.Int64("feed_id", feedID),
			slog.Int("attempts", n))
		return nil, ErrAttemptCapReached
	}

	priority := PriorityFromSubscribers(opts.SubscriberCount)
	if opts.Priority != nil {
		priority = *opts.Priority
	}

	job := &Job{
		ID:        uuid.NewString(),
		FeedID:    feedID,
		Priority:  priority,
		CreatedAt: p.now(),
		Metadata: Metadata{
			SubscriberCount: opts.SubscriberCount,
			LastErrorType:   opts.LastErrorType,
			TriggerReason:   opts.TriggerReason,
		},
	}
	if !p.queue.Push(job) {
		metrics.RecordJobEvent("duplicate")
		return nil, ErrAlreadyQueued
	}

	p.enqueued.Add(1)
	metrics.RecordJobEvent("enqueued")
	p.updateDepth()

	p.logger.Info("discovery job enqueued",
		slog.String("job_id", job.ID),
		slog.Int64("feed_id", feedID),
		slog.String("priority", priority.String()),
		slog.String("trigger", opts.TriggerReason))
	return job, nil
}

// Run polls the queue every PollInterval until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.logger.Info("job processor started",
		slog.Duration("poll_interval", p.cfg.PollInterval),
		slog.Int("batch_size", p.cfg.BatchSize))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("job processor stopped")
			return nil
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch pops up to BatchSize jobs, runs them concurrently and
// waits for all of them. It returns the number of jobs processed.
func (p *Processor) ProcessBatch(ctx context.Context) int {
	p.mu.Lock()
	p.lastRunAt = p.now()
	p.mu.Unlock()

	batch := p.queue.PopBatch(p.cfg.BatchSize)
	if len(batch) == 0 {
		return 0
	}
	p.updateDepth()

	eg, egCtx := errgroup.WithContext(ctx)
	for _, job := range batch {
		eg.Go(func() error {
			p.process(egCtx, job)
			return nil
		})
	}
	_ = eg.Wait()

	p.updateDepth()
	return len(batch)
}

func (p *Processor) process(ctx context.Context, job *Job) {
	ctx, span := tracing.GetTracer().Start(ctx, "jobqueue.process",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.Int64("feed.id", job.FeedID),
			attribute.String("job.priority", job.Priority.String()),
			attribute.Int("job.retry_count", job.RetryCount),
		))
	defer span.End()

	ctx = logging.ContextWithJobID(ctx, job.ID)
	logger := logging.WithJobID(ctx, p.logger)

	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	start := p.now()
	err := p.handle(jobCtx, job)
	metrics.RecordJobDuration(p.now().Sub(start))

	if err == nil {
		p.queue.Complete(job.FeedID)
		p.completed.Add(1)
		metrics.RecordJobEvent("completed")
		span.SetStatus(codes.Ok, "")
		logger.Info("discovery job completed",
			slog.Int64("feed_id", job.FeedID),
			slog.Duration("duration", p.now().Sub(start)))
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if p.queue.Requeue(job, p.cfg.MaxRetries) {
		p.requeued.Add(1)
		metrics.RecordJobEvent("requeued")
		logger.Warn("discovery job failed, requeued",
			slog.Int64("feed_id", job.FeedID),
			slog.Int("retry_count", job.RetryCount),
			slog.String("priority", job.Priority.String()),
			slog.Any("error", err))
		return
	}

	p.abandoned.Add(1)
	metrics.RecordJobEvent("abandoned")
	logger.Error("discovery job abandoned",
		slog.Int64("feed_id", job.FeedID),
		slog.Int("retry_count", job.RetryCount),
		slog.Any("error", err))
	if p.onAbandon != nil {
		p.onAbandon(ctx, job, err)
	}
}

// handle runs the handler, turning a panic into an error.
func (p *Processor) handle(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	if p.handler == nil {
		return errors.New("no job handler configured")
	}
	return p.handler.HandleJob(ctx, job)
}

func (p *Processor) updateDepth() {
	metrics.UpdateQueueDepth(p.depthByName(), p.queue.InFlight())
}

func (p *Processor) depthByName() map[string]int {
	depth := p.queue.DepthByPriority()
	out := make(map[string]int, len(depth))
	for prio, n := range depth {
		out[prio.String()] = n
	}
	return out
}

// Stats returns a snapshot of queue and lifetime counters.
func (p *Processor) Stats() Stats {
	s := Stats{
		Queued:     p.queue.Len(),
		InFlight:   p.queue.InFlight(),
		ByPriority: p.depthByName(),
		Enqueued:   p.enqueued.Load(),
		Completed:  p.completed.Load(),
		Requeued:   p.requeued.Load(),
		Abandoned:  p.abandoned.Load(),
	}
	p.mu.Lock()
	if !p.lastRunAt.IsZero() {
		t := p.lastRunAt
		s.LastRunAt = &t
	}
	p.mu.Unlock()
	return s
}
