package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is one scheduled unit of work.
type JobFunc func(ctx context.Context) error

// Scheduler runs named jobs on cron schedules with a per-run timeout,
// logging and metrics. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron    *cron.Cron
	metrics *WorkerMetrics
	logger  *slog.Logger
	base    context.Context
}

// NewScheduler creates a scheduler in loc. Job contexts derive from ctx, so
// cancelling it aborts running jobs. metrics may be nil.
func NewScheduler(ctx context.Context, loc *time.Location, metrics *WorkerMetrics, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		metrics: metrics,
		logger:  logger,
		base:    ctx,
	}
}

// Add registers fn under name on a five-field cron schedule.
func (s *Scheduler) Add(name, schedule string, timeout time.Duration, fn JobFunc) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.run(name, timeout, fn) }); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.logger.Info("job scheduled", slog.String("job", name), slog.String("schedule", schedule))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(name string, timeout time.Duration, fn JobFunc) {
	start := time.Now()
	ctx := s.base
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := s.safeCall(ctx, name, fn)
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "failure"
		s.logger.Error("job failed",
			slog.String("job", name),
			slog.Duration("duration", elapsed),
			slog.Any("error", err))
	} else {
		s.logger.Info("job completed", slog.String("job", name), slog.Duration("duration", elapsed))
	}

	if s.metrics != nil {
		s.metrics.RecordJobRun(name, status)
		s.metrics.RecordJobDuration(name, elapsed)
		if err == nil {
			s.metrics.RecordLastSuccess(name)
		}
	}
}

func (s *Scheduler) safeCall(ctx context.Context, name string, fn JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", name, r)
		}
	}()
	return fn(ctx)
}
