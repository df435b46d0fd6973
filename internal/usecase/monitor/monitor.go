// Package monitor aggregates the healing attempt log, profiles and feed
// health into metrics, trends and health reports. It is read-only.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/repository"
)

// Health statuses.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusCritical = "critical"
)

// CatalogReader lists catalog feeds.
type CatalogReader interface {
	GetFeedCatalog(ctx context.Context, filter entity.CatalogFilter) ([]*entity.Feed, error)
}

// Alerter is told about critical health reports.
type Alerter interface {
	AlertHealthReport(ctx context.Context, report *Report) error
}

// Config holds report windows and thresholds.
type Config struct {
	Window           time.Duration
	TrendDays        int
	CriticalFailures int
	HealthyRate      float64
	DegradedRate     float64
	// WeakTacticRate flags tactics with at least WeakTacticMinAttempts
	// attempts and a success rate below it.
	WeakTacticRate        float64
	WeakTacticMinAttempts int
}

// DefaultConfig returns the standard monitor settings.
func DefaultConfig() Config {
	return Config{
		Window:                7 * 24 * time.Hour,
		TrendDays:             7,
		CriticalFailures:      5,
		HealthyRate:           0.8,
		DegradedRate:          0.5,
		WeakTacticRate:        0.3,
		WeakTacticMinAttempts: 5,
	}
}

// TacticStats is the success record of one tactic.
type TacticStats struct {
	Attempts    int     `json:"attempts"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
}

// Metrics summarizes healing over a window.
type Metrics struct {
	Window             time.Duration          `json:"window"`
	TotalAttempts      int                    `json:"total_attempts"`
	Successes          int                    `json:"successes"`
	SuccessRate        float64                `json:"success_rate"`
	Tactics            map[string]TacticStats `json:"tactics"`
	AvgHealingDuration time.Duration          `json:"avg_healing_duration"`
	FeedsHealing       int                    `json:"feeds_healing"`
	FeedsHealed        int                    `json:"feeds_healed"`
	FeedsFailed        int                    `json:"feeds_failed"`
}

// TrendPoint is one UTC day of attempts.
type TrendPoint struct {
	Date        time.Time `json:"date"`
	Attempts    int       `json:"attempts"`
	Successes   int       `json:"successes"`
	SuccessRate float64   `json:"success_rate"`
}

// CriticalFeed is a feed failing persistently or permanently.
type CriticalFeed struct {
	FeedID              int64  `json:"feed_id"`
	URL                 string `json:"url"`
	Title               string `json:"title,omitempty"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastFetchStatus     string `json:"last_fetch_status"`
	LastErrorMessage    string `json:"last_error_message,omitempty"`
}

// Monitor computes health views.
type Monitor struct {
	healing repository.HealingRepository
	catalog CatalogReader
	alerter Alerter
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithAlerter sends critical reports to a.
func WithAlerter(a Alerter) Option {
	return func(m *Monitor) { m.alerter = a }
}

// New creates a Monitor.
func New(healing repository.HealingRepository, catalog CatalogReader, cfg Config, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		healing: healing,
		catalog: catalog,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Metrics aggregates attempts created within window of now.
func (m *Monitor) Metrics(ctx context.Context, window time.Duration) (*Metrics, error) {
	attempts, err := m.healing.AttemptsSince(ctx, m.now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("attempts since: %w", err)
	}

	out := &Metrics{Window: window, Tactics: make(map[string]TacticStats)}
	var healedTotal time.Duration
	for _, a := range attempts {
		out.TotalAttempts++
		ts := out.Tactics[a.Tactic]
		ts.Attempts++
		if a.Success {
			out.Successes++
			ts.Successes++
			healedTotal += a.ResponseTime
		}
		out.Tactics[a.Tactic] = ts
	}
	out.SuccessRate = rate(out.Successes, out.TotalAttempts)
	for name, ts := range out.Tactics {
		ts.SuccessRate = rate(ts.Successes, ts.Attempts)
		out.Tactics[name] = ts
	}
	if out.Successes > 0 {
		out.AvgHealingDuration = healedTotal / time.Duration(out.Successes)
	}

	counts := map[string]*int{
		entity.HealingStatusHealing: &out.FeedsHealing,
		entity.HealingStatusHealed:  &out.FeedsHealed,
		entity.HealingStatusFailed:  &out.FeedsFailed,
	}
	for status, dst := range counts {
		ids, err := m.healing.FeedsByHealingStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("feeds by healing status %s: %w", status, err)
		}
		*dst = len(ids)
	}
	return out, nil
}

// Trend returns one point per UTC day for the last days days, oldest first.
// Days without attempts are included with zero counts.
func (m *Monitor) Trend(ctx context.Context, days int) ([]TrendPoint, error) {
	if days <= 0 {
		return nil, nil
	}
	today := m.now().UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -(days - 1))

	attempts, err := m.healing.AttemptsSince(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("attempts since: %w", err)
	}

	points := make([]TrendPoint, days)
	for i := range points {
		points[i].Date = start.AddDate(0, 0, i)
	}
	for _, a := range attempts {
		idx := int(a.CreatedAt.UTC().Sub(start) / (24 * time.Hour))
		if idx < 0 || idx >= days {
			continue
		}
		points[idx].Attempts++
		if a.Success {
			points[idx].Successes++
		}
	}
	for i := range points {
		points[i].SuccessRate = rate(points[i].Successes, points[i].Attempts)
	}
	return points, nil
}

// CriticalFeeds lists active feeds with at least CriticalFailures
// consecutive failures or a permanent error, worst first.
func (m *Monitor) CriticalFeeds(ctx context.Context) ([]CriticalFeed, error) {
	feeds, err := m.catalog.GetFeedCatalog(ctx, entity.CatalogFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("feed catalog: %w", err)
	}

	var out []CriticalFeed
	for _, f := range feeds {
		if f.ConsecutiveFailures < m.cfg.CriticalFailures && f.LastFetchStatus != entity.FetchStatusPermanentError {
			continue
		}
		out = append(out, CriticalFeed{
			FeedID:              f.ID,
			URL:                 f.URL,
			Title:               f.Title,
			ConsecutiveFailures: f.ConsecutiveFailures,
			LastFetchStatus:     f.LastFetchStatus,
			LastErrorMessage:    f.LastErrorMessage,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ConsecutiveFailures != out[j].ConsecutiveFailures {
			return out[i].ConsecutiveFailures > out[j].ConsecutiveFailures
		}
		return out[i].FeedID < out[j].FeedID
	})
	return out, nil
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
