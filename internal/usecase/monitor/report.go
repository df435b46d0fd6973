package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"feed-resilience/internal/observability/metrics"
)

// Report is the composite health report.
type Report struct {
	GeneratedAt     time.Time        `json:"generated_at"`
	Status          string           `json:"status"`
	Metrics         *Metrics         `json:"metrics"`
	Trend           []TrendPoint     `json:"trend"`
	CriticalFeeds   []CriticalFeed   `json:"critical_feeds"`
	FailurePatterns []FailurePattern `json:"failure_patterns"`
	Recommendations []string         `json:"recommendations"`
	CriticalIssues  []string         `json:"critical_issues"`
}

// StatusFor maps a success rate to a health status. An empty window is
// healthy: nothing needed healing.
func (m *Monitor) StatusFor(met *Metrics) string {
	switch {
	case met.TotalAttempts == 0 || met.SuccessRate >= m.cfg.HealthyRate:
		return StatusHealthy
	case met.SuccessRate >= m.cfg.DegradedRate:
		return StatusDegraded
	default:
		return StatusCritical
	}
}

// Report builds the health report. It only reads; any aggregation error
// is returned.
func (m *Monitor) Report(ctx context.Context) (*Report, error) {
	met, err := m.Metrics(ctx, m.cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	trend, err := m.Trend(ctx, m.cfg.TrendDays)
	if err != nil {
		return nil, fmt.Errorf("trend: %w", err)
	}
	critical, err := m.CriticalFeeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("critical feeds: %w", err)
	}
	patterns, err := m.FailurePatterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failure patterns: %w", err)
	}

	r := &Report{
		GeneratedAt:     m.now(),
		Status:          m.StatusFor(met),
		Metrics:         met,
		Trend:           trend,
		CriticalFeeds:   critical,
		FailurePatterns: patterns,
	}
	r.Recommendations, r.CriticalIssues = m.advise(met, critical, patterns)
	return r, nil
}

// Publish exports r as gauges and alerts on a critical status. The
// scheduled report job calls it; alert failures are logged.
func (m *Monitor) Publish(ctx context.Context, r *Report) {
	if r == nil || r.Metrics == nil {
		return
	}
	metrics.UpdateHealthReport(r.Status, r.Metrics.SuccessRate, map[string]int{
		"healing": r.Metrics.FeedsHealing,
		"healed":  r.Metrics.FeedsHealed,
		"failed":  r.Metrics.FeedsFailed,
	}, len(r.CriticalFeeds))

	if r.Status == StatusCritical && m.alerter != nil {
		if err := m.alerter.AlertHealthReport(ctx, r); err != nil {
			m.logger.Warn("health alert failed", slog.Any("error", err))
		}
	}
}

func (m *Monitor) advise(met *Metrics, critical []CriticalFeed, patterns []FailurePattern) (recs, issues []string) {
	pct := int(met.SuccessRate*100 + 0.5)

	switch {
	case met.TotalAttempts == 0:
		recs = append(recs, "No healing attempts in the reporting window")
	case met.SuccessRate < m.cfg.DegradedRate:
		issues = append(issues, fmt.Sprintf("Healing success rate is %d%%, below %d%%", pct, int(m.cfg.DegradedRate*100)))
		recs = append(recs, "Review discovery strategies; most healing attempts are failing")
	case met.SuccessRate < m.cfg.HealthyRate:
		recs = append(recs, fmt.Sprintf("Healing success rate is %d%%; review the weakest tactics", pct))
	}

	for _, name := range sortedKeys(met.Tactics) {
		ts := met.Tactics[name]
		if ts.Attempts >= m.cfg.WeakTacticMinAttempts && ts.SuccessRate < m.cfg.WeakTacticRate {
			recs = append(recs, fmt.Sprintf("Tactic %s succeeds in %d%% of %d attempts; consider deprioritising it",
				name, int(ts.SuccessRate*100+0.5), ts.Attempts))
		}
	}

	if len(critical) > 0 {
		issues = append(issues, fmt.Sprintf("%d feeds are failing persistently", len(critical)))
	}
	if met.FeedsFailed > met.FeedsHealed {
		recs = append(recs, fmt.Sprintf("%d feeds failed healing against %d healed; consider manual review",
			met.FeedsFailed, met.FeedsHealed))
	}
	if len(patterns) > 0 {
		top := patterns[0]
		recs = append(recs, fmt.Sprintf("Most failures are %s (%d): %s", top.Category, top.Count, top.Remediation))
	}
	return recs, issues
}

func sortedKeys(m map[string]TacticStats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
