package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Discovery metrics track strategies, scoring and the resulting decisions.
var (
	StrategyRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_strategy_runs_total",
			Help: "Total number of discovery strategy runs by outcome",
		},
		[]string{"strategy", "result"}, // result: candidates, empty, panic
	)

	StrategyCandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_strategy_candidates_total",
			Help: "Total number of candidates proposed per strategy",
		},
		[]string{"strategy"},
	)

	StrategyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "discovery_strategy_duration_seconds",
			Help:    "Time taken by a single discovery strategy",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"strategy"},
	)

	CandidateValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_candidate_validations_total",
			Help: "Total number of candidate validations by result",
		},
		[]string{"result"}, // result: valid, invalid
	)

	CandidateConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "discovery_candidate_confidence",
			Help:    "Final confidence of validated candidates",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		},
	)

	DiscoveryDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_decisions_total",
			Help: "Total number of discovery decisions by action",
		},
		[]string{"action"}, // action: adopt, suggest, none
	)

	SubscribersMigratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "discovery_subscribers_migrated_total",
			Help: "Total number of subscriptions switched automatically",
		},
	)
)

// Job queue metrics.
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_jobs_total",
			Help: "Total number of discovery job transitions by event",
		},
		[]string{"event"}, // event: enqueued, duplicate, capped, completed, requeued, abandoned
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "discovery_queue_depth",
			Help: "Number of queued discovery jobs by priority",
		},
		[]string{"priority"},
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "discovery_jobs_in_flight",
			Help: "Number of discovery jobs currently processing",
		},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "discovery_job_duration_seconds",
			Help:    "Time taken to process a discovery job",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
)

// Learning and health metrics.
var (
	HealingAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healing_attempts_total",
			Help: "Total number of healing attempts by tactic and result",
		},
		[]string{"tactic", "result"},
	)

	TacticPromotionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healing_tactic_promotions_total",
			Help: "Total number of tactics promoted to preferred",
		},
		[]string{"tactic"},
	)

	PreferenceDecaysTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healing_preference_decays_total",
			Help: "Total number of preferred tactics cleared by decay",
		},
	)

	HealthSuccessRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "healing_success_rate",
			Help: "Overall healing success rate from the last health report",
		},
	)

	HealthStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "healing_health_status",
			Help: "1 for the current overall health status, 0 otherwise",
		},
		[]string{"status"},
	)

	FeedsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "healing_feeds",
			Help: "Number of feeds per healing status",
		},
		[]string{"status"},
	)

	CriticalFeeds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "healing_critical_feeds",
			Help: "Number of feeds with persistent failures",
		},
	)
)

var (
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

var (
	// CircuitState is 0 closed, 1 half-open, 2 open.
	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state by breaker (0 closed, 1 half-open, 2 open)",
		},
		[]string{"breaker"},
	)

	CircuitTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions by breaker and target state",
		},
		[]string{"breaker", "to"},
	)
)

// RecordOperationDuration records the duration of a storage operation.
func RecordOperationDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
