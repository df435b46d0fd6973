package metrics

import (
	"time"
)

// RecordStrategyRun records one strategy execution.
func RecordStrategyRun(strategy string, duration time.Duration, candidates int, panicked bool) {
	StrategyDuration.WithLabelValues(strategy).Observe(duration.Seconds())

	switch {
	case panicked:
		StrategyRunsTotal.WithLabelValues(strategy, "panic").Inc()
	case candidates == 0:
		StrategyRunsTotal.WithLabelValues(strategy, "empty").Inc()
	default:
		StrategyRunsTotal.WithLabelValues(strategy, "candidates").Inc()
		StrategyCandidatesTotal.WithLabelValues(strategy).Add(float64(candidates))
	}
}

// RecordCandidateValidation records a validation result and, for valid
// candidates, their final confidence.
func RecordCandidateValidation(valid bool, confidence int) {
	if !valid {
		CandidateValidationsTotal.WithLabelValues("invalid").Inc()
		return
	}
	CandidateValidationsTotal.WithLabelValues("valid").Inc()
	CandidateConfidence.Observe(float64(confidence))
}

// RecordDecision records the action chosen for a broken feed.
func RecordDecision(action string, migrated int) {
	DiscoveryDecisionsTotal.WithLabelValues(action).Inc()
	if migrated > 0 {
		SubscribersMigratedTotal.Add(float64(migrated))
	}
}

// RecordJobEvent counts a job state transition.
func RecordJobEvent(event string) {
	JobsTotal.WithLabelValues(event).Inc()
}

// UpdateQueueDepth sets the queued job gauges.
func UpdateQueueDepth(byPriority map[string]int, inFlight int) {
	for priority, n := range byPriority {
		QueueDepth.WithLabelValues(priority).Set(float64(n))
	}
	JobsInFlight.Set(float64(inFlight))
}

// RecordJobDuration observes the processing time of one job.
func RecordJobDuration(duration time.Duration) {
	JobDuration.Observe(duration.Seconds())
}

// RecordHealingAttempt counts a logged healing attempt.
func RecordHealingAttempt(tactic string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	HealingAttemptsTotal.WithLabelValues(tactic, result).Inc()
}

// RecordTacticPromotion counts a tactic promoted to preferred.
func RecordTacticPromotion(tactic string) {
	TacticPromotionsTotal.WithLabelValues(tactic).Inc()
}

// RecordPreferenceDecay counts a preferred tactic cleared by decay.
func RecordPreferenceDecay() {
	PreferenceDecaysTotal.Inc()
}

// UpdateHealthReport exports the headline numbers of a health report.
func UpdateHealthReport(status string, successRate float64, feeds map[string]int, critical int) {
	HealthSuccessRate.Set(successRate)
	for _, s := range []string{"healthy", "degraded", "critical"} {
		v := 0.0
		if s == status {
			v = 1
		}
		HealthStatus.WithLabelValues(s).Set(v)
	}
	for s, n := range feeds {
		FeedsByStatus.WithLabelValues(s).Set(float64(n))
	}
	CriticalFeeds.Set(float64(critical))
}

// UpdateDBConnectionStats updates the database pool gauges.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}

// RecordCircuitState publishes a breaker transition. state follows the
// CircuitState encoding.
func RecordCircuitState(breaker, to string, state int) {
	CircuitState.WithLabelValues(breaker).Set(float64(state))
	CircuitTransitions.WithLabelValues(breaker, to).Inc()
}
