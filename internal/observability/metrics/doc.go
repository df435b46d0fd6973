// Package metrics declares the engine's Prometheus collectors on the
// default registry and the Record*/Update* helpers callers use instead of
// touching collectors directly. The worker serves them on /metrics.
//
// Collectors are grouped by subsystem: discovery strategies and candidate
// validation, the job queue, learning and health reports, circuit
// breakers, and the database pool and queries.
package metrics
