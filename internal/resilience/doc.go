// Package resilience holds the fault-tolerance helpers shared by every
// outbound call of the engine: circuitbreaker wraps sony/gobreaker with
// per-dependency presets (feed validation, web archive, alert webhooks,
// database) and retry runs an operation with capped exponential backoff.
package resilience
