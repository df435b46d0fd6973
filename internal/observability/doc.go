// Package observability groups the worker's logs, metrics and traces.
// logging configures slog, metrics registers the Prometheus collectors
// exported on /metrics, and tracing installs the OpenTelemetry provider and
// the span helpers used around jobs, strategies and HTTP handlers.
package observability
