package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "feed-resilience"

// GetTracer returns the engine tracer from the current global provider.
// It is looked up on every call because a tracer obtained before Init stays
// bound to the provider that was global at the time.
func GetTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
