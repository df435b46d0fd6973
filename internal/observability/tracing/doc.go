// Package tracing wires OpenTelemetry into the worker. Init installs the
// SDK provider; spans are opened around discovery jobs ("jobqueue.process"),
// discovery runs ("discovery.Run"), single strategies ("discovery.strategy")
// and the worker's HTTP endpoints.
package tracing
