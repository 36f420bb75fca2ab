// Package telemetry wires OpenTelemetry tracing, OpenTelemetry command
// meters and Prometheus metrics for the gateway.
//
// SetupProvider installs the process-wide tracer provider. Metrics owns a
// private Prometheus registry exposed on /metrics and doubles as the
// command.Observer for the dispatcher. Span helpers annotate guard
// decisions without leaking signatures or secrets.
package telemetry
