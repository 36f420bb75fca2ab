package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce             sync.Once
	metricsInitErr          error
	commandExecutionCounter metric.Int64Counter
	commandFailureCounter   metric.Int64Counter
	commandLatencyHistogram metric.Float64Histogram
)

// CommandMetrics captures one dispatched command.
type CommandMetrics struct {
	Module   string
	Command  string
	Outcome  string
	Duration time.Duration
}

// RecordCommandMetrics emits OpenTelemetry counters and a latency histogram
// through the global meter provider.
func RecordCommandMetrics(ctx context.Context, m CommandMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("command.module", m.Module),
		attribute.String("command.name", m.Command),
		attribute.String("command.outcome", m.Outcome),
	)

	commandExecutionCounter.Add(ctx, 1, attrs)
	if m.Outcome != "ok" {
		commandFailureCounter.Add(ctx, 1, attrs)
	}
	if m.Duration > 0 {
		commandLatencyHistogram.Record(ctx, float64(m.Duration)/float64(time.Millisecond), attrs)
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("gateway.command")

		commandExecutionCounter, metricsInitErr = meter.Int64Counter(
			"gateway.command.executions_total",
			metric.WithDescription("Dispatched commands partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		commandFailureCounter, metricsInitErr = meter.Int64Counter(
			"gateway.command.failures_total",
			metric.WithDescription("Commands that did not return ok"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		commandLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"gateway.command.duration_ms",
			metric.WithDescription("Observed command handler latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}
