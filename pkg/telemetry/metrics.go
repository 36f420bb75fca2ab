package telemetry

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec

	guardRejections *prometheus.CounterVec
	upstreamCalls   *prometheus.CounterVec
	configReloads   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a Metrics instance with its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_commands_total",
				Help: "Dispatched commands by module, command and outcome",
			},
			[]string{"module", "cmd", "outcome"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_command_duration_seconds",
				Help:    "Command handler latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"module"},
		),
		guardRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_guard_rejections_total",
				Help: "Requests rejected before reaching a handler, by route and reason",
			},
			[]string{"route", "reason"},
		),
		upstreamCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_upstream_calls_total",
				Help: "WHM API calls by action and result",
			},
			[]string{"action", "result"},
		),
		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_config_reloads_total",
				Help: "Configuration reload attempts by status",
			},
			[]string{"status"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.commandsTotal,
		m.commandDuration,
		m.guardRejections,
		m.upstreamCalls,
		m.configReloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	m.httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// ObserveCommand implements command.Observer. It feeds both Prometheus and
// the OpenTelemetry meter.
func (m *Metrics) ObserveCommand(ctx context.Context, module, cmd, outcome string, elapsed time.Duration) {
	m.commandsTotal.WithLabelValues(module, cmd, outcome).Inc()
	m.commandDuration.WithLabelValues(module).Observe(elapsed.Seconds())
	RecordCommandMetrics(ctx, CommandMetrics{Module: module, Command: cmd, Outcome: outcome, Duration: elapsed})
}

// GuardRejected counts a request stopped by a guard.
func (m *Metrics) GuardRejected(route, reason string) {
	m.guardRejections.WithLabelValues(route, reason).Inc()
}

// UpstreamCall counts a WHM call.
func (m *Metrics) UpstreamCall(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.upstreamCalls.WithLabelValues(action, result).Inc()
}

// ConfigReloaded counts a reload attempt.
func (m *Metrics) ConfigReloaded(err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.configReloads.WithLabelValues(status).Inc()
}
