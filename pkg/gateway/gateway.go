// Package gateway wires the HTTP surface of the service: CORS, rate limiting,
// signed WHM endpoints, the command modules and the operational endpoints.
package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/quantumnode/gateway/internal/governance"
	"github.com/quantumnode/gateway/pkg/allowlist"
	"github.com/quantumnode/gateway/pkg/command"
	"github.com/quantumnode/gateway/pkg/config"
	"github.com/quantumnode/gateway/pkg/cors"
	"github.com/quantumnode/gateway/pkg/modules"
	"github.com/quantumnode/gateway/pkg/modules/billing"
	"github.com/quantumnode/gateway/pkg/signature"
	"github.com/quantumnode/gateway/pkg/storage"
	"github.com/quantumnode/gateway/pkg/telemetry"
	"github.com/quantumnode/gateway/pkg/upstream"
)

// Route paths served by the gateway.
const (
	PathSigned   = "/api/whm/{action}"
	PathWHMTest  = "/api/whm/test"
	PathCommands = "/api/commands/{module}"
	PathBilling  = "/api/billing/{op}"
	PathDevSign  = "/api/dev/sign"
	PathHealth   = "/api/health"
	PathMetrics  = "/metrics"
)

// unknownVersion is reported by /api/health when no version is configured.
const unknownVersion = "local"

// Gateway is the HTTP handler for the whole service. It is safe for
// concurrent use; the only mutable state lives in the limiter and the policy
// table.
type Gateway struct {
	server   config.ServerConfig
	security config.SecurityConfig

	verifier   *signature.Verifier
	allow      *allowlist.List
	cors       *cors.Negotiator
	limiter    governance.Limiter
	policies   *governance.Policies
	upstream   upstream.Caller
	dispatcher *command.Dispatcher
	billing    *billing.Module
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
	actions    map[string]action

	started time.Time
	now     func() time.Time
	router  chi.Router
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithUpstream sets the WHM client used by the signed endpoints.
func WithUpstream(c upstream.Caller) Option {
	return func(g *Gateway) { g.upstream = c }
}

// WithLimiter replaces the default in-memory limiter.
func WithLimiter(l governance.Limiter) Option {
	return func(g *Gateway) { g.limiter = l }
}

// WithPolicies shares a policy table, typically one a config watcher updates.
func WithPolicies(p *governance.Policies) Option {
	return func(g *Gateway) { g.policies = p }
}

// WithDispatcher replaces the default command dispatcher.
func WithDispatcher(d *command.Dispatcher) Option {
	return func(g *Gateway) { g.dispatcher = d }
}

// WithBilling sets the billing module behind /api/billing. It should share
// the dispatcher's store.
func WithBilling(m *billing.Module) Option {
	return func(g *Gateway) { g.billing = m }
}

// WithMetrics sets the Prometheus metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithClock overrides time.Now for health output.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New builds a Gateway from a validated configuration.
//
// Without WithDispatcher or WithBilling the command modules and the billing
// endpoints run against a shared in-memory store.
// Without WithUpstream the signed endpoints fail with whm_error.
func New(cfg *config.Config, opts ...Option) *Gateway {
	g := &Gateway{
		server:   cfg.Server,
		security: cfg.Security,
		verifier: signature.NewVerifier(cfg.Security.HMACSecret),
		allow:    allowlist.New(cfg.Security.AllowedActions...),
		cors:     cors.New(cfg.CORS.AllowedOrigins),
		logger:   slog.Default(),
		tracer:   otel.Tracer("github.com/quantumnode/gateway/pkg/gateway"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.limiter == nil {
		g.limiter = governance.NewMemoryLimiter()
	}
	if g.policies == nil {
		g.policies = cfg.RateLimits.Policies()
	}
	if g.metrics == nil {
		g.metrics = telemetry.NewMetrics()
	}
	var store *storage.Store
	if g.dispatcher == nil || g.billing == nil {
		store = storage.NewMemory()
	}
	if g.billing == nil {
		g.billing = billing.New(store)
	}
	if g.dispatcher == nil {
		g.dispatcher = command.NewDispatcher(
			modules.Registry(store),
			command.WithLogger(g.logger),
			command.WithObserver(g.metrics),
		)
	}
	if !g.verifier.Configured() {
		g.logger.Warn("hmac secret not configured, signed endpoints will reject every request")
	}

	if g.server.Version == "" {
		g.server.Version = unknownVersion
	}

	g.actions = whmActions()
	g.started = g.now()
	g.router = g.routes()
	return g
}

// Policies returns the live policy table.
func (g *Gateway) Policies() *governance.Policies {
	return g.policies
}

// Metrics returns the metrics sink.
func (g *Gateway) Metrics() *telemetry.Metrics {
	return g.metrics
}

// ServeHTTP implements http.Handler without the tracing wrapper.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.router.ServeHTTP(w, r)
}

// Handler returns the gateway wrapped in otelhttp server instrumentation.
func (g *Gateway) Handler() http.Handler {
	return otelhttp.NewHandler(g.router, "gateway")
}

func (g *Gateway) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(g.requestID)
	r.Use(g.accessLog)
	r.Use(g.recoverer)
	r.Use(g.cors.Middleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	r.Get(PathHealth, g.handleHealth)
	r.Method(http.MethodGet, PathMetrics, g.metrics.Handler())
	r.Get(PathWHMTest, g.handleWHMTest)
	r.HandleFunc(PathDevSign, g.handleDevSign)
	r.HandleFunc(PathSigned, g.handleSigned)
	r.HandleFunc(PathCommands, g.handleCommand)
	r.HandleFunc(PathBilling, g.handleBilling)
	return r
}
