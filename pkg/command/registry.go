package command

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/quantumnode/gateway/pkg/domain"
)

// SelfTest is the meta-command every module answers by running its fixtures.
const SelfTest = "selftest"

// Module is a named group of commands.
type Module interface {
	Name() string
	// Commands lists the executable command names in catalog order.
	Commands() []string
	// Execute runs one command. Unknown names return domain.ErrUnknownCommand.
	Execute(ctx context.Context, cmd string, p Payload) (Result, error)
	// Fixtures returns one literal invocation per command, in a stable order.
	Fixtures() []Fixture
}

// Sandboxer is implemented by modules whose fixtures reference stored
// records. Sandbox returns a copy of the module bound to fresh seeded state
// so self-tests never touch live data.
type Sandboxer interface {
	Sandbox(ctx context.Context) (Module, error)
}

// Fixture is a literal command invocation used by the self-test suite.
type Fixture struct {
	Name    string
	Payload Payload
}

// Registry maps module names to modules.
type Registry struct {
	modules map[string]Module
}

// NewRegistry registers modules by name. Later duplicates replace earlier ones.
func NewRegistry(modules ...Module) *Registry {
	r := &Registry{modules: make(map[string]Module, len(modules))}
	for _, m := range modules {
		r.modules[m.Name()] = m
	}
	return r
}

// Lookup returns the named module.
func (r *Registry) Lookup(name string) (Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// Names returns registered module names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog returns the advertised command list, selftest included.
func Catalog(m Module) []string {
	cmds := append([]string(nil), m.Commands()...)
	return append(cmds, SelfTest)
}

// Envelope is the JSON body returned by the command endpoint.
type Envelope map[string]any

// Observer receives one call per dispatched command.
type Observer interface {
	ObserveCommand(ctx context.Context, module, cmd, outcome string, elapsed time.Duration)
}

// Dispatch outcomes reported to the Observer.
const (
	OutcomeOK             = "ok"
	OutcomeRejected       = "rejected"
	OutcomeError          = "error"
	OutcomeUnknownCommand = "unknown_command"
)

// Dispatcher routes command requests to modules.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger used for handler failures.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithObserver records per-command outcomes, typically into metrics.
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

// NewDispatcher creates a Dispatcher over registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		logger:   slog.Default(),
		tracer:   otel.Tracer("github.com/quantumnode/gateway/pkg/command"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher serves.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch executes cmd on module and returns the envelope with its HTTP status.
func (d *Dispatcher) Dispatch(ctx context.Context, module, cmd string, p Payload) (Envelope, int) {
	m, ok := d.registry.Lookup(module)
	if !ok {
		return Envelope{"ok": false, "error": domain.CodeUnknownModule, "module": module}, http.StatusNotFound
	}

	if cmd == "" {
		return Envelope{
			"ok":       true,
			"module":   module,
			"message":  "No cmd provided. See 'commands' for available options.",
			"commands": Catalog(m),
		}, http.StatusOK
	}

	ctx, span := d.tracer.Start(ctx, "command.dispatch", trace.WithAttributes(
		attribute.String("command.module", module),
		attribute.String("command.name", cmd),
	))
	defer span.End()
	start := time.Now()

	if cmd == SelfTest {
		report := RunSuite(ctx, m)
		status := http.StatusOK
		outcome := OutcomeOK
		if !report.OK {
			status = http.StatusBadRequest
			outcome = OutcomeRejected
			span.SetAttributes(attribute.StringSlice("selftest.failed", report.Summary.Failed))
		}
		d.observe(ctx, module, cmd, outcome, start)
		env := Envelope{
			"ok":      report.OK,
			"module":  module,
			"cmd":     cmd,
			"summary": report.Summary,
			"tests":   report.Tests,
		}
		return env, status
	}

	if !hasCommand(m, cmd) {
		d.observe(ctx, module, cmd, OutcomeUnknownCommand, start)
		span.SetStatus(codes.Error, domain.CodeUnknownCommand)
		return Envelope{"ok": false, "module": module, "error": domain.CodeUnknownCommand, "cmd": cmd}, http.StatusBadRequest
	}

	res, err := Invoke(ctx, m, cmd, p)
	if err != nil {
		d.observe(ctx, module, cmd, OutcomeError, start)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.ErrorContext(ctx, "command failed",
			"module", module,
			"cmd", cmd,
			"error", err,
		)
		return Envelope{
			"ok":      false,
			"module":  module,
			"error":   domain.CodeInternal,
			"details": err.Error(),
		}, http.StatusInternalServerError
	}

	env := Envelope(res.Fields())
	env["module"] = module
	env["cmd"] = cmd

	status := http.StatusOK
	outcome := OutcomeOK
	if !res.OK {
		outcome = OutcomeRejected
		status = http.StatusBadRequest
		if res.Error == domain.CodeNotFound {
			status = http.StatusNotFound
		}
		span.SetAttributes(attribute.String("command.error", res.Error))
	}
	d.observe(ctx, module, cmd, outcome, start)
	return env, status
}

func (d *Dispatcher) observe(ctx context.Context, module, cmd, outcome string, start time.Time) {
	if d.observer != nil {
		d.observer.ObserveCommand(ctx, module, cmd, outcome, time.Since(start))
	}
}

// Invoke runs one command, converting a handler panic into an error.
func Invoke(ctx context.Context, m Module, cmd string, p Payload) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s.%s: %v", m.Name(), cmd, r)
		}
	}()
	if p == nil {
		p = Payload{}
	}
	return m.Execute(ctx, cmd, p)
}

func hasCommand(m Module, cmd string) bool {
	for _, c := range m.Commands() {
		if c == cmd {
			return true
		}
	}
	return false
}
