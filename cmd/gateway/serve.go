package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantumnode/gateway/pkg/command"
	"github.com/quantumnode/gateway/pkg/config"
	"github.com/quantumnode/gateway/pkg/gateway"
	"github.com/quantumnode/gateway/pkg/logging"
	"github.com/quantumnode/gateway/pkg/modules"
	"github.com/quantumnode/gateway/pkg/modules/billing"
	"github.com/quantumnode/gateway/pkg/storage"
	"github.com/quantumnode/gateway/pkg/telemetry"
	"github.com/quantumnode/gateway/pkg/upstream"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

// server bundles the HTTP server with everything that must be released on
// shutdown.
type server struct {
	http     *http.Server
	gateway  *gateway.Gateway
	tls      bool
	cleanups []func(context.Context) error
}

func (s *server) close(ctx context.Context) error {
	var errs []error
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		if err := s.cleanups[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildServer wires storage, limiter, upstream client and command modules
// into an HTTP server. Callers must invoke close.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server, error) {
	s := &server{}
	fail := func(err error) (*server, error) {
		_ = s.close(context.Background())
		return nil, err
	}

	shutdownTracing, err := telemetry.SetupProvider(ctx, cfg.Telemetry)
	if err != nil {
		return fail(fmt.Errorf("setup tracing: %w", err))
	}
	s.cleanups = append(s.cleanups, shutdownTracing)

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fail(fmt.Errorf("open storage: %w", err))
	}
	s.cleanups = append(s.cleanups, func(context.Context) error { return store.Close() })

	limiter, stopLimiter, err := gateway.NewLimiter(ctx, cfg.RateLimits, logger)
	if err != nil {
		return fail(fmt.Errorf("rate limiter: %w", err))
	}
	s.cleanups = append(s.cleanups, func(context.Context) error { return stopLimiter() })

	metrics := telemetry.NewMetrics()
	dispatcher := command.NewDispatcher(modules.Registry(store),
		command.WithLogger(logger),
		command.WithObserver(metrics),
	)

	gwOpts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithLimiter(limiter),
		gateway.WithMetrics(metrics),
		gateway.WithDispatcher(dispatcher),
		gateway.WithBilling(billing.New(store)),
	}
	if cfg.Upstream.Configured() {
		client, err := upstream.New(cfg.Upstream, upstream.WithLogger(logger))
		if err != nil {
			return fail(fmt.Errorf("whm client: %w", err))
		}
		gwOpts = append(gwOpts, gateway.WithUpstream(client))
	} else {
		logger.Warn("whm upstream not configured, signed endpoints will return whm_error")
	}

	s.gateway = gateway.New(cfg, gwOpts...)
	s.http = &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           s.gateway.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	if cfg.Server.TLS.Enabled() {
		minVersion, err := config.ParseTLSVersion(cfg.Server.TLS.MinVersion)
		if err != nil {
			return fail(err)
		}
		s.http.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		if minVersion == config.TLSVersion13 {
			s.http.TLSConfig.MinVersion = tls.VersionTLS13
		}
		s.tls = true
	}
	return s, nil
}

// runServe is the main entry point for the serve command.
func runServe(parent context.Context, opts *rootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := buildServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build gateway", "error", err)
		return err
	}

	if opts.ConfigPath != "" {
		policies := srv.gateway.Policies()
		watcher, err := config.NewWatcher(opts.ConfigPath,
			func(next *config.Config) error {
				next.RateLimits.Apply(policies)
				return nil
			},
			config.WithWatcherLogger(logger),
			config.WithReloadObserver(srv.gateway.Metrics().ConfigReloaded),
		)
		if err != nil {
			logger.Warn("config watcher disabled", "error", err)
		} else if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watcher disabled", "error", err)
		} else {
			defer func() { _ = watcher.Stop() }()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening",
			"address", cfg.Server.Address,
			"tls", srv.tls,
			"version", cfg.Server.Version,
		)
		if srv.tls {
			errCh <- srv.http.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
			return
		}
		errCh <- srv.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		_ = srv.close(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error("server error", "error", err)
		return err
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.http.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}
	if err := srv.close(shutdownCtx); err != nil {
		logger.Error("error releasing resources", "error", err)
	}
	logger.Info("gateway stopped")
	return nil
}
