package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"opsportal/internal/api"
	"opsportal/internal/config"
	"opsportal/internal/errreport"
	"opsportal/internal/logger"
	"opsportal/internal/models"
	"opsportal/internal/observability"
	"opsportal/internal/ratelimit"
	"opsportal/internal/storage"
	"opsportal/internal/version"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd starts the HTTP server and blocks until SIGINT or SIGTERM.
type ServeCmd struct {
	Port int `help:"Override the configured listen port."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	build := version.GetInfo().WithVersion(cfg.App.Version)

	log, closer, err := logger.Setup(cfg.Logging, logger.Identity{
		Service:     cfg.Observability.ServiceName,
		App:         cfg.App.Name,
		Environment: cfg.App.Environment,
		Build:       build,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, build)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	store, err := storage.NewFactory().Create(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	var activeStorage storage.Storage = store
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedStorage(store, otelProvider.Meter())
		if err != nil {
			return fmt.Errorf("failed to create instrumented storage: %w", err)
		}
		activeStorage = instrumented
	}

	registry, err := observability.NewRegistry(otelProvider.Meter())
	if err != nil {
		return fmt.Errorf("failed to create metrics registry: %w", err)
	}
	reporter := errreport.New(cfg.ErrorReporting, log)

	handlers := api.NewHandlers(activeStorage,
		api.WithRegistry(registry),
		api.WithReporter(reporter),
		api.WithBuildInfo(cfg.App.Name, cfg.Observability.ServiceName, build.Version),
		api.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	)

	deps := api.RouteDeps{
		Instrumenter: api.NewInstrumenter(registry, reporter, api.WithLogger(log)),
		Auth:         api.NewSessionAuth(activeStorage, cfg.Security.SessionCookie),
	}

	if rlCfg := cfg.Security.RateLimit; rlCfg.Enabled {
		ipLimiter := ratelimit.NewMemoryLimiter(
			ratelimit.Policy{Limit: rlCfg.MaxRequests, Window: rlCfg.Window},
			rlCfg.CleanupInterval,
		)
		defer ipLimiter.Close()
		deps.IPLimiter = ipLimiter

		sessionStore, closeStore, err := newSessionStore(rlCfg, activeStorage)
		if err != nil {
			return err
		}
		defer closeStore()
		deps.SessionLimiter = ratelimit.NewSessionLimiter(sessionStore,
			ratelimit.Policy{Limit: rlCfg.SessionMaxRequests, Window: rlCfg.SessionWindow}, nil)
	}

	var routeOpts []api.RouteOption
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}
	router := api.SetupRoutes(handlers, deps, routeOpts...)

	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", server.Addr, "tls", cfg.Server.TLSEnabled, "storage", cfg.Storage.Type)
		var err error
		if cfg.Server.TLSEnabled {
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-quit:
	}

	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// newSessionStore picks the backend for session rate-limit windows. The
// returned func releases whatever the store opened.
func newSessionStore(rlCfg models.RateLimitConfig, store storage.Storage) (ratelimit.SessionStore, func(), error) {
	if rlCfg.SessionStore != models.SessionStoreRedis {
		return store, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb, err := ratelimit.NewRedisClient(ctx, rlCfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			slog.Error("Failed to close redis client", "error", err)
		}
	}
	return ratelimit.NewRedisSessionStore(rdb, ratelimit.WithRedisPrefix(rlCfg.Redis.Prefix)), closeFn, nil
}
