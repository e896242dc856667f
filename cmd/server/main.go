// Package main is the entry point for the TutorMux explanation server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tutormux "github.com/blueberrycongee/tutormux"
	"github.com/blueberrycongee/tutormux/internal/api"
	"github.com/blueberrycongee/tutormux/internal/config"
	"github.com/blueberrycongee/tutormux/internal/generate"
	"github.com/blueberrycongee/tutormux/internal/metrics"
	"github.com/blueberrycongee/tutormux/internal/observability"
	"github.com/blueberrycongee/tutormux/internal/simulation"
	"github.com/blueberrycongee/tutormux/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := "config/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	if env := os.Getenv("TUTORMUX_CONFIG"); env != "" {
		configPath = env
	}

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfgManager, err := config.NewManager(configPath, bootLogger)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	defer func() { _ = cfgManager.Close() }()

	cfg := cfgManager.Get()

	logLevel := new(slog.LevelVar)
	logLevel.Set(parseLevel(cfg.Logging.Level))

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:      logLevel,
		Output:     os.Stdout,
		JSONFormat: cfg.Logging.Format != "text",
	})
	slog.SetDefault(logger)

	logger.Info("starting tutormux server", "version", tutormux.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cfgManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	// Tracing
	if cfg.Tracing.Enabled {
		tp, err := observability.InitTracing(ctx, observability.TracingConfig{
			Enabled:     true,
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.Tracing.ServiceName,
			SampleRate:  cfg.Tracing.SampleRate,
			Insecure:    cfg.Tracing.Insecure,
		})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	// Simulation whitelist with optional hot reload
	whitelist, err := simulation.NewManager(cfg.Whitelist.Path, logger)
	if err != nil {
		return fmt.Errorf("load whitelist: %w", err)
	}
	defer func() { _ = whitelist.Close() }()

	if cfg.Whitelist.Watch {
		if err := whitelist.Watch(ctx); err != nil {
			logger.Warn("whitelist hot-reload disabled", "error", err)
		}
	}

	// Durable tier
	durable, err := store.NewDurableStore(cfg.Store.Durable)
	if err != nil {
		return fmt.Errorf("open durable store: %w", err)
	}
	if err := durable.Ping(ctx); err != nil {
		logger.Warn("durable store unreachable at startup, requests will bypass it", "error", err)
	}

	// Generation backend
	generator, err := generate.NewHTTPGenerator(cfg.Generator)
	if err != nil {
		return fmt.Errorf("configure generator: %w", err)
	}

	engine, err := tutormux.New(
		tutormux.WithGenerator(generator),
		tutormux.WithGeneration(generate.Config{
			MaxAttempts:       cfg.Generation.MaxAttempts,
			BackoffBase:       cfg.Generation.BackoffBase,
			AttemptTimeout:    cfg.Generation.AttemptTimeout,
			PromptTokenBudget: cfg.Generation.PromptTokenBudget,
			RateLimit:         cfg.Generation.RatePerSecond,
		}),
		tutormux.WithFastConfig(cfg.Store.Fast),
		tutormux.WithDurableStore(durable),
		tutormux.WithDurableCapacity(cfg.Store.Durable.Capacity),
		tutormux.WithResolver(whitelist.Resolver()),
		tutormux.WithFallback(cfg.Generation.FallbackEnabled),
		tutormux.WithSink(metrics.NewPromSink()),
		tutormux.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer func() { _ = engine.Close() }()

	// Apply the reloadable parts of an accepted config change. Listener
	// and store settings still require a restart.
	cfgManager.OnChange(func(next *config.Config) {
		logLevel.Set(parseLevel(next.Logging.Level))
		engine.SetFallback(next.Generation.FallbackEnabled)
		logger.Info("applied configuration change",
			"log_level", next.Logging.Level,
			"fallback_enabled", next.Generation.FallbackEnabled,
		)
	})

	handler := api.NewHandler(engine, logger, &api.HandlerConfig{Whitelist: whitelist})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	registerMetrics(mux, cfg)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      observability.RequestIDMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
