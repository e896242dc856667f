// Package observability provides structured logging, request ID propagation
// and OpenTelemetry tracing for the engine.
package observability

import (
	"context"
	"io"
	"log/slog"
)

// LoggerConfig contains configuration for the logger. Level accepts a
// *slog.LevelVar so the verbosity can follow configuration reloads.
type LoggerConfig struct {
	Level      slog.Leveler
	Output     io.Writer
	AddSource  bool
	JSONFormat bool
}

// NewLogger creates a structured logger.
func NewLogger(cfg LoggerConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSONFormat {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	return slog.New(handler)
}

// WithRequestID returns a logger carrying the request ID from context.
func WithRequestID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		return logger
	}
	return logger.With("request_id", requestID)
}
