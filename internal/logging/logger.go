// Package logging provides structured logging configuration using log/slog.
//
// Workers tag their context with a worker id and the submission they are
// parsing; FromContext turns those tags into log attributes so every entry
// written while a report is processed can be correlated. Status server
// requests carry chi's request id the same way.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey int

const (
	workerKey ctxKey = iota
	submissionKey
)

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger writing to w.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithWorker tags ctx with the id of the worker processing it.
func WithWorker(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workerKey, id)
}

// WithSubmission tags ctx with the submission being parsed.
func WithSubmission(ctx context.Context, submID int64) context.Context {
	return context.WithValue(ctx, submissionKey, submID)
}

// FromContext returns the default logger enriched with whatever worker,
// submission and request ids ctx carries.
//
// Usage:
//
//	ctx = logging.WithSubmission(ctx, job.SubmID)
//	logging.FromContext(ctx).Info("parsing report", "file", job.Filename)
func FromContext(ctx context.Context) *slog.Logger {
	return enrich(ctx, slog.Default())
}

func enrich(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id, ok := ctx.Value(workerKey).(string); ok && id != "" {
		logger = logger.With("worker_id", id)
	}
	if id, ok := ctx.Value(submissionKey).(int64); ok {
		logger = logger.With("submid", id)
	}
	// Chi's RequestID middleware stores the ID in context
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	return logger
}

// WithFields returns a context-enriched logger with additional structured fields.
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
