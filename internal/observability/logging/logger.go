package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the handler New builds.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// LevelFromEnv reads LOG_LEVEL (debug, info, warn, error). Unknown or empty
// values mean info.
func LevelFromEnv() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(os.Getenv("LOG_LEVEL")))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// New returns a logger writing to w. Source locations are added at debug
// level.
func New(w io.Writer, format Format, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}
	if format == FormatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// NewLogger is the worker's JSON logger on stdout.
func NewLogger() *slog.Logger {
	return New(os.Stdout, FormatJSON, LevelFromEnv())
}

// NewTextLogger is the human-readable logger used by feedctl. It writes to
// stderr so command output stays clean.
func NewTextLogger() *slog.Logger {
	return New(os.Stderr, FormatText, LevelFromEnv())
}

type contextKey struct{}

var jobIDKey contextKey

// ContextWithJobID stores a discovery job ID in ctx.
func ContextWithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// JobIDFromContext returns the job ID stored by ContextWithJobID, or "".
func JobIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey).(string)
	return id
}

// WithJobID adds the context's job ID to logger, if there is one.
func WithJobID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := JobIDFromContext(ctx); id != "" {
		return logger.With(slog.String("job_id", id))
	}
	return logger
}
