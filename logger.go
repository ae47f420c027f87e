package birch

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with birch-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithDimension adds a dimension field to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dimension", dim),
	}
}

// LogTreeBuilt logs a completed tree build phase.
func (l *Logger) LogTreeBuilt(ctx context.Context, records int64, leafEntries, rebuilds int, threshold float64) {
	l.InfoContext(ctx, "tree built",
		"records", records,
		"leaf_entries", leafEntries,
		"rebuilds", rebuilds,
		"threshold", threshold,
	)
}

// LogRefined logs a completed k-means refinement phase.
func (l *Logger) LogRefined(ctx context.Context, k, iterations int, state string) {
	l.InfoContext(ctx, "clusters refined",
		"k", k,
		"iterations", iterations,
		"state", state,
	)
}

// LogAssigned logs the record re-assignment phase.
func (l *Logger) LogAssigned(ctx context.Context, records int64, workers int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "record assignment failed",
			"records", records,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "records assigned",
			"records", records,
			"workers", workers,
		)
	}
}
