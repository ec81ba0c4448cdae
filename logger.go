package crange

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with crange-specific helpers so that every
// record uses the same field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler.
// If handler is nil, uses a text handler to stderr at info level.
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

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithIndex tags every record with the index identity.
func (l *Logger) WithIndex(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("index", id),
	}
}

// LogReplace logs a completed replace on a locked window.
func (l *Logger) LogReplace(key, size uint64, removed, inserted int) {
	l.Debug("replace completed",
		"key", key,
		"size", size,
		"removed", removed,
		"inserted", inserted,
	)
}

// LogAllocFailure logs a refused node allocation.
func (l *Logger) LogAllocFailure(key, size uint64, err error) {
	l.Warn("range allocation failed",
		"key", key,
		"size", size,
		"error", err,
	)
}

// LogCheck logs the outcome of an invariant check.
func (l *Logger) LogCheck(nodes int, err error) {
	if err != nil {
		l.Error("invariant check failed",
			"nodes", nodes,
			"error", err,
		)
		return
	}
	l.Debug("invariant check passed",
		"nodes", nodes,
	)
}
