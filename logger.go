package episodb

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with dataset-specific helpers.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler.
// If handler is nil, a text handler on stderr at info level is used.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that writes JSON to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that writes human-readable text to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithDataset tags every record with the dataset name.
func (l *Logger) WithDataset(name string) *Logger {
	return &Logger{Logger: l.Logger.With("dataset", name)}
}

// LogOpen logs opening or creating a dataset.
func (l *Logger) LogOpen(ctx context.Context, dir string, episodes uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed", "dir", dir, "error", err)
		return
	}
	l.DebugContext(ctx, "dataset opened", "dir", dir, "episodes", episodes)
}

// LogUpdate logs appending buffers to a dataset.
func (l *Logger) LogUpdate(ctx context.Context, submitted, written int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "update failed",
			"submitted", submitted,
			"written", written,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "update completed", "episodes", written)
}

// LogFilter logs building a filtered view.
func (l *Logger) LogFilter(ctx context.Context, scanned, kept int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "filter failed", "scanned", scanned, "error", err)
		return
	}
	l.DebugContext(ctx, "filter completed", "scanned", scanned, "kept", kept)
}

// LogCombine logs combining datasets.
func (l *Logger) LogCombine(ctx context.Context, inputs []string, episodes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "combine failed", "inputs", inputs, "error", err)
		return
	}
	l.InfoContext(ctx, "combine completed", "inputs", inputs, "episodes", episodes)
}

// LogDelete logs deleting a dataset.
func (l *Logger) LogDelete(ctx context.Context, dir string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed", "dir", dir, "error", err)
		return
	}
	l.InfoContext(ctx, "dataset deleted", "dir", dir)
}
