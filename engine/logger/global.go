package logger

import (
	"log/slog"
	"time"
)

// LogQuery logs database operations
func LogQuery(query string, duration time.Duration, err error) {
	attrs := []any{
		slog.String("type", "db"),
		slog.Duration("took", duration),
	}

	if err != nil {
		slog.Error("Query failed", append(attrs,
			slog.String("query", query),
			slog.Any("error", err),
		)...)
	} else {
		slog.Debug("Query executed", append(attrs,
			slog.String("query", query),
		)...)
	}
}

// LogSweep logs background sweep runs
func LogSweep(name string, processed int, duration time.Duration, err error) {
	attrs := []any{
		slog.String("type", "sweep"),
		slog.String("name", name),
		slog.Int("processed", processed),
		slog.Duration("took", duration),
	}

	if err != nil {
		slog.Error("Sweep failed", append(attrs, slog.Any("error", err))...)
	} else {
		slog.Info("Sweep completed", attrs...)
	}
}
