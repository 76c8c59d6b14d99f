package repositories

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
)

// readWithRetry retries an idempotent read once on a storage failure.
// Mutations are never retried here; double-application is worse than a
// surfaced error.
func readWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil || errors.Is(err, sql.ErrNoRows) || ctx.Err() != nil {
		return err
	}
	slog.Warn("Read failed, retrying once",
		slog.String("type", "db"),
		slog.Any("error", err))
	return fn(ctx)
}
