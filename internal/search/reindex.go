package search

import (
	"context"
	"log/slog"
	"time"
)

// Reindexer rebuilds one resource index from its source of truth.
type Reindexer interface {
	ReindexAll(ctx context.Context) error
}

// RunReindexLoop rebuilds the given indexes immediately and then on a
// fixed interval until the context is cancelled. Failures are logged and
// retried on the next tick.
func RunReindexLoop(ctx context.Context, logger *slog.Logger, interval time.Duration, reindexers map[string]Reindexer) error {
	reindex := func() {
		for name, r := range reindexers {
			if err := r.ReindexAll(ctx); err != nil {
				logger.Warn("reindex failed", slog.String("index", name), slog.Any("error", err))
			}
		}
	}
	reindex()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			reindex()
		}
	}
}
