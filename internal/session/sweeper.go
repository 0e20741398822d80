package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/mgoretti/cogniplay/internal/store"
)

const sweeperInterval = 5 * time.Minute

// StartSweeper runs a background goroutine that periodically marks
// active sessions nobody has checkpointed within ttl as abandoned.
// Covers crashed clients that never came back to resume or discard.
func StartSweeper(ctx context.Context, repo store.Repository, ttl time.Duration) {
	ticker := time.NewTicker(sweeperInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", sweeperInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, repo, ttl)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(ctx context.Context, repo store.Repository, ttl time.Duration) {
	abandoned, err := repo.AbandonStale(ctx, time.Now().Add(-ttl))
	if err != nil {
		slog.Error("Session sweeper failed to abandon stale sessions", "error", err)
		return
	}
	if abandoned > 0 {
		slog.Info("Session sweeper abandoned stale sessions", "count", abandoned)
	}
}
