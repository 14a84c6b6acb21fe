// Package retention sweeps aged chat transcripts and recommendation history
// out of the database on a fixed interval.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/elimu-labs/cbe-compass/internal/config"
	"github.com/elimu-labs/cbe-compass/internal/store"
)

// deleteWithRetry runs a sweep step with exponential backoff to handle
// SQLITE_BUSY errors from concurrent chat writes.
func deleteWithRetry(ctx context.Context, name string, fn func(context.Context) (int64, error)) int64 {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		deleted, err := fn(ctx)
		if err == nil {
			return deleted
		}

		if store.IsBusyError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // exponential backoff: 100ms, 200ms, 400ms
			slog.Debug("Retention sweep step busy, retrying",
				"step", name,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}

		if ctx.Err() != nil {
			slog.Debug("Retention sweep canceled", "step", name, "error", err)
			return 0
		}

		slog.Error("Retention sweep step failed", "step", name, "error", err)
		return 0
	}

	return 0
}

// Start runs a background goroutine that periodically deletes chat messages
// and recommendation sets past their TTLs. It returns immediately; the
// goroutine stops when ctx is canceled.
func Start(ctx context.Context, repo store.Repository, cfg config.RetentionConfig) {
	if !cfg.Enabled {
		slog.Info("Retention worker disabled")
		return
	}

	ticker := time.NewTicker(cfg.Interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started",
			"interval", cfg.Interval,
			"chat_ttl", cfg.ChatTTL,
			"recommend_ttl", cfg.RecommendTTL)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, repo, cfg)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep performs one retention pass.
func Sweep(ctx context.Context, repo store.Repository, cfg config.RetentionConfig) {
	now := time.Now()

	chatDeleted := deleteWithRetry(ctx, "chat_messages", func(ctx context.Context) (int64, error) {
		return repo.DeleteChatMessagesBefore(ctx, now.Add(-cfg.ChatTTL))
	})

	recsDeleted := deleteWithRetry(ctx, "recommendation_sets", func(ctx context.Context) (int64, error) {
		return repo.DeleteStaleRecommendationSets(ctx, now.Add(-cfg.RecommendTTL))
	})

	if chatDeleted > 0 || recsDeleted > 0 {
		slog.Info("Retention sweep completed",
			"chat_messages_deleted", chatDeleted,
			"recommendation_sets_deleted", recsDeleted)
	}
}
