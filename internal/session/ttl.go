package session

import (
	"context"
	"log/slog"
	"time"
)

// CleanupCallback is called for every bundle the TTL worker evicts.
type CleanupCallback func(userID string)

// StartTTLWorker runs a background goroutine that periodically evicts
// bundles idle for longer than ttl. It stops when ctx is done.
func StartTTLWorker(ctx context.Context, reg *Registry, ttl, interval time.Duration, onCleanup CleanupCallback) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweep(reg, ttl, onCleanup)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(reg *Registry, ttl time.Duration, onCleanup CleanupCallback) {
	evicted := reg.EvictIdle(ttl)
	if len(evicted) == 0 {
		return
	}

	for _, userID := range evicted {
		if onCleanup != nil {
			onCleanup(userID)
		}
	}
	slog.Info("TTL worker cleanup completed", "evicted", len(evicted), "remaining", reg.Len())
}
