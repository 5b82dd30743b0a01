package observe

import (
	"context"
	"log/slog"
	"time"
)

// WatcherRemover removes a watcher after a permanent delivery failure.
type WatcherRemover interface {
	DeleteWatcher(ctx context.Context, userID int64) error
}

// deliver fans one notification out to every recipient. Permanent
// failures (blocked bot, deactivated account) unsubscribe the watcher;
// transient failures are skipped silently and never retried within the
// same cycle. A small pause between sends respects the messaging
// platform's own throughput limits.
func deliver(ctx context.Context, m Messenger, remover WatcherRemover, logger *slog.Logger, ids []int64, text, kind string, delay time.Duration) {
	for i, id := range ids {
		if ctx.Err() != nil {
			return
		}

		result, err := m.Send(ctx, id, text)
		switch {
		case result.Permanent():
			logger.Warn("permanent delivery failure, unsubscribing watcher",
				"watcher", id,
				"result", result.String(),
			)
			unsubscribesTotal.Inc()
			if err := remover.DeleteWatcher(ctx, id); err != nil {
				logger.Error("unsubscribing watcher failed", "watcher", id, "error", err)
			}
		case err != nil:
			logger.Warn("transient delivery failure, skipping watcher",
				"watcher", id,
				"result", result.String(),
				"error", err,
			)
		default:
			notificationsTotal.WithLabelValues(kind).Inc()
		}

		if i < len(ids)-1 {
			sleepCtx(ctx, delay)
		}
	}
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
