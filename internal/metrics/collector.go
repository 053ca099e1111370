package metrics

import (
	"context"
	"log/slog"
	"time"
)

// DB interface for queue depth queries
type DB interface {
	LocationCount(ctx context.Context) (int, error)
	EventCount(ctx context.Context) (int, error)
}

// StartQueueDepthCollector starts a background goroutine that periodically
// collects queue depth metrics from the database
func StartQueueDepthCollector(ctx context.Context, db DB, interval time.Duration) {
	logger := slog.Default()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect once immediately
	collectQueueDepths(ctx, db, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Queue depth collector stopping")
			return
		case <-ticker.C:
			collectQueueDepths(ctx, db, logger)
		}
	}
}

func collectQueueDepths(ctx context.Context, db DB, logger *slog.Logger) {
	if total, err := db.LocationCount(ctx); err != nil {
		logger.Error("Failed to get location queue length", "error", err)
	} else {
		QueueDepthTotal.WithLabelValues(QueueTypeLocations).Set(float64(total))
	}

	if total, err := db.EventCount(ctx); err != nil {
		logger.Error("Failed to get event queue length", "error", err)
	} else {
		QueueDepthTotal.WithLabelValues(QueueTypeEvents).Set(float64(total))
	}
}
