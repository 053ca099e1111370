package worker

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"location-relay/internal/database"
	"location-relay/internal/metrics"
)

// DefaultInterval is used until tracking_frequency_ms is configured
const DefaultInterval = 15 * time.Minute

// Maintainer runs one maintenance pass
type Maintainer interface {
	PerformMaintenance(ctx context.Context)
}

// Settings is the subset of the database the worker reads
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

// Worker runs the maintenance pass on a schedule
type Worker struct {
	maintainer  Maintainer
	settings    Settings
	logger      *slog.Logger
	minInterval time.Duration
}

// NewWorker creates a new maintenance worker
func NewWorker(maintainer Maintainer, settings Settings) *Worker {
	return &Worker{
		maintainer:  maintainer,
		settings:    settings,
		logger:      slog.Default(),
		minInterval: time.Second,
	}
}

// Start runs maintenance once, then again every tracking_frequency_ms. The
// interval is re-read before each wait so a new initialize takes effect
// without a restart.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting maintenance worker")
	metrics.WorkerActive.Set(1)
	defer metrics.WorkerActive.Set(0)

	for {
		w.RunOnce(ctx)

		interval := w.Interval(ctx)
		w.logger.Debug("Next maintenance scheduled", "interval", interval)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("Stopping maintenance worker")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce performs maintenance when the relay has been initialized. Cleared
// settings pause the schedule until the next initialize.
func (w *Worker) RunOnce(ctx context.Context) bool {
	apiURL, ok, err := w.settings.GetSetting(ctx, database.SettingAPIURL)
	if err != nil {
		w.logger.Error("Failed to read settings", "error", err)
		return false
	}
	if !ok || apiURL == "" {
		w.logger.Debug("Not initialized, skipping maintenance")
		return false
	}

	start := time.Now()
	w.maintainer.PerformMaintenance(ctx)
	w.logger.Info("Maintenance finished", "duration_ms", time.Since(start).Milliseconds())

	return true
}

// Interval returns the configured maintenance interval
func (w *Worker) Interval(ctx context.Context) time.Duration {
	raw, ok, err := w.settings.GetSetting(ctx, database.SettingTrackingFrequencyMS)
	if err != nil {
		w.logger.Error("Failed to read tracking frequency", "error", err)
		return DefaultInterval
	}
	if !ok {
		return DefaultInterval
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		w.logger.Warn("Invalid tracking frequency, using default", "value", raw)
		return DefaultInterval
	}

	return max(time.Duration(ms)*time.Millisecond, w.minInterval)
}
