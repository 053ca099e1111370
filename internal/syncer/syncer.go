// Package syncer uploads queued locations and events in batches and deletes
// the rows the server acknowledges.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"location-relay/internal/api"
	"location-relay/internal/database"
	"location-relay/internal/metrics"
)

// Event low-water marks
const (
	SensitiveEventMark = 1 // status changes, notifications
	GeofenceEventMark  = 5 // geofence edges
)

// Store is the subset of the database the sync engine needs
type Store interface {
	LocationCount(ctx context.Context) (int, error)
	EventCount(ctx context.Context) (int, error)
	FirstNLocations(ctx context.Context, n int) ([]*database.Location, error)
	FirstNEvents(ctx context.Context, n int) ([]*database.Event, error)
	DeleteLocationsByID(ctx context.Context, ids []string) (int, error)
	DeleteEventsByID(ctx context.Context, ids []string) (int, error)
	GetSettings(ctx context.Context) (map[string]string, error)
}

// Uploader posts batches to the server and returns acknowledged ids
type Uploader interface {
	SaveCoordinates(ctx context.Context, target api.Target, locations []*database.Location) ([]string, error)
	SaveEvents(ctx context.Context, target api.Target, events []*database.Event) ([]string, error)
}

// Config holds batching thresholds
type Config struct {
	LocationLowWater  int // queued locations needed before a normal sync
	LocationHighWater int // max locations per batch
	EventHighWater    int // max events per batch
	EventDrainMark    int // queued events that trigger another batch after an ack
	MaxDrainRounds    int // extra batches per trigger after an ack
}

// DefaultConfig returns the standard thresholds
func DefaultConfig() Config {
	return Config{
		LocationLowWater:  2,
		LocationHighWater: 30,
		EventHighWater:    30,
		EventDrainMark:    GeofenceEventMark,
		MaxDrainRounds:    1,
	}
}

// Engine runs uploads in the background. At most one batch per queue is in
// flight; triggers arriving meanwhile are dropped since the next trigger
// will pick up whatever is still queued.
type Engine struct {
	store    Store
	uploader Uploader
	cfg      Config
	logger   *slog.Logger

	locations *queue
	events    *queue

	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup
}

// New creates a sync engine
func New(store Store, uploader Uploader, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		store:    store,
		uploader: uploader,
		cfg:      cfg,
		logger:   logger,
		inFlight: make(map[string]bool),
	}

	e.locations = &queue{
		name:      metrics.QueueTypeLocations,
		highWater: cfg.LocationHighWater,
		drainMark: cfg.LocationLowWater,
		count:     store.LocationCount,
		delete:    store.DeleteLocationsByID,
		read: func(ctx context.Context, n int) (*batch, error) {
			rows, err := store.FirstNLocations(ctx, n)
			if err != nil {
				return nil, err
			}
			b := &batch{ids: make([]string, len(rows))}
			for i, row := range rows {
				b.ids[i] = row.ID
			}
			b.upload = func(ctx context.Context, target api.Target) ([]string, error) {
				return uploader.SaveCoordinates(ctx, target, rows)
			}
			return b, nil
		},
	}

	e.events = &queue{
		name:      metrics.QueueTypeEvents,
		highWater: cfg.EventHighWater,
		drainMark: cfg.EventDrainMark,
		count:     store.EventCount,
		delete:    store.DeleteEventsByID,
		read: func(ctx context.Context, n int) (*batch, error) {
			rows, err := store.FirstNEvents(ctx, n)
			if err != nil {
				return nil, err
			}
			b := &batch{ids: make([]string, len(rows))}
			for i, row := range rows {
				b.ids[i] = row.ID
			}
			b.upload = func(ctx context.Context, target api.Target) ([]string, error) {
				return uploader.SaveEvents(ctx, target, rows)
			}
			return b, nil
		},
	}

	return e
}

// SyncLocations starts a location upload when at least LocationLowWater rows
// are queued, or when force is set and anything is queued. It reports
// whether a batch was started; it never waits for the response.
func (e *Engine) SyncLocations(ctx context.Context, force bool) bool {
	lowWater := e.cfg.LocationLowWater
	if force {
		lowWater = 1
	}
	return e.start(ctx, e.locations, lowWater)
}

// SyncEvents starts an event upload when at least lowWater events are
// queued. It reports whether a batch was started.
func (e *Engine) SyncEvents(ctx context.Context, lowWater int) bool {
	return e.start(ctx, e.events, max(lowWater, 1))
}

// Wait blocks until every in-flight upload has finished
func (e *Engine) Wait() {
	e.wg.Wait()
}

// InFlight reports whether a batch for queueType is being uploaded
func (e *Engine) InFlight(queueType string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight[queueType]
}

func (e *Engine) start(ctx context.Context, q *queue, lowWater int) bool {
	count, err := q.count(ctx)
	if err != nil {
		e.logger.Error("Failed to count queue", "queue_type", q.name, "error", err)
		return false
	}
	if count < lowWater {
		return false
	}

	if !e.acquire(q.name) {
		e.logger.Debug("Upload already in flight", "queue_type", q.name, "queued", count)
		metrics.SyncBatchesTotal.WithLabelValues(q.name, metrics.ResultSkipped).Inc()
		return false
	}

	target, err := e.target(ctx)
	if err != nil {
		e.release(q.name)
		e.logger.Warn("Skipping upload", "queue_type", q.name, "error", err)
		metrics.SyncBatchesTotal.WithLabelValues(q.name, metrics.ResultSkipped).Inc()
		return false
	}

	b, err := q.read(ctx, q.highWater)
	if err != nil {
		e.release(q.name)
		e.logger.Error("Failed to read batch", "queue_type", q.name, "error", err)
		return false
	}

	// The upload outlives the caller, e.g. an HTTP request handler
	uploadCtx := context.WithoutCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.release(q.name)
		e.drain(uploadCtx, q, target, b)
	}()

	return true
}

// drain uploads b, then keeps going while the queue stays at or above its
// drain mark, for at most MaxDrainRounds extra batches
func (e *Engine) drain(ctx context.Context, q *queue, target api.Target, b *batch) {
	for round := 0; ; round++ {
		deleted, ok := e.upload(ctx, q, target, b)
		if !ok || deleted == 0 || round >= e.cfg.MaxDrainRounds {
			return
		}

		count, err := q.count(ctx)
		if err != nil {
			e.logger.Error("Failed to count queue", "queue_type", q.name, "error", err)
			return
		}
		if count < q.drainMark {
			return
		}

		next, err := q.read(ctx, q.highWater)
		if err != nil {
			e.logger.Error("Failed to read batch", "queue_type", q.name, "error", err)
			return
		}
		if len(next.ids) == 0 {
			return
		}

		e.logger.Debug("Draining backlog", "queue_type", q.name, "queued", count, "round", round+1)
		b = next
	}
}

// upload sends one batch and deletes the acknowledged rows. It returns the
// number of rows deleted and whether the server acknowledged the batch.
func (e *Engine) upload(ctx context.Context, q *queue, target api.Target, b *batch) (int, bool) {
	metrics.SyncInFlight.WithLabelValues(q.name).Set(1)
	timer := prometheus.NewTimer(metrics.SyncRequestDuration.WithLabelValues(q.name))
	acked, err := b.upload(ctx, target)
	timer.ObserveDuration()
	metrics.SyncInFlight.WithLabelValues(q.name).Set(0)

	if err != nil {
		result := metrics.ResultFailure
		var httpErr *api.HTTPError
		switch {
		case api.IsUnauthorized(err):
			// Rows stay queued until a re-initialize supplies a valid token
			result = metrics.ResultUnauthorized
			e.logger.Warn("Access token rejected", "queue_type", q.name, "rows", len(b.ids))
		case api.IsServerError(err):
			result = metrics.ResultServerError
		case errors.As(err, &httpErr):
			result = metrics.ResultRejected
		case errors.Is(err, api.ErrMalformedResponse):
			result = metrics.ResultMalformed
		}
		metrics.SyncBatchesTotal.WithLabelValues(q.name, result).Inc()
		e.logger.Error("Upload failed", "queue_type", q.name, "rows", len(b.ids), "result", result, "error", err)
		return 0, false
	}

	ids := matchAcked(b.ids, acked)
	deleted, err := q.delete(ctx, ids)
	if err != nil {
		// Rows stay queued and are sent again; the server dedups by id
		metrics.SyncBatchesTotal.WithLabelValues(q.name, metrics.ResultFailure).Inc()
		e.logger.Error("Failed to delete acknowledged rows", "queue_type", q.name, "ids", len(ids), "error", err)
		return 0, false
	}

	metrics.SyncBatchesTotal.WithLabelValues(q.name, metrics.ResultSuccess).Inc()
	metrics.SyncRowsAckedTotal.WithLabelValues(q.name).Add(float64(deleted))

	e.logger.Info("Upload acknowledged",
		"queue_type", q.name,
		"sent", len(b.ids),
		"acked", len(acked),
		"deleted", deleted)

	return deleted, true
}

func (e *Engine) target(ctx context.Context) (api.Target, error) {
	settings, err := e.store.GetSettings(ctx)
	if err != nil {
		return api.Target{}, err
	}

	target := api.Target{
		BaseURL:   settings[database.SettingAPIURL],
		Token:     settings[database.SettingAccessToken],
		UserAgent: settings[database.SettingUserAgent],
	}
	if target.BaseURL == "" || target.Token == "" {
		return api.Target{}, fmt.Errorf("not initialized: %s and %s are required", database.SettingAPIURL, database.SettingAccessToken)
	}

	return target, nil
}

func (e *Engine) acquire(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inFlight[name] {
		return false
	}
	e.inFlight[name] = true
	return true
}

func (e *Engine) release(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, name)
}

type queue struct {
	name      string // metrics label
	highWater int
	drainMark int
	count     func(ctx context.Context) (int, error)
	read      func(ctx context.Context, n int) (*batch, error)
	delete    func(ctx context.Context, ids []string) (int, error)
}

type batch struct {
	ids    []string
	upload func(ctx context.Context, target api.Target) ([]string, error)
}
