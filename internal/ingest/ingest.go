// Package ingest filters incoming position fixes, queues the ones worth
// keeping and triggers geofence evaluation and uploads.
package ingest

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"location-relay/internal/database"
	"location-relay/internal/geofence"
	"location-relay/internal/metrics"
)

// Store is the subset of the database the ingest engine needs
type Store interface {
	InsertLocation(ctx context.Context, loc *database.Location) error
	LastNLocations(ctx context.Context, n int) ([]*database.Location, error)
	LastLocationTime(ctx context.Context) (string, error)
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

// Syncer starts location uploads
type Syncer interface {
	SyncLocations(ctx context.Context, force bool) bool
}

// PositionHook receives the newest position of every delivery
type PositionHook func(ctx context.Context, s Sample)

// Config holds the movement filter settings
type Config struct {
	// MovementThreshold is the minimum distance in meters from the last
	// stored position for a new position to be stored
	MovementThreshold float64
	// InactivityInterval forces an upload of whatever is queued once the
	// newest stored position is older than this
	InactivityInterval time.Duration
}

// DefaultConfig returns the standard filter settings
func DefaultConfig() Config {
	return Config{
		MovementThreshold:  0,
		InactivityInterval: 2 * time.Hour,
	}
}

// Engine processes position deliveries one at a time
type Engine struct {
	mu     sync.Mutex
	store  Store
	syncer Syncer
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	device     DeviceStateProvider
	onPosition PositionHook
	stopper    func()

	stopAfterNext atomic.Bool
}

// New creates an ingest engine
func New(store Store, syncer Syncer, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		syncer: syncer,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// OnPosition registers the hook run after each delivery, normally the
// geofence evaluation
func (e *Engine) OnPosition(hook PositionHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onPosition = hook
}

// OnStop registers the function that halts location updates after a
// save-once request has been served
func (e *Engine) OnStop(stop func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopper = stop
}

// SetDeviceStateProvider sets the source of the power flags stored with
// each position
func (e *Engine) SetDeviceStateProvider(p DeviceStateProvider) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.device = p
}

// SetClock replaces the clock used for the inactivity check
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// StopAfterNextLocation asks the engine to halt location updates once the
// next delivery has been processed
func (e *Engine) StopAfterNextLocation() {
	e.stopAfterNext.Store(true)
}

// CancelStopAfterNextLocation withdraws a pending save-once request
func (e *Engine) CancelStopAfterNextLocation() {
	e.stopAfterNext.Store(false)
}

// StopRequested reports whether a save-once request is pending
func (e *Engine) StopRequested() bool {
	return e.stopAfterNext.Load()
}

// HandleBurst processes several fixes delivered together. Fixes are ordered
// by time and the newest one is the burst's position. Older fixes are stored
// as-is when both coordinates differ from the newest; the newest goes
// through the movement filter.
func (e *Engine) HandleBurst(ctx context.Context, samples []Sample) {
	samples = e.valid(samples)
	if len(samples) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) })
	terminal := samples[len(samples)-1]
	token := e.accessToken(ctx)

	for _, s := range samples[:len(samples)-1] {
		if s.Latitude == terminal.Latitude || s.Longitude == terminal.Longitude {
			continue
		}
		if e.insert(ctx, s, token) {
			metrics.IngestSamplesTotal.WithLabelValues(metrics.OutcomeBurstSaved).Inc()
		}
	}

	e.process(ctx, terminal, token)
}

// HandleSample processes a single fix
func (e *Engine) HandleSample(ctx context.Context, s Sample) {
	if len(e.valid([]Sample{s})) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.process(ctx, s, e.accessToken(ctx))
}

// UpdatePosition runs only the movement filter for s and stores it when it
// passes. The position hook and the stop check are skipped.
func (e *Engine) UpdatePosition(ctx context.Context, s Sample) {
	if len(e.valid([]Sample{s})) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.updatePosition(ctx, s, e.accessToken(ctx))
}

func (e *Engine) process(ctx context.Context, s Sample, token string) {
	e.updatePosition(ctx, s, token)

	if e.onPosition != nil {
		e.onPosition(ctx, s)
	}

	if e.stopAfterNext.CompareAndSwap(true, false) {
		e.logger.Info("Saved current location, stopping location updates")
		if e.stopper != nil {
			e.stopper()
		}
	}
}

func (e *Engine) updatePosition(ctx context.Context, s Sample, token string) {
	// Read before inserting so the inactivity check sees the previous fix
	lastTime, err := e.store.LastLocationTime(ctx)
	if err != nil {
		e.logger.Error("Failed to get last location time", "error", err)
	}

	last, ok := e.lastPosition(ctx)
	if ok {
		distance := geofence.Distance(last, s.Point())
		metrics.IngestDistanceMeters.Observe(distance)

		if distance < e.cfg.MovementThreshold {
			metrics.IngestSamplesTotal.WithLabelValues(metrics.OutcomeFiltered).Inc()
			e.logger.Debug("Position too close to last stored position",
				"distance_m", distance,
				"threshold_m", e.cfg.MovementThreshold)

			if e.inactiveSince(lastTime) {
				e.logger.Info("No new positions for a while, forcing upload", "last_location_time", lastTime)
				e.syncer.SyncLocations(ctx, true)
			}
			return
		}
	}

	if !e.insert(ctx, s, token) {
		return
	}
	metrics.IngestSamplesTotal.WithLabelValues(metrics.OutcomePersisted).Inc()

	if e.inactiveSince(lastTime) {
		e.logger.Info("First position after a long gap, forcing upload", "last_location_time", lastTime)
		e.syncer.SyncLocations(ctx, true)
	} else {
		e.syncer.SyncLocations(ctx, false)
	}
}

func (e *Engine) insert(ctx context.Context, s Sample, token string) bool {
	device := UnknownDeviceState
	if e.device != nil {
		device = e.device.DeviceState()
	}

	loc, err := newLocation(s, token, device)
	if err == nil {
		err = e.store.InsertLocation(ctx, loc)
	}
	if err != nil {
		metrics.IngestSamplesTotal.WithLabelValues(metrics.OutcomeStoreError).Inc()
		e.logger.Error("Failed to store position", "error", err)
		return false
	}

	return true
}

func (e *Engine) lastPosition(ctx context.Context) (geofence.GPSPoint, bool) {
	rows, err := e.store.LastNLocations(ctx, 1)
	if err != nil {
		e.logger.Error("Failed to read last stored position", "error", err)
		return geofence.GPSPoint{}, false
	}
	if len(rows) == 0 {
		return geofence.GPSPoint{}, false
	}

	lat, latErr := strconv.ParseFloat(rows[0].Latitude, 64)
	lon, lonErr := strconv.ParseFloat(rows[0].Longitude, 64)
	if latErr != nil || lonErr != nil {
		e.logger.Warn("Last stored position is not numeric", "id", rows[0].ID)
		return geofence.GPSPoint{}, false
	}

	return geofence.GPSPoint{Latitude: lat, Longitude: lon}, true
}

func (e *Engine) inactiveSince(lastTime string) bool {
	last, ok := database.ParseTimestamp(lastTime)
	if !ok {
		return false
	}
	return e.now().After(last.Add(e.cfg.InactivityInterval))
}

func (e *Engine) accessToken(ctx context.Context) string {
	token, _, err := e.store.GetSetting(ctx, database.SettingAccessToken)
	if err != nil {
		e.logger.Error("Failed to read access token", "error", err)
	}
	return token
}

func (e *Engine) valid(samples []Sample) []Sample {
	kept := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if err := s.Validate(); err != nil {
			e.logger.Warn("Dropping invalid position", "error", err)
			continue
		}
		kept = append(kept, s)
	}
	return kept
}
