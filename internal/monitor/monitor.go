// Package monitor ties the ingest, geofence and sync engines together. It
// turns geofence transitions into queued events and notifications, tracks
// platform status changes and runs the periodic maintenance pass.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"location-relay/internal/config"
	"location-relay/internal/database"
	"location-relay/internal/geofence"
	"location-relay/internal/ingest"
	"location-relay/internal/metrics"
	"location-relay/internal/syncer"
)

// ServiceName is the service recorded on every queued event
const ServiceName = "location tracking"

// Event actions
const (
	ActionEnterGeofence    = "entering geofence"
	ActionExitGeofence     = "exiting geofence"
	ActionShowNotification = "showed geofence notification"
	ActionStatusChange     = "changing monitoring or permissions status"
)

const (
	// NotificationDebounce is the minimum time between two geofence
	// notifications
	NotificationDebounce = 60 * time.Second
	// StateResetInterval clears geofence states when no notification has
	// been shown or cancelled for this long
	StateResetInterval = 24 * time.Hour
)

// Store is the subset of the database the monitor needs
type Store interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	SaveSettings(ctx context.Context, settings map[string]string) error
	DeleteSettings(ctx context.Context) error
	InsertEvent(ctx context.Context, ev *database.Event) error
	LastNLocations(ctx context.Context, n int) ([]*database.Location, error)
	GetServiceStatus(ctx context.Context, service string) (*database.ServiceStatus, error)
	UpsertServiceStatus(ctx context.Context, service, status string) error
}

// Syncer starts uploads
type Syncer interface {
	SyncLocations(ctx context.Context, force bool) bool
	SyncEvents(ctx context.Context, lowWater int) bool
}

// Monitor coordinates the engines for one device
type Monitor struct {
	store     Store
	geofences *geofence.Engine
	ingest    *ingest.Engine
	syncer    Syncer
	logger    *slog.Logger

	notifier Notifier
	platform PlatformStatus
	source   LocationSource
	now      func() time.Time

	mu sync.Mutex
	// lastNotificationUpdate is when a notification was last shown or
	// cancelled. It is kept in memory only.
	lastNotificationUpdate time.Time
}

// New creates a monitor and registers it as the ingest engine's position
// and stop hooks
func New(store Store, geofences *geofence.Engine, ingestEngine *ingest.Engine, uploads Syncer, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		store:     store,
		geofences: geofences,
		ingest:    ingestEngine,
		syncer:    uploads,
		logger:    logger,
		notifier:  NewLogNotifier(logger),
		platform:  NewReportedPlatform(),
		source:    &UpdateRequests{},
		now:       time.Now,
	}

	ingestEngine.OnPosition(m.OnPosition)
	ingestEngine.OnStop(m.StopUpdates)

	return m
}

// SetNotifier replaces the notification renderer
func (m *Monitor) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// SetPlatform replaces the platform status source
func (m *Monitor) SetPlatform(p PlatformStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.platform = p
}

// SetLocationSource replaces the location update controller
func (m *Monitor) SetLocationSource(s LocationSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = s
}

// SetClock replaces the clock used for notification timing
func (m *Monitor) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Initialize validates opts and stores them as the settings. Nothing is
// written when validation fails.
func (m *Monitor) Initialize(ctx context.Context, opts config.Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	settings := map[string]string{
		database.SettingAPIURL:              opts.APIURL,
		database.SettingAccessToken:         opts.AccessToken,
		database.SettingScheduledJobID:      strconv.Itoa(*opts.ScheduledJobID),
		database.SettingTrackingFrequencyMS: strconv.Itoa(*opts.TrackingFrequencyMS),
		database.SettingUserAgent:           opts.UserAgent,
	}
	if opts.Geofences != "" {
		settings[database.SettingGeofenceDefinitionJSON] = string(opts.Geofences)
	}

	if err := m.store.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// A new definition applies from the next position on
	if opts.Geofences != "" {
		m.loadGeofences(ctx)
	}

	m.logger.Info("Settings saved",
		"api_url", opts.APIURL,
		"scheduled_job_id", *opts.ScheduledJobID,
		"tracking_frequency_ms", *opts.TrackingFrequencyMS,
		"geofences", m.geofences.Len())

	return nil
}

// ClearSettings deletes every setting and forgets the loaded geofences.
// Queued rows are kept.
func (m *Monitor) ClearSettings(ctx context.Context) error {
	if err := m.store.DeleteSettings(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.geofences.Clear()
	m.lastNotificationUpdate = time.Time{}
	m.logger.Info("Settings cleared")

	return nil
}

// LastPosition returns the newest queued position or nil
func (m *Monitor) LastPosition(ctx context.Context) (*database.Location, error) {
	rows, err := m.store.LastNLocations(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// PerformMaintenance records status changes, grabs one fresh position and
// uploads queued positions
func (m *Monitor) PerformMaintenance(ctx context.Context) {
	m.logger.Info("Performing maintenance")
	metrics.MaintenanceRunsTotal.Inc()

	if err := m.SaveMonitoringStatus(ctx); err != nil {
		m.logger.Error("Failed to save monitoring status", "error", err)
	}

	m.SaveCurrentLocationThenStop()
	m.syncer.SyncLocations(ctx, false)
}

// SaveCurrentLocationThenStop starts location updates and stops them again
// once the next position has been handled. The request is dropped when
// updates cannot start.
func (m *Monitor) SaveCurrentLocationThenStop() {
	m.ingest.StopAfterNextLocation()
	if !m.startUpdates() {
		m.ingest.CancelStopAfterNextLocation()
	}
}

// StartUpdates asks the location source for positions. Nothing happens
// without location permission.
func (m *Monitor) StartUpdates() {
	m.startUpdates()
}

func (m *Monitor) startUpdates() bool {
	if m.PermissionStatus() == PermissionNotGranted {
		m.logger.Warn("Not starting location updates without permission")
		return false
	}

	m.mu.Lock()
	source := m.source
	m.mu.Unlock()

	if err := source.StartUpdates(); err != nil {
		m.logger.Error("Failed to start location updates", "error", err)
		return false
	}
	m.logger.Info("Started location updates")
	return true
}

// StopUpdates asks the location source to stop delivering positions
func (m *Monitor) StopUpdates() {
	m.mu.Lock()
	source := m.source
	m.mu.Unlock()

	if err := source.StopUpdates(); err != nil {
		m.logger.Error("Failed to stop location updates", "error", err)
		return
	}
	m.logger.Info("Stopped location updates")
}

// UpdatesRequested reports whether location updates are currently wanted
func (m *Monitor) UpdatesRequested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source.Requested()
}

// OnPosition evaluates the geofences for the newest position of a delivery,
// queues edge events and shows or cancels the geofence notification
func (m *Monitor) OnPosition(ctx context.Context, s ingest.Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.geofences.Len() == 0 {
		m.loadGeofences(ctx)
	}

	now := m.now()
	notified := !m.lastNotificationUpdate.IsZero()
	var sinceUpdate time.Duration
	if notified {
		sinceUpdate = now.Sub(m.lastNotificationUpdate)
	}

	if sinceUpdate > StateResetInterval {
		m.logger.Info("Resetting geofence states", "since_last_notification", sinceUpdate)
		m.geofences.ResetStates()
	}

	snap := m.geofences.Evaluate(s.Point())
	if err := m.geofences.SaveStates(ctx, m.store); err != nil {
		m.logger.Error("Failed to save geofence states", "error", err)
	}

	if len(snap.Activated) > 0 {
		m.enqueue(ctx, ActionEnterGeofence, map[string]string{
			"activated_geofence_place_ids": strings.Join(snap.Activated, ","),
		})
	}
	if len(snap.Inactivated) > 0 {
		m.enqueue(ctx, ActionExitGeofence, map[string]string{
			"inactivated_geofence_place_ids": strings.Join(snap.Inactivated, ","),
		})
	}

	showing := m.notifier.IsShowing()
	switch {
	case len(snap.Activated) > 0 && (!notified || sinceUpdate > NotificationDebounce) && !showing:
		n := m.geofences.Notification()
		m.enqueue(ctx, ActionShowNotification, map[string]string{
			"title": n.Title,
			"body":  n.Body,
		})
		if err := m.notifier.Show(n.Title, n.Body); err != nil {
			m.logger.Error("Failed to show geofence notification", "error", err)
		}
		m.lastNotificationUpdate = now
		metrics.GeofenceNotificationsTotal.WithLabelValues(metrics.NotificationShown).Inc()

	case len(snap.Activated) == 0 && len(snap.Active) == 0 && showing:
		if err := m.notifier.Cancel(); err != nil {
			m.logger.Error("Failed to cancel geofence notification", "error", err)
		}
		m.lastNotificationUpdate = now
		metrics.GeofenceNotificationsTotal.WithLabelValues(metrics.NotificationCancelled).Inc()
	}

	m.syncer.SyncEvents(ctx, syncer.GeofenceEventMark)
}

// loadGeofences reads the definition and saved states from settings.
// Callers hold m.mu.
func (m *Monitor) loadGeofences(ctx context.Context) {
	raw, ok, err := m.store.GetSetting(ctx, database.SettingGeofenceDefinitionJSON)
	if err != nil {
		m.logger.Error("Failed to read geofence definition", "error", err)
		return
	}
	if !ok || raw == "" {
		return
	}

	if m.geofences.LoadDefinition(raw) == 0 {
		return
	}
	if err := m.geofences.LoadStates(ctx, m.store); err != nil {
		m.logger.Error("Failed to restore geofence states", "error", err)
	}
}

// enqueue stores an event. Failures are logged; the event is lost.
func (m *Monitor) enqueue(ctx context.Context, action string, objects map[string]string) {
	data, err := json.Marshal(objects)
	if err != nil {
		m.logger.Error("Failed to encode event", "action", action, "error", err)
		return
	}

	token, _, err := m.store.GetSetting(ctx, database.SettingAccessToken)
	if err != nil {
		m.logger.Error("Failed to read access token", "error", err)
	}

	ev := &database.Event{
		AccessToken: token,
		Service:     ServiceName,
		Action:      action,
		Objects:     data,
	}
	if err := m.store.InsertEvent(ctx, ev); err != nil {
		m.logger.Error("Failed to queue event", "action", action, "error", err)
		return
	}

	m.logger.Debug("Queued event", "id", ev.ID, "action", action)
}
