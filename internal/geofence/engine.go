package geofence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"location-relay/internal/database"
	"location-relay/internal/metrics"
)

// SettingsStore persists the geofence state map
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Snapshot lists geofence ids by state after one evaluation. Each slice is
// sorted.
type Snapshot struct {
	Activated   []string
	Inactivated []string
	Active      []string
}

// Engine owns the configured geofences and their states
type Engine struct {
	mu           sync.Mutex
	geofences    map[string]Geofence
	notification Notification
	logger       *slog.Logger
}

// NewEngine creates an engine with no geofences
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		geofences: make(map[string]Geofence),
		logger:    logger,
	}
}

// AddCircular adds or replaces a circular geofence
func (e *Engine) AddCircular(id string, center GPSPoint, radius float64) {
	e.add(NewCircular(id, center, radius))
}

// AddPolygon adds or replaces a polygon geofence
func (e *Engine) AddPolygon(id string, vertices []GPSPoint) {
	e.add(NewPolygon(id, vertices))
}

func (e *Engine) add(g Geofence) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.geofences[g.ID()] = g
	metrics.GeofencesLoaded.Set(float64(len(e.geofences)))
}

// Len returns the number of configured geofences
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.geofences)
}

// Evaluate advances every geofence's state for point p
func (e *Engine) Evaluate(p GPSPoint) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	var snap Snapshot
	for id, g := range e.geofences {
		next := g.State().Next(g.Contains(p))
		g.setState(next)

		switch next {
		case StateActivated:
			snap.Activated = append(snap.Activated, id)
			metrics.GeofenceTransitionsTotal.WithLabelValues(string(next)).Inc()
		case StateInactivated:
			snap.Inactivated = append(snap.Inactivated, id)
			metrics.GeofenceTransitionsTotal.WithLabelValues(string(next)).Inc()
		case StateActive:
			snap.Active = append(snap.Active, id)
		}
	}

	sort.Strings(snap.Activated)
	sort.Strings(snap.Inactivated)
	sort.Strings(snap.Active)

	e.logger.Debug("Evaluated geofences",
		"geofences", len(e.geofences),
		"activated", len(snap.Activated),
		"active", len(snap.Active),
		"inactivated", len(snap.Inactivated))

	return snap
}

// ByState returns the sorted ids of geofences in state s. The empty state
// matches every geofence.
func (e *Engine) ByState(s State) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var ids []string
	for id, g := range e.geofences {
		if s == StateUnknown || g.State() == s {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	return ids
}

// States returns a copy of the id to state map
func (e *Engine) States() map[string]State {
	e.mu.Lock()
	defer e.mu.Unlock()

	states := make(map[string]State, len(e.geofences))
	for id, g := range e.geofences {
		states[id] = g.State()
	}
	return states
}

// Clear removes every geofence and the notification text
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.geofences = make(map[string]Geofence)
	e.notification = Notification{}
	metrics.GeofencesLoaded.Set(0)
}

// ResetStates clears every geofence back to the unknown state
func (e *Engine) ResetStates() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, g := range e.geofences {
		g.setState(StateUnknown)
	}
}

// SaveStates writes the id to state map to the settings store
func (e *Engine) SaveStates(ctx context.Context, store SettingsStore) error {
	data, err := json.Marshal(e.States())
	if err != nil {
		return fmt.Errorf("failed to marshal geofence states: %w", err)
	}

	if err := store.SetSetting(ctx, database.SettingGeofenceStateJSON, string(data)); err != nil {
		return fmt.Errorf("failed to save geofence states: %w", err)
	}

	return nil
}

// LoadStates restores saved states onto the configured geofences. Ids that
// are not configured and unrecognised states are ignored. A corrupt state
// map is logged and leaves every state untouched.
func (e *Engine) LoadStates(ctx context.Context, store SettingsStore) error {
	raw, ok, err := store.GetSetting(ctx, database.SettingGeofenceStateJSON)
	if err != nil {
		return fmt.Errorf("failed to load geofence states: %w", err)
	}
	if !ok || raw == "" {
		return nil
	}

	var saved map[string]State
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		e.logger.Warn("Ignoring malformed geofence states", "error", err)
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	restored := 0
	for id, state := range saved {
		g, ok := e.geofences[id]
		if !ok || !state.Valid() {
			continue
		}
		g.setState(state)
		restored++
	}

	e.logger.Debug("Loaded geofence states", "saved", len(saved), "restored", restored)

	return nil
}

// Notification returns the notification text from the loaded definition
func (e *Engine) Notification() Notification {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notification
}

// Geofences returns every configured geofence sorted by id
func (e *Engine) Geofences() []Geofence {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := make([]Geofence, 0, len(e.geofences))
	for _, g := range e.geofences {
		list = append(list, g)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })

	return list
}
