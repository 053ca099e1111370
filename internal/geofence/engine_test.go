package geofence

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"location-relay/internal/database"
)

type memorySettings map[string]string

func (m memorySettings) GetSetting(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m memorySettings) SetSetting(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

const testDefinition = `{
	"notification": {"title": "Welcome", "body": "You are near a study site"},
	"circular_geofences": {
		"home": {"center": {"lat": 43.0731, "lon": -89.4012}, "radius": "150"},
		"office": {"center": {"lat": "43.0766", "lon": "-89.4125"}, "radius": 75.5}
	},
	"polygon_geofences": {
		"park": [
			{"lat": 43.00, "lon": -89.50},
			{"lat": 43.10, "lon": -89.50},
			{"lat": 43.10, "lon": -89.30},
			{"lat": 43.00, "lon": -89.30}
		]
	}
}`

func TestEngineEvaluate(t *testing.T) {
	e := NewEngine(nil)
	e.AddCircular("home", GPSPoint{Latitude: 43.0731, Longitude: -89.4012}, 150)
	e.AddPolygon("park", []GPSPoint{
		{Latitude: 43.00, Longitude: -89.50},
		{Latitude: 43.10, Longitude: -89.50},
		{Latitude: 43.10, Longitude: -89.30},
		{Latitude: 43.00, Longitude: -89.30},
	})

	home := GPSPoint{Latitude: 43.0731, Longitude: -89.4012}
	away := GPSPoint{Latitude: 44, Longitude: -90}

	snap := e.Evaluate(home)
	assert.Equal(t, []string{"home", "park"}, snap.Activated)
	assert.Empty(t, snap.Inactivated)
	assert.Empty(t, snap.Active)

	snap = e.Evaluate(home)
	assert.Empty(t, snap.Activated)
	assert.Equal(t, []string{"home", "park"}, snap.Active)

	snap = e.Evaluate(away)
	assert.Equal(t, []string{"home", "park"}, snap.Inactivated)
	assert.Empty(t, snap.Active)

	assert.Equal(t, []string{"home", "park"}, e.ByState(StateInactivated))
	assert.Equal(t, []string{"home", "park"}, e.ByState(StateUnknown))
	assert.Empty(t, e.ByState(StateActive))

	e.ResetStates()
	for id, state := range e.States() {
		assert.Equal(t, StateUnknown, state, "geofence %s", id)
	}
}

func TestLoadDefinition(t *testing.T) {
	e := NewEngine(nil)
	require.Equal(t, 3, e.LoadDefinition(testDefinition))
	assert.Equal(t, 3, e.Len())
	assert.Equal(t, Notification{Title: "Welcome", Body: "You are near a study site"}, e.Notification())

	geofences := e.Geofences()
	require.Len(t, geofences, 3)
	assert.Equal(t, "home", geofences[0].ID())
	assert.Equal(t, KindCircular, geofences[0].Kind())
	assert.Equal(t, 150.0, geofences[0].(*Circular).Radius)
	assert.Equal(t, 75.5, geofences[1].(*Circular).Radius)
	assert.InDelta(t, 43.0766, geofences[1].(*Circular).Center.Latitude, 1e-9)
	assert.Equal(t, KindPolygon, geofences[2].Kind())
	assert.Len(t, geofences[2].(*Polygon).Vertices, 4)
}

func TestLoadMalformedDefinition(t *testing.T) {
	tests := map[string]string{
		"not json":       `{"circular_geofences": `,
		"bad radius":     `{"circular_geofences": {"a": {"center": {"lat": 1, "lon": 2}, "radius": "wide"}}}`,
		"missing center": `{"circular_geofences": {"a": {"radius": "10"}}}`,
		"bad polygon":    `{"polygon_geofences": {"a": {"lat": 1}}}`,
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			e := NewEngine(nil)
			e.AddCircular("existing", GPSPoint{}, 10)

			assert.NotPanics(t, func() {
				assert.Equal(t, 0, e.LoadDefinition(raw))
			})
			// A rejected definition leaves the current geofences alone
			assert.Equal(t, 1, e.Len())
		})
	}
}

func TestLoadDefinitionMissingSections(t *testing.T) {
	e := NewEngine(nil)
	assert.Equal(t, 0, e.LoadDefinition(`{"notification": {"title": "t", "body": "b"}}`))
	assert.Equal(t, 0, e.Len())
}

func TestStatesReloadIntoDifferentSet(t *testing.T) {
	ctx := context.Background()
	store := memorySettings{}

	first := NewEngine(nil)
	first.AddCircular("kept", GPSPoint{}, 100)
	first.AddCircular("removed", GPSPoint{}, 100)
	first.Evaluate(GPSPoint{})
	first.Evaluate(GPSPoint{})
	require.NoError(t, first.SaveStates(ctx, store))

	var saved map[string]string
	require.NoError(t, json.Unmarshal([]byte(store[database.SettingGeofenceStateJSON]), &saved))
	assert.Equal(t, map[string]string{"kept": "active", "removed": "active"}, saved)

	second := NewEngine(nil)
	second.AddCircular("kept", GPSPoint{}, 100)
	second.AddCircular("added", GPSPoint{}, 100)
	require.NoError(t, second.LoadStates(ctx, store))

	assert.Equal(t, map[string]State{"kept": StateActive, "added": StateUnknown}, second.States())

	// The restored state continues the machine instead of re-entering
	snap := second.Evaluate(GPSPoint{})
	assert.Equal(t, []string{"added"}, snap.Activated)
	assert.Equal(t, []string{"kept"}, snap.Active)
}

func TestLoadStatesIgnoresGarbage(t *testing.T) {
	ctx := context.Background()

	e := NewEngine(nil)
	e.AddCircular("a", GPSPoint{}, 100)

	require.NoError(t, e.LoadStates(ctx, memorySettings{}))
	require.NoError(t, e.LoadStates(ctx, memorySettings{database.SettingGeofenceStateJSON: "{nope"}))
	require.NoError(t, e.LoadStates(ctx, memorySettings{database.SettingGeofenceStateJSON: `{"a": "sideways"}`}))

	assert.Equal(t, StateUnknown, e.States()["a"])
}

func TestFeatureCollection(t *testing.T) {
	e := NewEngine(nil)
	require.Equal(t, 3, e.LoadDefinition(testDefinition))

	fc := e.FeatureCollection()
	require.Len(t, fc.Features, 3)

	home := fc.Features[0]
	assert.Equal(t, "home", home.ID)
	assert.True(t, home.Geometry.IsPoint())
	assert.Equal(t, []float64{-89.4012, 43.0731}, home.Geometry.Point)
	assert.Equal(t, 150.0, home.Properties["radius_meters"])

	park := fc.Features[2]
	assert.True(t, park.Geometry.IsPolygon())
	require.Len(t, park.Geometry.Polygon, 1)
	ring := park.Geometry.Polygon[0]
	assert.Len(t, ring, 5)
	assert.Equal(t, ring[0], ring[4])
	assert.Equal(t, "polygon", park.Properties["kind"])
}
