package geofence

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// metersNorth returns a point the given distance due north of p
func metersNorth(p GPSPoint, meters float64) GPSPoint {
	return GPSPoint{
		Latitude:  p.Latitude + meters/EarthRadiusMeters*180/math.Pi,
		Longitude: p.Longitude,
	}
}

func TestDistance(t *testing.T) {
	origin := GPSPoint{}
	assert.InDelta(t, 100, Distance(origin, metersNorth(origin, 100)), 0.001)
	assert.Zero(t, Distance(origin, origin))

	// One degree of longitude along the equator
	assert.InDelta(t, 111195, Distance(origin, GPSPoint{Longitude: 1}), 1)
}

func TestCircularContains(t *testing.T) {
	center := GPSPoint{}

	tests := []struct {
		name   string
		radius float64
		point  GPSPoint
		want   bool
	}{
		{"50m away", 100, metersNorth(center, 50), true},
		{"150m away", 100, metersNorth(center, 150), false},
		{"at center", 100, center, true},
		{"zero radius at center", 0, center, false},
		{"zero radius nearby", 0, metersNorth(center, 1), false},
		{"negative radius", -10, center, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCircular("c", center, tt.radius)
			assert.Equal(t, tt.want, c.Contains(tt.point))
		})
	}
}

func TestPolygonContains(t *testing.T) {
	square := NewPolygon("square", []GPSPoint{
		{Latitude: 0, Longitude: 0},
		{Latitude: 10, Longitude: 0},
		{Latitude: 10, Longitude: 10},
		{Latitude: 0, Longitude: 10},
	})

	assert.True(t, square.Contains(GPSPoint{Latitude: 5, Longitude: 5}))
	assert.False(t, square.Contains(GPSPoint{Latitude: 5, Longitude: 15}))
	assert.False(t, square.Contains(GPSPoint{Latitude: 15, Longitude: 5}))
	assert.False(t, square.Contains(GPSPoint{Latitude: 5, Longitude: -5}))

	// On the western edge: must be stable across calls
	edge := GPSPoint{Latitude: 5, Longitude: 0}
	first := square.Contains(edge)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, square.Contains(edge))
	}

	// Same latitude as the southern vertices
	assert.True(t, square.Contains(GPSPoint{Latitude: 0, Longitude: 5}))
}

func TestPolygonAcrossAntimeridian(t *testing.T) {
	pacific := NewPolygon("pacific", []GPSPoint{
		{Latitude: -10, Longitude: 170},
		{Latitude: 10, Longitude: 170},
		{Latitude: 10, Longitude: -170},
		{Latitude: -10, Longitude: -170},
	})

	assert.True(t, pacific.Contains(GPSPoint{Latitude: 0, Longitude: 179}))
	assert.True(t, pacific.Contains(GPSPoint{Latitude: 0, Longitude: -179}))
	assert.False(t, pacific.Contains(GPSPoint{Latitude: 0, Longitude: 160}))
}

func TestDegeneratePolygon(t *testing.T) {
	line := NewPolygon("line", []GPSPoint{{Latitude: 0, Longitude: 0}, {Latitude: 10, Longitude: 10}})
	assert.False(t, line.Contains(GPSPoint{Latitude: 5, Longitude: 5}))
	assert.False(t, NewPolygon("empty", nil).Contains(GPSPoint{}))
}

func TestStateSequence(t *testing.T) {
	inputs := []bool{false, true, true, false, false}
	want := []State{StateInactivated, StateActivated, StateActive, StateInactivated, StateInactive}

	state := StateUnknown
	var got []State
	for _, inside := range inputs {
		state = state.Next(inside)
		got = append(got, state)
	}

	assert.Equal(t, want, got)
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from   State
		inside bool
		want   State
	}{
		{StateUnknown, true, StateActivated},
		{StateInactivated, true, StateActivated},
		{StateInactive, true, StateActivated},
		{StateActive, true, StateActive},
		{StateActivated, true, StateActive},
		{StateUnknown, false, StateInactivated},
		{StateActive, false, StateInactivated},
		{StateActivated, false, StateInactivated},
		{StateInactive, false, StateInactive},
		{StateInactivated, false, StateInactive},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.Next(tt.inside), "from %q inside=%v", tt.from, tt.inside)
	}
}
