// Package geofence tracks whether the device is inside a set of circular and
// polygon regions and turns containment changes into one-shot edge states.
package geofence

import (
	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean earth radius used for great-circle distances
const EarthRadiusMeters = 6371008.8

// GPSPoint is a WGS84 position in degrees
type GPSPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Distance returns the great-circle distance between a and b in meters
func Distance(a, b GPSPoint) float64 {
	from := s2.LatLngFromDegrees(a.Latitude, a.Longitude)
	to := s2.LatLngFromDegrees(b.Latitude, b.Longitude)
	return from.Distance(to).Radians() * EarthRadiusMeters
}

// Kind discriminates the two geofence shapes
type Kind string

const (
	KindCircular Kind = "circular"
	KindPolygon  Kind = "polygon"
)

// Geofence is a named region with a containment state. The only
// implementations are *Circular and *Polygon.
type Geofence interface {
	ID() string
	Kind() Kind
	Contains(p GPSPoint) bool
	State() State

	setState(s State)
}

type base struct {
	id    string
	state State
}

func (b *base) ID() string { return b.id }
func (b *base) State() State { return b.state }
func (b *base) setState(s State) { b.state = s }

// Circular is a region within Radius meters of Center
type Circular struct {
	base
	Center GPSPoint
	Radius float64
}

// NewCircular creates a circular geofence with an empty state
func NewCircular(id string, center GPSPoint, radius float64) *Circular {
	return &Circular{base: base{id: id}, Center: center, Radius: radius}
}

func (c *Circular) Kind() Kind { return KindCircular }

// Contains reports whether p is strictly closer than Radius to Center. A
// non-positive radius contains nothing.
func (c *Circular) Contains(p GPSPoint) bool {
	if c.Radius <= 0 {
		return false
	}
	return Distance(c.Center, p) < c.Radius
}

// Polygon is a closed region bounded by Vertices. The last vertex connects
// back to the first.
type Polygon struct {
	base
	Vertices []GPSPoint
}

// NewPolygon creates a polygon geofence with an empty state. The vertex
// slice is copied.
func NewPolygon(id string, vertices []GPSPoint) *Polygon {
	return &Polygon{base: base{id: id}, Vertices: append([]GPSPoint(nil), vertices...)}
}

func (p *Polygon) Kind() Kind { return KindPolygon }

// Contains casts a ray east from pt and applies the even-odd rule. Polygons
// with fewer than three vertices contain nothing.
func (p *Polygon) Contains(pt GPSPoint) bool {
	n := len(p.Vertices)
	if n < 3 {
		return false
	}

	crossings := 0
	for i := 0; i < n; i++ {
		if rayCrossesSegment(pt, p.Vertices[i], p.Vertices[(i+1)%n]) {
			crossings++
		}
	}

	return crossings%2 == 1
}
