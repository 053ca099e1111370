package geofence

import "math"

// latitudeNudge moves a test point off a vertex latitude so the eastward
// ray never runs exactly through a vertex
const latitudeNudge = 0.00000001

// rayCrossesSegment reports whether a ray cast east from p crosses the edge
// a-b. Negative longitudes are shifted by 360 so edges spanning the
// antimeridian compare correctly.
func rayCrossesSegment(p, a, b GPSPoint) bool {
	px, py := p.Longitude, p.Latitude
	ax, ay := a.Longitude, a.Latitude
	bx, by := b.Longitude, b.Latitude

	// a is always the lower endpoint
	if ay > by {
		ax, ay, bx, by = bx, by, ax, ay
	}

	if px < 0 {
		px += 360
	}
	if ax < 0 {
		ax += 360
	}
	if bx < 0 {
		bx += 360
	}

	if py == ay || py == by {
		py += latitudeNudge
	}

	// Outside the edge's latitude band, or east of both endpoints
	if py > by || py < ay || px > math.Max(ax, bx) {
		return false
	}

	// West of both endpoints
	if px < math.Min(ax, bx) {
		return true
	}

	// Inside the edge's bounding box: p is west of the edge when the slope
	// a->p is at least the slope a->b
	red := math.MaxFloat64
	if ax != bx {
		red = (by - ay) / (bx - ax)
	}
	blue := math.MaxFloat64
	if ax != px {
		blue = (py - ay) / (px - ax)
	}

	return blue >= red
}
