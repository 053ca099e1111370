package geofence

import (
	geojson "github.com/paulmach/go.geojson"
)

// FeatureCollection renders the configured geofences as GeoJSON. Circular
// geofences become points carrying a radius_meters property and polygons
// become closed single-ring polygons.
func (e *Engine) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, g := range e.Geofences() {
		var f *geojson.Feature

		switch g := g.(type) {
		case *Circular:
			f = geojson.NewPointFeature([]float64{g.Center.Longitude, g.Center.Latitude})
			f.SetProperty("radius_meters", g.Radius)
		case *Polygon:
			f = geojson.NewPolygonFeature([][][]float64{ring(g.Vertices)})
		}

		f.ID = g.ID()
		f.SetProperty("kind", string(g.Kind()))
		f.SetProperty("state", string(g.State()))
		fc.AddFeature(f)
	}

	return fc
}

func ring(vertices []GPSPoint) [][]float64 {
	coords := make([][]float64, 0, len(vertices)+1)
	for _, v := range vertices {
		coords = append(coords, []float64{v.Longitude, v.Latitude})
	}
	if len(vertices) > 0 {
		first := vertices[0]
		coords = append(coords, []float64{first.Longitude, first.Latitude})
	}
	return coords
}
