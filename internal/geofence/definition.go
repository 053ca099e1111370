package geofence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"location-relay/internal/metrics"
)

// Notification is the text shown when the device enters a geofence
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Definition is the geofence configuration supplied at initialization
type Definition struct {
	Notification Notification                  `json:"notification"`
	Circular     map[string]CircularDefinition `json:"circular_geofences"`
	Polygons     map[string][]Coordinate       `json:"polygon_geofences"`
}

// CircularDefinition is one entry of circular_geofences
type CircularDefinition struct {
	Center *Coordinate `json:"center"`
	Radius number      `json:"radius"`
}

// Coordinate is a {lat, lon} pair as it appears in the definition
type Coordinate struct {
	Lat number `json:"lat"`
	Lon number `json:"lon"`
}

// Point converts c to a GPSPoint
func (c Coordinate) Point() GPSPoint {
	return GPSPoint{Latitude: float64(c.Lat), Longitude: float64(c.Lon)}
}

// number accepts both JSON numbers and numeric strings ("123.5")
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}

	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid number %s", data)
	}
	*n = number(f)
	return nil
}

// ParseDefinition decodes a geofence definition. Missing sections are
// treated as empty.
func ParseDefinition(raw string) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		return nil, fmt.Errorf("failed to parse geofence definition: %w", err)
	}

	for id, c := range def.Circular {
		if c.Center == nil {
			return nil, fmt.Errorf("circular geofence %s has no center", id)
		}
	}

	return &def, nil
}

// LoadDefinition replaces the configured geofences with those in raw and
// returns how many were loaded. A malformed definition is logged and loads
// nothing.
func (e *Engine) LoadDefinition(raw string) int {
	def, err := ParseDefinition(raw)
	if err != nil {
		e.logger.Error("Ignoring geofence definition", "error", err)
		return 0
	}

	geofences := make(map[string]Geofence, len(def.Circular)+len(def.Polygons))
	for _, id := range sortedKeys(def.Circular) {
		c := def.Circular[id]
		geofences[id] = NewCircular(id, c.Center.Point(), float64(c.Radius))
	}
	for _, id := range sortedKeys(def.Polygons) {
		vertices := make([]GPSPoint, len(def.Polygons[id]))
		for i, c := range def.Polygons[id] {
			vertices[i] = c.Point()
		}
		geofences[id] = NewPolygon(id, vertices)
	}

	e.mu.Lock()
	e.geofences = geofences
	e.notification = def.Notification
	e.mu.Unlock()

	e.logger.Info("Loaded geofences",
		"circular", len(def.Circular),
		"polygon", len(def.Polygons),
		"total", len(geofences))
	metrics.GeofencesLoaded.Set(float64(len(geofences)))

	return len(geofences)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
