package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"location-relay/internal/database"
	"location-relay/internal/geofence"
)

// Sample is one position fix from the location source
type Sample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"` // horizontal, meters
	Speed     float64   `json:"speed"`    // meters per second
	Time      time.Time `json:"time"`
}

// Point returns the sample's position
func (s Sample) Point() geofence.GPSPoint {
	return geofence.GPSPoint{Latitude: s.Latitude, Longitude: s.Longitude}
}

// Validate rejects positions outside the WGS84 range
func (s Sample) Validate() error {
	if math.IsNaN(s.Latitude) || s.Latitude < -90 || s.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", s.Latitude)
	}
	if math.IsNaN(s.Longitude) || s.Longitude < -180 || s.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", s.Longitude)
	}
	return nil
}

// Flag is a device condition that may be unknown on some platforms
type Flag int

const (
	FlagUnknown Flag = -1
	FlagFalse   Flag = 0
	FlagTrue    Flag = 1
)

// FlagOf converts a known condition
func FlagOf(b bool) Flag {
	if b {
		return FlagTrue
	}
	return FlagFalse
}

// DeviceState is the power state recorded alongside each position
type DeviceState struct {
	DeviceIdle                   Flag
	Interactive                  Flag
	PowerSave                    Flag
	IgnoringBatteryOptimizations Flag
	Charging                     Flag
}

// UnknownDeviceState has every flag unknown
var UnknownDeviceState = DeviceState{
	DeviceIdle:                   FlagUnknown,
	Interactive:                  FlagUnknown,
	PowerSave:                    FlagUnknown,
	IgnoringBatteryOptimizations: FlagUnknown,
	Charging:                     FlagUnknown,
}

// DeviceStateProvider reports the device power state at the time a position
// is stored
type DeviceStateProvider interface {
	DeviceState() DeviceState
}

type otherData struct {
	Accuracy                     float64 `json:"hacc"`
	Speed                        float64 `json:"spd"`
	DeviceIdle                   Flag    `json:"idim"`
	Interactive                  Flag    `json:"ii"`
	PowerSave                    Flag    `json:"ipsm"`
	IgnoringBatteryOptimizations Flag    `json:"iibo"`
	Charging                     Flag    `json:"ic"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// newLocation builds the queued row for s
func newLocation(s Sample, accessToken string, device DeviceState) (*database.Location, error) {
	meta, err := json.Marshal(otherData{
		Accuracy:                     round2(s.Accuracy),
		Speed:                        round2(s.Speed),
		DeviceIdle:                   device.DeviceIdle,
		Interactive:                  device.Interactive,
		PowerSave:                    device.PowerSave,
		IgnoringBatteryOptimizations: device.IgnoringBatteryOptimizations,
		Charging:                     device.Charging,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal location metadata: %w", err)
	}

	return &database.Location{
		AccessToken: accessToken,
		Latitude:    strconv.FormatFloat(s.Latitude, 'f', -1, 64),
		Longitude:   strconv.FormatFloat(s.Longitude, 'f', -1, 64),
		OtherData:   meta,
	}, nil
}
