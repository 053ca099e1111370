package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidOptions marks an initialize request that was rejected
var ErrInvalidOptions = errors.New("invalid settings")

// Options is the payload of an initialize request
type Options struct {
	APIURL              string       `json:"api_url" yaml:"api_url"`
	AccessToken         string       `json:"access_token" yaml:"access_token"`
	ScheduledJobID      *int         `json:"scheduled_job_id" yaml:"scheduled_job_id"`
	TrackingFrequencyMS *int         `json:"tracking_frequency_milliseconds" yaml:"tracking_frequency_milliseconds"`
	UserAgent           string       `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	Geofences           GeofenceJSON `json:"geofences,omitempty" yaml:"geofences,omitempty"`
}

// GeofenceJSON holds the geofence definition as a JSON document. It may be
// supplied either as a string containing JSON or as an inline object.
type GeofenceJSON string

func (g *GeofenceJSON) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*g = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*g = GeofenceJSON(s)
	default:
		*g = GeofenceJSON(data)
	}
	return nil
}

func (g *GeofenceJSON) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		if node.Tag == "!!null" {
			*g = ""
			return nil
		}
		*g = GeofenceJSON(node.Value)
		return nil
	}

	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("geofences: %w", err)
	}
	*g = GeofenceJSON(data)
	return nil
}

// Validate checks that every required field is present. The geofence
// definition is stored as given; an unreadable one loads no geofences.
func (o *Options) Validate() error {
	switch {
	case strings.TrimSpace(o.APIURL) == "":
		return fmt.Errorf("%w: requires a string `api_url`", ErrInvalidOptions)
	case strings.TrimSpace(o.AccessToken) == "":
		return fmt.Errorf("%w: requires a string `access_token`", ErrInvalidOptions)
	case o.ScheduledJobID == nil:
		return fmt.Errorf("%w: requires an integer `scheduled_job_id`", ErrInvalidOptions)
	case o.TrackingFrequencyMS == nil:
		return fmt.Errorf("%w: requires an integer `tracking_frequency_milliseconds`", ErrInvalidOptions)
	case *o.TrackingFrequencyMS <= 0:
		return fmt.Errorf("%w: `tracking_frequency_milliseconds` must be positive", ErrInvalidOptions)
	}

	return nil
}

// DecodeOptions reads options as YAML when format is "yaml" or "yml" and as
// JSON otherwise. Type mismatches are reported as invalid options.
func DecodeOptions(r io.Reader, format string) (*Options, error) {
	var opts Options

	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&opts); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
		}
	default:
		if err := json.NewDecoder(r).Decode(&opts); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
		}
	}

	return &opts, nil
}

// LoadOptionsFile decodes the options file at path, choosing the format
// from its extension
func LoadOptionsFile(path string) (*Options, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open options file: %w", err)
	}
	defer f.Close()

	return DecodeOptions(f, filepath.Ext(path))
}
