package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Host string
	Port int

	// Database configuration
	DatabasePath string

	// Internal API configuration (empty disables auth on the local endpoints)
	InternalAPIKey string

	// Logging configuration
	LogLevel string

	// Metrics configuration
	MetricsEnabled bool
	MetricsHost    string
	MetricsPort    int

	// Movement filter
	MovementThresholdMeters float64
	InactiveSyncInterval    time.Duration
}

// Load reads configuration from environment variables, falling back to a
// .env file in the working directory. Variables already set in the
// environment win over the file.
func Load() (*Config, error) {
	env := newSource(".env")

	cfg := &Config{
		Host:                    env.get("HOST", "localhost"),
		Port:                    env.getInt("PORT", 4101),
		DatabasePath:            env.get("DATABASE_PATH", "./data.db"),
		InternalAPIKey:          env.get("INTERNAL_API_KEY", ""),
		LogLevel:                env.get("LOG_LEVEL", "info"),
		MetricsEnabled:          env.getBool("METRICS_ENABLED", true),
		MetricsHost:             env.get("METRICS_HOST", "localhost"),
		MetricsPort:             env.getInt("METRICS_PORT", 9090),
		MovementThresholdMeters: 0,
		InactiveSyncInterval:    2 * time.Hour,
	}

	if v := env.get("MOVEMENT_THRESHOLD_METERS", ""); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("MOVEMENT_THRESHOLD_METERS must be a non-negative number")
		}
		cfg.MovementThresholdMeters = f
	}

	if v := env.get("INACTIVE_SYNC_INTERVAL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("INACTIVE_SYNC_INTERVAL must be a positive duration")
		}
		cfg.InactiveSyncInterval = d
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if c.MetricsEnabled && (c.MetricsPort < 1 || c.MetricsPort > 65535) {
		return fmt.Errorf("METRICS_PORT must be between 1 and 65535")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	return nil
}

// source resolves variables from the process environment, then from the
// parsed .env file. The file never modifies the process environment.
type source struct {
	file map[string]string
}

func newSource(envFile string) *source {
	file, err := godotenv.Read(envFile)
	if err != nil {
		// Missing or unreadable .env is fine; the environment is enough
		file = map[string]string{}
	}
	return &source{file: file}
}

func (s *source) lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return s.file[key]
}

// get gets a variable or returns a default value
func (s *source) get(key, defaultValue string) string {
	value := s.lookup(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getInt gets an integer variable or returns a default value
func (s *source) getInt(key string, defaultValue int) int {
	valueStr := s.lookup(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getBool gets a boolean variable or returns a default value
func (s *source) getBool(key string, defaultValue bool) bool {
	valueStr := s.lookup(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
