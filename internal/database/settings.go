package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"location-relay/internal/metrics"
)

// Setting keys
const (
	SettingAPIURL                 = "api_url"
	SettingAccessToken            = "access_token"
	SettingScheduledJobID         = "scheduled_job_id"
	SettingTrackingFrequencyMS    = "tracking_frequency_ms"
	SettingUserAgent              = "user_agent"
	SettingGeofenceDefinitionJSON = "geofence_definition_json"
	SettingGeofenceStateJSON      = "geofence_state_json"
)

// GetSetting returns the value stored under key and whether it exists
func (d *DB) GetSetting(ctx context.Context, key string) (string, bool, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetSetting))
	defer timer.ObserveDuration()

	var value sql.NullString
	err := d.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetSetting).Inc()
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}

	return value.String, true, nil
}

// GetSettings returns every stored setting
func (d *DB) GetSettings(ctx context.Context) (map[string]string, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetSettings))
	defer timer.ObserveDuration()

	rows, err := d.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetSettings).Inc()
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetSettings).Inc()
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[key] = value.String
	}

	if err := rows.Err(); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetSettings).Inc()
		return nil, fmt.Errorf("failed to iterate settings: %w", err)
	}

	return settings, nil
}

// SetSetting stores a single setting
func (d *DB) SetSetting(ctx context.Context, key, value string) error {
	return d.SaveSettings(ctx, map[string]string{key: value})
}

// SaveSettings stores every entry of settings in one transaction
func (d *DB) SaveSettings(ctx context.Context, settings map[string]string) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpSaveSettings))
	defer timer.ObserveDuration()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSaveSettings).Inc()
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	query := `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, query, key, settings[key]); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSaveSettings).Inc()
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSaveSettings).Inc()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteSettings removes every stored setting
func (d *DB) DeleteSettings(ctx context.Context) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpDeleteSettings))
	defer timer.ObserveDuration()

	if _, err := d.db.ExecContext(ctx, `DELETE FROM settings`); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpDeleteSettings).Inc()
		return fmt.Errorf("failed to delete settings: %w", err)
	}

	return nil
}
