package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"location-relay/internal/metrics"
)

// Location is one queued position awaiting upload
type Location struct {
	ID          string
	AccessToken string
	Latitude    string
	Longitude   string
	OtherData   json.RawMessage // accuracy, speed and device power flags
	CreateDate  string
}

const locationColumns = `id, access_token, latitude, longitude, other_data, create_date`

// InsertLocation queues a position. An empty ID is filled from the id
// generator and CreateDate defaults to the ID. Rows with an existing id are
// replaced.
func (d *DB) InsertLocation(ctx context.Context, loc *Location) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpInsertLocation))
	defer timer.ObserveDuration()

	if loc.ID == "" {
		loc.ID = d.ids.Next()
	}
	if loc.CreateDate == "" {
		loc.CreateDate = loc.ID
	}

	query := `
		INSERT OR REPLACE INTO gps_coordinates (` + locationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.ExecContext(ctx, query,
		loc.ID, loc.AccessToken, loc.Latitude, loc.Longitude, nullableJSON(loc.OtherData), loc.CreateDate)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpInsertLocation).Inc()
		return fmt.Errorf("failed to insert location: %w", err)
	}

	metrics.QueueEnqueueTotal.WithLabelValues(metrics.QueueTypeLocations).Inc()

	return nil
}

// FirstNLocations returns up to n of the oldest queued positions, oldest first
func (d *DB) FirstNLocations(ctx context.Context, n int) ([]*Location, error) {
	return d.queryLocations(ctx, metrics.DBOpFirstNLocations, "ASC", n)
}

// LastNLocations returns up to n of the newest queued positions, newest first
func (d *DB) LastNLocations(ctx context.Context, n int) ([]*Location, error) {
	return d.queryLocations(ctx, metrics.DBOpLastNLocations, "DESC", n)
}

func (d *DB) queryLocations(ctx context.Context, op, order string, n int) ([]*Location, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(op))
	defer timer.ObserveDuration()

	if n <= 0 {
		return nil, nil
	}

	query := `
		SELECT ` + locationColumns + `
		FROM gps_coordinates
		ORDER BY CAST(create_date AS REAL) ` + order + `, id ` + order + `
		LIMIT ?
	`

	rows, err := d.db.QueryContext(ctx, query, n)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(op).Inc()
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var locations []*Location
	for rows.Next() {
		var loc Location
		var accessToken, otherData sql.NullString

		if err := rows.Scan(&loc.ID, &accessToken, &loc.Latitude, &loc.Longitude, &otherData, &loc.CreateDate); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(op).Inc()
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}

		loc.AccessToken = accessToken.String
		if otherData.Valid && otherData.String != "" {
			loc.OtherData = json.RawMessage(otherData.String)
		}

		locations = append(locations, &loc)
	}

	if err := rows.Err(); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(op).Inc()
		return nil, fmt.Errorf("failed to iterate locations: %w", err)
	}

	return locations, nil
}

// LocationCount returns the number of queued positions
func (d *DB) LocationCount(ctx context.Context) (int, error) {
	return d.count(ctx, metrics.DBOpLocationCount, "gps_coordinates")
}

// DeleteLocationsByID removes the given positions in one transaction and
// returns how many rows were deleted. Unknown ids are ignored.
func (d *DB) DeleteLocationsByID(ctx context.Context, ids []string) (int, error) {
	return d.deleteByID(ctx, metrics.DBOpDeleteLocations, "gps_coordinates", ids)
}

// LastLocationTime returns the create_date of the newest queued position, or
// "" when the queue is empty
func (d *DB) LastLocationTime(ctx context.Context) (string, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpLastLocationTime))
	defer timer.ObserveDuration()

	query := `SELECT create_date FROM gps_coordinates ORDER BY CAST(create_date AS REAL) DESC, id DESC LIMIT 1`

	var createDate string
	err := d.db.QueryRowContext(ctx, query).Scan(&createDate)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpLastLocationTime).Inc()
		return "", fmt.Errorf("failed to get last location time: %w", err)
	}

	return createDate, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
