package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"location-relay/internal/metrics"
)

// Event is one queued log event awaiting upload
type Event struct {
	ID          string
	AccessToken string
	Service     string
	Action      string
	Objects     json.RawMessage // JSON object
	CreateDate  string
}

const eventColumns = `id, access_token, service, action, objects, create_date`

// InsertEvent queues an event. An empty ID is filled from the id generator
// and CreateDate defaults to the ID. Rows with an existing id are replaced.
func (d *DB) InsertEvent(ctx context.Context, ev *Event) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpInsertEvent))
	defer timer.ObserveDuration()

	if ev.ID == "" {
		ev.ID = d.ids.Next()
	}
	if ev.CreateDate == "" {
		ev.CreateDate = ev.ID
	}

	query := `
		INSERT OR REPLACE INTO events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.ExecContext(ctx, query,
		ev.ID, ev.AccessToken, ev.Service, ev.Action, nullableJSON(ev.Objects), ev.CreateDate)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpInsertEvent).Inc()
		return fmt.Errorf("failed to insert event: %w", err)
	}

	metrics.QueueEnqueueTotal.WithLabelValues(metrics.QueueTypeEvents).Inc()

	return nil
}

// FirstNEvents returns up to n of the oldest queued events, oldest first
func (d *DB) FirstNEvents(ctx context.Context, n int) ([]*Event, error) {
	return d.queryEvents(ctx, metrics.DBOpFirstNEvents, "ASC", n)
}

// LastNEvents returns up to n of the newest queued events, newest first
func (d *DB) LastNEvents(ctx context.Context, n int) ([]*Event, error) {
	return d.queryEvents(ctx, metrics.DBOpLastNEvents, "DESC", n)
}

func (d *DB) queryEvents(ctx context.Context, op, order string, n int) ([]*Event, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(op))
	defer timer.ObserveDuration()

	if n <= 0 {
		return nil, nil
	}

	query := `
		SELECT ` + eventColumns + `
		FROM events
		ORDER BY CAST(create_date AS REAL) ` + order + `, id ` + order + `
		LIMIT ?
	`

	rows, err := d.db.QueryContext(ctx, query, n)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(op).Inc()
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var ev Event
		var objects sql.NullString

		if err := rows.Scan(&ev.ID, &ev.AccessToken, &ev.Service, &ev.Action, &objects, &ev.CreateDate); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(op).Inc()
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		if objects.Valid && objects.String != "" {
			ev.Objects = json.RawMessage(objects.String)
		}

		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(op).Inc()
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

// EventCount returns the number of queued events
func (d *DB) EventCount(ctx context.Context) (int, error) {
	return d.count(ctx, metrics.DBOpEventCount, "events")
}

// DeleteEventsByID removes the given events in one transaction and returns
// how many rows were deleted. Unknown ids are ignored.
func (d *DB) DeleteEventsByID(ctx context.Context, ids []string) (int, error) {
	return d.deleteByID(ctx, metrics.DBOpDeleteEvents, "events", ids)
}
