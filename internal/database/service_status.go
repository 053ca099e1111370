package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"location-relay/internal/metrics"
)

// ServiceStatus is the last recorded status of a monitored service
type ServiceStatus struct {
	Service    string
	Status     string
	CreateDate string
}

// GetServiceStatus returns the stored status for service, or nil if none
func (d *DB) GetServiceStatus(ctx context.Context, service string) (*ServiceStatus, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetServiceStatus))
	defer timer.ObserveDuration()

	query := `SELECT service, status, create_date FROM service_status WHERE service = ?`

	var s ServiceStatus
	var status sql.NullString
	err := d.db.QueryRowContext(ctx, query, service).Scan(&s.Service, &status, &s.CreateDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetServiceStatus).Inc()
		return nil, fmt.Errorf("failed to get service status: %w", err)
	}
	s.Status = status.String

	return &s, nil
}

// UpsertServiceStatus replaces the stored status for service
func (d *DB) UpsertServiceStatus(ctx context.Context, service, status string) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertServiceStatus))
	defer timer.ObserveDuration()

	query := `
		INSERT INTO service_status (service, status, create_date) VALUES (?, ?, ?)
		ON CONFLICT(service) DO UPDATE SET
			status = excluded.status,
			create_date = excluded.create_date
	`

	_, err := d.db.ExecContext(ctx, query, service, status, d.ids.Next())
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertServiceStatus).Inc()
		return fmt.Errorf("failed to upsert service status: %w", err)
	}

	return nil
}

// DeleteServiceStatus forgets the stored status for service
func (d *DB) DeleteServiceStatus(ctx context.Context, service string) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpDeleteServiceStatus))
	defer timer.ObserveDuration()

	if _, err := d.db.ExecContext(ctx, `DELETE FROM service_status WHERE service = ?`, service); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpDeleteServiceStatus).Inc()
		return fmt.Errorf("failed to delete service status: %w", err)
	}

	return nil
}
