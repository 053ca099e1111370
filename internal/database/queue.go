package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"location-relay/internal/metrics"
)

// deleteChunkSize stays well under SQLite's bound parameter limit
const deleteChunkSize = 500

func (d *DB) count(ctx context.Context, op, table string) (int, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(op))
	defer timer.ObserveDuration()

	var count int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(op).Inc()
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}

	return count, nil
}

func (d *DB) deleteByID(ctx context.Context, op, table string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(op))
	defer timer.ObserveDuration()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(op).Inc()
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleted := 0
	for start := 0; start < len(ids); start += deleteChunkSize {
		end := min(start+deleteChunkSize, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		result, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id IN (`+placeholders+`)`, args...)
		if err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(op).Inc()
			return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(op).Inc()
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		deleted += int(n)
	}

	if err := tx.Commit(); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(op).Inc()
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return deleted, nil
}
