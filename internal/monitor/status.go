package monitor

import (
	"context"
	"fmt"
	"strings"

	"location-relay/internal/syncer"
)

// Service names of the stored status rows
const (
	ServiceLocationMonitoring = "location_monitoring"
	ServiceLocationPermission = "location_permission"
)

// Monitoring statuses
const (
	StatusNoGPSFeature  = "no gps feature on device"
	StatusGPSNotEnabled = "gps not enabled"
	StatusGPSEnabled    = "gps enabled"
)

// PermissionNotGranted is the permission status when no location access is
// granted
const PermissionNotGranted = "not granted"

// MonitoringStatus describes whether the device can produce positions
func (m *Monitor) MonitoringStatus() string {
	m.mu.Lock()
	platform := m.platform
	m.mu.Unlock()

	switch {
	case !platform.LocationSupported():
		return StatusNoGPSFeature
	case !platform.LocationEnabled():
		return StatusGPSNotEnabled
	default:
		return StatusGPSEnabled
	}
}

// PermissionStatus lists the granted location permissions, e.g.
// "granted, coarse, fine", or PermissionNotGranted
func (m *Monitor) PermissionStatus() string {
	m.mu.Lock()
	platform := m.platform
	m.mu.Unlock()

	p := platform.Permissions()

	var granted []string
	if p.Coarse {
		granted = append(granted, "coarse")
	}
	if p.Fine {
		granted = append(granted, "fine")
	}
	if p.Background {
		granted = append(granted, "background")
	}

	if len(granted) == 0 {
		return PermissionNotGranted
	}
	return "granted, " + strings.Join(granted, ", ")
}

// SaveMonitoringStatus compares the current statuses with the stored ones.
// On any change both rows are rewritten and a status change event is queued
// and uploaded right away.
func (m *Monitor) SaveMonitoringStatus(ctx context.Context) error {
	monitoring := m.MonitoringStatus()
	permission := m.PermissionStatus()

	storedMonitoring, err := m.storedStatus(ctx, ServiceLocationMonitoring)
	if err != nil {
		return err
	}
	storedPermission, err := m.storedStatus(ctx, ServiceLocationPermission)
	if err != nil {
		return err
	}

	m.logger.Debug("Checking monitoring status",
		"monitoring", monitoring,
		"stored_monitoring", storedMonitoring,
		"permission", permission,
		"stored_permission", storedPermission)

	if monitoring == storedMonitoring && permission == storedPermission {
		return nil
	}

	if err := m.store.UpsertServiceStatus(ctx, ServiceLocationMonitoring, monitoring); err != nil {
		return fmt.Errorf("failed to save monitoring status: %w", err)
	}
	if err := m.store.UpsertServiceStatus(ctx, ServiceLocationPermission, permission); err != nil {
		return fmt.Errorf("failed to save permission status: %w", err)
	}

	m.logger.Info("Monitoring status changed", "monitoring", monitoring, "permission", permission)

	m.enqueue(ctx, ActionStatusChange, map[string]string{
		"location_monitoring_status": monitoring,
		"location_permission_status": permission,
	})
	m.syncer.SyncEvents(ctx, syncer.SensitiveEventMark)

	return nil
}

func (m *Monitor) storedStatus(ctx context.Context, service string) (string, error) {
	row, err := m.store.GetServiceStatus(ctx, service)
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", nil
	}
	return row.Status, nil
}
