package handlers

import (
	"encoding/json"
	"net/http"

	"location-relay/internal/monitor"
)

type statusResponse struct {
	MonitoringStatus string `json:"monitoring_status"`
	PermissionStatus string `json:"permission_status"`
	UpdatesRequested bool   `json:"updates_requested"`
	QueuedLocations  int    `json:"queued_locations"`
	QueuedEvents     int    `json:"queued_events"`
}

// handleStatus handles GET /status. The agent polls updates_requested to
// know when to deliver positions.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	locations, err := s.queues.LocationCount(ctx)
	if err != nil {
		s.logger.Error("Failed to count locations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read queue")
		return
	}
	events, err := s.queues.EventCount(ctx)
	if err != nil {
		s.logger.Error("Failed to count events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read queue")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		MonitoringStatus: s.monitor.MonitoringStatus(),
		PermissionStatus: s.monitor.PermissionStatus(),
		UpdatesRequested: s.monitor.UpdatesRequested(),
		QueuedLocations:  locations,
		QueuedEvents:     events,
	})
}

// handlePlatform handles PUT /platform. A report that changes the
// monitoring or permission status queues a status change event.
func (s *Server) handlePlatform(w http.ResponseWriter, r *http.Request) {
	var report monitor.PlatformReport
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDeliveryBytes)).Decode(&report); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}

	s.platform.Report(report)
	if err := s.monitor.SaveMonitoringStatus(r.Context()); err != nil {
		s.logger.Error("Failed to save monitoring status", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"monitoring_status": s.monitor.MonitoringStatus(),
		"permission_status": s.monitor.PermissionStatus(),
	})
}
