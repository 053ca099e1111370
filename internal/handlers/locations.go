package handlers

import (
	"encoding/json"
	"net/http"

	"location-relay/internal/database"
	"location-relay/internal/ingest"
)

// maxDeliveryBytes bounds a position delivery body
const maxDeliveryBytes = 1 << 20

type deliveryRequest struct {
	Locations []ingest.Sample `json:"locations"`
}

// handleLocations handles POST /locations. The fixes are handed to the
// ingest engine as one burst; uploads continue after the response.
func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDeliveryBytes)

	var req deliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	if len(req.Locations) == 0 {
		writeError(w, http.StatusBadRequest, "locations must not be empty")
		return
	}

	s.logger.Debug("Position delivery", "count", len(req.Locations))
	s.ingest.HandleBurst(r.Context(), req.Locations)

	writeJSON(w, http.StatusAccepted, map[string]any{"received": len(req.Locations)})
}

type positionResponse struct {
	ID         string          `json:"id"`
	Latitude   string          `json:"latitude"`
	Longitude  string          `json:"longitude"`
	OtherData  json.RawMessage `json:"other_data,omitempty"`
	CreateDate string          `json:"create_date"`
}

// handleLastPosition handles GET /last-position. It returns null when no
// position is queued.
func (s *Server) handleLastPosition(w http.ResponseWriter, r *http.Request) {
	loc, err := s.monitor.LastPosition(r.Context())
	if err != nil {
		s.logger.Error("Failed to get last position", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read last position")
		return
	}

	writeJSON(w, http.StatusOK, newPositionResponse(loc))
}

func newPositionResponse(loc *database.Location) *positionResponse {
	if loc == nil {
		return nil
	}
	return &positionResponse{
		ID:         loc.ID,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		OtherData:  loc.OtherData,
		CreateDate: loc.CreateDate,
	}
}
