// Package handlers serves the local HTTP surface used by the on-device
// location agent: position delivery, last position and status.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"location-relay/internal/database"
	"location-relay/internal/ingest"
	"location-relay/internal/metrics"
	"location-relay/internal/middleware"
	"location-relay/internal/monitor"
)

// Ingester accepts position deliveries
type Ingester interface {
	HandleBurst(ctx context.Context, samples []ingest.Sample)
}

// Monitor answers position and status queries
type Monitor interface {
	LastPosition(ctx context.Context) (*database.Location, error)
	MonitoringStatus() string
	PermissionStatus() string
	UpdatesRequested() bool
	SaveMonitoringStatus(ctx context.Context) error
}

// Queues reports queue depths and database health
type Queues interface {
	LocationCount(ctx context.Context) (int, error)
	EventCount(ctx context.Context) (int, error)
	Health(ctx context.Context) error
}

// PlatformReporter stores the device status reported by the agent
type PlatformReporter interface {
	Report(r monitor.PlatformReport)
}

// Server holds the collaborators behind the HTTP routes
type Server struct {
	ingest   Ingester
	monitor  Monitor
	queues   Queues
	platform PlatformReporter
	apiKey   string
	logger   *slog.Logger
}

// NewServer creates a server. An empty apiKey leaves the routes open.
func NewServer(ingester Ingester, mon Monitor, queues Queues, platform PlatformReporter, apiKey string) *Server {
	return &Server{
		ingest:   ingester,
		monitor:  mon,
		queues:   queues,
		platform: platform,
		apiKey:   apiKey,
		logger:   slog.Default(),
	}
}

// Router configures all routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Method(http.MethodGet, "/health", middleware.WrapHandler(metrics.EndpointHealth, s.handleHealth))

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAPIKey(s.apiKey))

		r.With(middleware.Metrics(metrics.EndpointLocations)).Post("/locations", s.handleLocations)
		r.With(middleware.Metrics(metrics.EndpointLastPosition)).Get("/last-position", s.handleLastPosition)
		r.With(middleware.Metrics(metrics.EndpointStatus)).Get("/status", s.handleStatus)
		r.With(middleware.Metrics(metrics.EndpointPlatform)).Put("/platform", s.handlePlatform)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.queues.Health(r.Context()); err != nil {
		s.logger.Error("Health check failed", "error", err)
		http.Error(w, "Database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": strings.TrimSpace(fmt.Sprintf(format, args...)),
			"status":  status,
		},
	})
}
