package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value constants to prevent typos
const (
	// Queue types
	QueueTypeLocations = "locations"
	QueueTypeEvents    = "events"

	// Sync results
	ResultSuccess      = "success"
	ResultFailure      = "failure"
	ResultRejected     = "rejected"
	ResultUnauthorized = "unauthorized"
	ResultServerError  = "server_error"
	ResultMalformed    = "malformed"
	ResultSkipped      = "skipped"

	// Ingest outcomes
	OutcomeBurstSaved = "burst_saved"
	OutcomePersisted  = "persisted"
	OutcomeFiltered   = "filtered"
	OutcomeStoreError = "store_error"

	// Notification actions
	NotificationShown     = "shown"
	NotificationCancelled = "cancelled"

	// HTTP endpoints
	EndpointLocations    = "locations"
	EndpointLastPosition = "last_position"
	EndpointStatus       = "status"
	EndpointHealth       = "health"
	EndpointPlatform     = "platform"

	// Database operations
	DBOpInsertLocation      = "insert_location"
	DBOpFirstNLocations     = "first_n_locations"
	DBOpLastNLocations      = "last_n_locations"
	DBOpLocationCount       = "location_count"
	DBOpDeleteLocations     = "delete_locations"
	DBOpLastLocationTime    = "last_location_time"
	DBOpInsertEvent         = "insert_event"
	DBOpFirstNEvents        = "first_n_events"
	DBOpLastNEvents         = "last_n_events"
	DBOpEventCount          = "event_count"
	DBOpDeleteEvents        = "delete_events"
	DBOpGetSetting          = "get_setting"
	DBOpGetSettings         = "get_settings"
	DBOpSaveSettings        = "save_settings"
	DBOpDeleteSettings      = "delete_settings"
	DBOpGetServiceStatus    = "get_service_status"
	DBOpUpsertServiceStatus = "upsert_service_status"
	DBOpDeleteServiceStatus = "delete_service_status"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"endpoint", "status_code"},
	)
)

// Queue Metrics
var (
	QueueDepthTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth_total",
			Help: "Number of rows waiting for upload",
		},
		[]string{"queue_type"},
	)

	QueueEnqueueTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_enqueue_total",
			Help: "Total number of rows enqueued",
		},
		[]string{"queue_type"},
	)
)

// Sync Metrics
var (
	SyncBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_batches_total",
			Help: "Total number of upload batches by result",
		},
		[]string{"queue_type", "result"},
	)

	SyncRowsAckedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_rows_acked_total",
			Help: "Total number of rows acknowledged by the server and deleted locally",
		},
		[]string{"queue_type"},
	)

	SyncRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_request_duration_seconds",
			Help:    "Upload request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"queue_type"},
	)

	SyncInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_in_flight",
			Help: "Whether an upload batch is currently in flight (1) or not (0)",
		},
		[]string{"queue_type"},
	)
)

// Ingest Metrics
var (
	IngestSamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_samples_total",
			Help: "Total number of position samples handled by outcome",
		},
		[]string{"outcome"},
	)

	IngestDistanceMeters = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_distance_meters",
			Help:    "Distance between a new position and the last persisted position",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 25000},
		},
	)
)

// Geofence Metrics
var (
	GeofenceTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geofence_transitions_total",
			Help: "Total number of geofence edge transitions",
		},
		[]string{"state"},
	)

	GeofencesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geofences_loaded",
			Help: "Number of geofences currently configured",
		},
	)

	GeofenceNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geofence_notifications_total",
			Help: "Total number of geofence notifications shown or cancelled",
		},
		[]string{"action"},
	)
)

// Worker Metrics
var (
	WorkerActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_active",
			Help: "Whether the maintenance worker is currently active (1) or not (0)",
		},
	)

	MaintenanceRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "maintenance_runs_total",
			Help: "Total number of maintenance passes",
		},
	)
)

// Database Metrics
var (
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Database operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	DBOperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)
)
