package cli

import (
	"log/slog"

	"location-relay/internal/api"
	"location-relay/internal/config"
	"location-relay/internal/database"
	"location-relay/internal/geofence"
	"location-relay/internal/ingest"
	"location-relay/internal/monitor"
	"location-relay/internal/syncer"
)

// app is the wired set of engines over one database
type app struct {
	db        *database.DB
	geofences *geofence.Engine
	syncer    *syncer.Engine
	ingest    *ingest.Engine
	monitor   *monitor.Monitor
	platform  *monitor.ReportedPlatform
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	uploads := syncer.New(db, api.NewClient(nil, logger), syncer.DefaultConfig(), logger)
	ingestEngine := ingest.New(db, uploads, ingest.Config{
		MovementThreshold:  cfg.MovementThresholdMeters,
		InactivityInterval: cfg.InactiveSyncInterval,
	}, logger)
	geofences := geofence.NewEngine(logger)

	platform := monitor.NewReportedPlatform()
	ingestEngine.SetDeviceStateProvider(platform)

	mon := monitor.New(db, geofences, ingestEngine, uploads, logger)
	mon.SetPlatform(platform)

	return &app{
		db:        db,
		geofences: geofences,
		syncer:    uploads,
		ingest:    ingestEngine,
		monitor:   mon,
		platform:  platform,
	}, nil
}

// Close waits for in-flight uploads, then closes the database
func (a *app) Close() error {
	a.syncer.Wait()
	return a.db.Close()
}
