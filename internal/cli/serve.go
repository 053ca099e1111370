package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"location-relay/internal/config"
	"location-relay/internal/handlers"
	"location-relay/internal/metrics"
	"location-relay/internal/worker"
)

// NewServeCommand creates the serve command
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP server and the maintenance worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, opts.Config)
		},
	}
}

func newServerLogger(cfg *config.Config) *slog.Logger {
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// runServer blocks until ctx is cancelled, then shuts down gracefully
func runServer(ctx context.Context, cfg *config.Config) error {
	logger := newServerLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("Starting location-relay server",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.DatabasePath,
		"log_level", cfg.LogLevel,
		"movement_threshold_meters", cfg.MovementThresholdMeters,
		"inactive_sync_interval", cfg.InactiveSyncInterval)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("Database opened successfully")

	if cfg.InternalAPIKey == "" {
		logger.Warn("INTERNAL_API_KEY is not set, local endpoints are unauthenticated")
	}

	srv := handlers.NewServer(a.ingest, a.monitor, a.db, a.platform, cfg.InternalAPIKey)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start maintenance worker in background. It is joined before the
	// database closes.
	stopWorker := startWorker(worker.NewWorker(a.monitor, a.db), logger)
	defer stopWorker()

	collectorCtx, collectorCancel := context.WithCancel(context.Background())
	defer collectorCancel()

	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		go func() {
			logger.Info("Starting queue depth collector")
			metrics.StartQueueDepthCollector(collectorCtx, a.db, 15*time.Second)
		}()

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())

		metricsAddr := fmt.Sprintf("%s:%d", cfg.MetricsHost, cfg.MetricsPort)
		metricsServer = &http.Server{
			Addr:    metricsAddr,
			Handler: metricsMux,
		}

		go func() {
			logger.Info("Metrics server listening", "addr", metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully...")
	case err := <-serveErr:
		return WrapExitError(ExitFailure, "HTTP server failed", err)
	}

	stopWorker()
	collectorCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown failed", "error", err)
		}
	}

	logger.Info("Server stopped")
	return nil
}

// startWorker runs w until the returned stop function is called. stop
// cancels the worker and waits for a running maintenance pass to return.
func startWorker(w *worker.Worker, logger *slog.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Maintenance worker failed", "error", err)
		}
	}()

	return sync.OnceFunc(func() {
		cancel()
		<-done
	})
}
