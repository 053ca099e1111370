package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"location-relay/internal/monitor"
)

// NewMaintenanceCommand creates the maintenance command
func NewMaintenanceCommand(opts *RootOptions) *cobra.Command {
	var (
		supported   bool
		enabled     bool
		permissions []string
	)

	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Run one maintenance pass with the given platform status",
		Long: `Maintenance records monitoring and permission status changes, requests one
fresh position and uploads queued positions. It waits for uploads to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report := monitor.PlatformReport{Supported: supported, Enabled: enabled}
			for _, p := range permissions {
				switch strings.ToLower(strings.TrimSpace(p)) {
				case "coarse":
					report.Permissions.Coarse = true
				case "fine":
					report.Permissions.Fine = true
				case "background":
					report.Permissions.Background = true
				default:
					return WrapExitError(ExitCommandError, fmt.Sprintf("unknown permission %q", p), nil)
				}
			}

			a, err := newApp(opts.Config, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			a.platform.Report(report)
			a.monitor.PerformMaintenance(cmd.Context())
			a.syncer.Wait()

			return output(cmd.OutOrStdout(), opts.Format, map[string]any{
				"monitoring_status": a.monitor.MonitoringStatus(),
				"permission_status": a.monitor.PermissionStatus(),
				"updates_requested": a.monitor.UpdatesRequested(),
			}, func(w io.Writer) {
				fmt.Fprintf(w, "Monitoring: %s\n", a.monitor.MonitoringStatus())
				fmt.Fprintf(w, "Permission: %s\n", a.monitor.PermissionStatus())
			})
		},
	}

	cmd.Flags().BoolVar(&supported, "location-supported", true, "device has a location feature")
	cmd.Flags().BoolVar(&enabled, "location-enabled", false, "location is switched on")
	cmd.Flags().StringSliceVar(&permissions, "permissions", nil, "granted permissions (coarse,fine,background)")

	return cmd
}

// NewSyncCommand creates the sync command
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upload anything queued and wait for the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(opts.Config, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			locations := a.syncer.SyncLocations(ctx, true)
			events := a.syncer.SyncEvents(ctx, 1)
			a.syncer.Wait()

			remainingLocations, err := a.db.LocationCount(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to count locations", err)
			}
			remainingEvents, err := a.db.EventCount(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to count events", err)
			}

			return output(cmd.OutOrStdout(), opts.Format, map[string]any{
				"locations_started":   locations,
				"events_started":      events,
				"remaining_locations": remainingLocations,
				"remaining_events":    remainingEvents,
			}, func(w io.Writer) {
				fmt.Fprintf(w, "Remaining locations: %d\n", remainingLocations)
				fmt.Fprintf(w, "Remaining events: %d\n", remainingEvents)
			})
		},
	}
}
