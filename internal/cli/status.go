package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"location-relay/internal/monitor"
)

type serviceStatusView struct {
	Service    string `json:"service"`
	Status     string `json:"status"`
	CreateDate string `json:"create_date"`
}

type statusView struct {
	Services        []serviceStatusView `json:"services"`
	QueuedLocations int                 `json:"queued_locations"`
	QueuedEvents    int                 `json:"queued_events"`
}

// NewStatusCommand creates the status command
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	var forget bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recorded service statuses and queue depths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(opts.Config, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			services := []string{monitor.ServiceLocationMonitoring, monitor.ServiceLocationPermission}

			if forget {
				for _, service := range services {
					if err := a.db.DeleteServiceStatus(ctx, service); err != nil {
						return WrapExitError(ExitCommandError, "failed to forget service status", err)
					}
				}
			}

			view := statusView{Services: []serviceStatusView{}}
			for _, service := range services {
				s, err := a.db.GetServiceStatus(ctx, service)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read service status", err)
				}
				if s == nil {
					continue
				}
				view.Services = append(view.Services, serviceStatusView{
					Service:    s.Service,
					Status:     s.Status,
					CreateDate: s.CreateDate,
				})
			}

			if view.QueuedLocations, err = a.db.LocationCount(ctx); err != nil {
				return WrapExitError(ExitCommandError, "failed to count locations", err)
			}
			if view.QueuedEvents, err = a.db.EventCount(ctx); err != nil {
				return WrapExitError(ExitCommandError, "failed to count events", err)
			}

			return output(cmd.OutOrStdout(), opts.Format, view, func(w io.Writer) {
				if len(view.Services) == 0 {
					fmt.Fprintln(w, "No service status recorded")
				}
				for _, s := range view.Services {
					fmt.Fprintf(w, "%s: %s (since %s)\n", s.Service, s.Status, s.CreateDate)
				}
				fmt.Fprintf(w, "Queued locations: %d\n", view.QueuedLocations)
				fmt.Fprintf(w, "Queued events: %d\n", view.QueuedEvents)
			})
		},
	}

	cmd.Flags().BoolVar(&forget, "forget", false, "forget recorded statuses so the next maintenance run reports them again")

	return cmd
}
