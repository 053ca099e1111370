package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	geojson "github.com/paulmach/go.geojson"
	"github.com/spf13/cobra"

	"location-relay/internal/database"
)

type eventView struct {
	ID         string `json:"id"`
	Service    string `json:"service"`
	Action     string `json:"action"`
	Objects    any    `json:"objects,omitempty"`
	CreateDate string `json:"create_date"`
}

type queueView struct {
	QueuedLocations int             `json:"queued_locations"`
	QueuedEvents    int             `json:"queued_events"`
	Locations       []*locationView `json:"locations,omitempty"`
	Events          []eventView     `json:"events,omitempty"`
}

// NewQueueCommand creates the queue command
func NewQueueCommand(opts *RootOptions) *cobra.Command {
	var (
		show      int
		asGeoJSON bool
	)

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the upload queues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if show < 0 {
				return WrapExitError(ExitCommandError, "--show must not be negative", nil)
			}

			a, err := newApp(opts.Config, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			if asGeoJSON {
				fc, err := queuedFeatures(ctx, a.db)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to export queue", err)
				}
				data, err := fc.MarshalJSON()
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to encode queue", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			var view queueView
			if view.QueuedLocations, err = a.db.LocationCount(ctx); err != nil {
				return WrapExitError(ExitCommandError, "failed to count locations", err)
			}
			if view.QueuedEvents, err = a.db.EventCount(ctx); err != nil {
				return WrapExitError(ExitCommandError, "failed to count events", err)
			}

			if show > 0 {
				locations, err := a.db.LastNLocations(ctx, show)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read locations", err)
				}
				for _, loc := range locations {
					view.Locations = append(view.Locations, newLocationView(loc))
				}

				events, err := a.db.LastNEvents(ctx, show)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read events", err)
				}
				for _, ev := range events {
					view.Events = append(view.Events, newEventView(ev))
				}
			}

			return output(cmd.OutOrStdout(), opts.Format, view, func(w io.Writer) {
				fmt.Fprintf(w, "Queued locations: %d\n", view.QueuedLocations)
				for _, loc := range view.Locations {
					fmt.Fprintf(w, "  %s  %s, %s\n", loc.ID, loc.Latitude, loc.Longitude)
				}
				fmt.Fprintf(w, "Queued events: %d\n", view.QueuedEvents)
				for _, ev := range view.Events {
					fmt.Fprintf(w, "  %s  %s: %s\n", ev.ID, ev.Service, ev.Action)
				}
			})
		},
	}

	cmd.Flags().IntVar(&show, "show", 0, "also list the newest N rows of each queue")
	cmd.Flags().BoolVar(&asGeoJSON, "geojson", false, "print queued locations as a GeoJSON FeatureCollection")

	return cmd
}

func newEventView(ev *database.Event) eventView {
	v := eventView{
		ID:         ev.ID,
		Service:    ev.Service,
		Action:     ev.Action,
		CreateDate: ev.CreateDate,
	}
	if len(ev.Objects) > 0 {
		v.Objects = ev.Objects
	}
	return v
}

// queuedFeatures returns every queued location as a point feature, oldest
// first. Rows whose coordinates do not parse are skipped.
func queuedFeatures(ctx context.Context, db *database.DB) (*geojson.FeatureCollection, error) {
	count, err := db.LocationCount(ctx)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	if count == 0 {
		return fc, nil
	}

	locations, err := db.FirstNLocations(ctx, count)
	if err != nil {
		return nil, err
	}

	for _, loc := range locations {
		lat, err := strconv.ParseFloat(loc.Latitude, 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(loc.Longitude, 64)
		if err != nil {
			continue
		}

		f := geojson.NewPointFeature([]float64{lon, lat})
		f.ID = loc.ID
		f.SetProperty("create_date", loc.CreateDate)
		fc.AddFeature(f)
	}

	return fc, nil
}
