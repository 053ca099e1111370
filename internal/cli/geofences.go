package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"location-relay/internal/database"
)

// NewGeofencesCommand creates the geofences command
func NewGeofencesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "geofences",
		Short: "Show the configured geofences and their saved states",
		Long: `Geofences loads the stored definition and states. Text output lists one
geofence per line; json output is a GeoJSON FeatureCollection.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(opts.Config, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			raw, _, err := a.db.GetSetting(ctx, database.SettingGeofenceDefinitionJSON)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read geofence definition", err)
			}
			if raw != "" && a.geofences.LoadDefinition(raw) > 0 {
				if err := a.geofences.LoadStates(ctx, a.db); err != nil {
					return WrapExitError(ExitCommandError, "failed to read geofence states", err)
				}
			}

			w := cmd.OutOrStdout()
			if opts.Format == "json" {
				data, err := a.geofences.FeatureCollection().MarshalJSON()
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to encode geofences", err)
				}
				fmt.Fprintln(w, string(data))
				return nil
			}

			geofences := a.geofences.Geofences()
			if len(geofences) == 0 {
				fmt.Fprintln(w, "No geofences configured")
				return nil
			}
			for _, g := range geofences {
				fmt.Fprintf(w, "%s\t%s\t%s\n", g.ID(), g.Kind(), g.State())
			}
			return nil
		},
	}
}
