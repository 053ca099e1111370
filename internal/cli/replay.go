package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"location-relay/internal/ingest"
)

// NewReplayCommand creates the replay command
func NewReplayCommand(opts *RootOptions) *cobra.Command {
	var (
		burst      bool
		filterOnly bool
	)

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Feed recorded positions through the ingest pipeline",
		Long: `Replay reads a JSON array of positions and hands them to the ingest engine
one at a time, or as a single delivery with --burst. Geofences are evaluated
and uploads are triggered exactly as for live positions. With --filter-only
positions only pass the movement filter; geofences are not evaluated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if burst && filterOnly {
				return WrapExitError(ExitCommandError, "--burst and --filter-only cannot be combined", nil)
			}

			samples, err := readSamples(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read positions", err)
			}

			a, err := newApp(opts.Config, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			before, err := a.db.LocationCount(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to count locations", err)
			}

			switch {
			case burst:
				a.ingest.HandleBurst(ctx, samples)
			case filterOnly:
				for _, s := range samples {
					a.ingest.UpdatePosition(ctx, s)
				}
			default:
				for _, s := range samples {
					a.ingest.HandleSample(ctx, s)
				}
			}
			a.syncer.Wait()

			after, err := a.db.LocationCount(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to count locations", err)
			}

			return output(cmd.OutOrStdout(), opts.Format, map[string]any{
				"replayed":         len(samples),
				"queued_locations": after,
				"queued_before":    before,
			}, func(w io.Writer) {
				fmt.Fprintf(w, "Replayed %d positions, %d locations queued\n", len(samples), after)
			})
		},
	}

	cmd.Flags().BoolVar(&burst, "burst", false, "deliver all positions as one burst")
	cmd.Flags().BoolVar(&filterOnly, "filter-only", false, "store positions through the movement filter without geofence evaluation")

	return cmd
}

func readSamples(path string) ([]ingest.Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var samples []ingest.Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("invalid positions file: %w", err)
	}

	return samples, nil
}
