// Package cli implements the location-relay command line: the long-running
// server plus one-shot commands that act on the local queue database.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"location-relay/internal/config"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	Database string
	Format   string // "json" | "text"
	Verbose  bool

	// Config is loaded before any subcommand runs
	Config *config.Config
}

// ValidFormats defines the allowed output formats
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "location-relay",
		Short: "Offline-first location and geofence event relay",
		Long: `location-relay queues positions and geofence events in a local SQLite
database and uploads them in batches once the server acknowledges them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}

			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load configuration", err)
			}
			if opts.Database != "" {
				cfg.DatabasePath = opts.Database
			}
			opts.Config = cfg

			// One-shot commands only report errors unless asked to be verbose
			level := slog.LevelError
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: DATABASE_PATH)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewInitializeCommand(opts))
	cmd.AddCommand(NewClearSettingsCommand(opts))
	cmd.AddCommand(NewLastPositionCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewGeofencesCommand(opts))
	cmd.AddCommand(NewMaintenanceCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))

	return cmd
}
