package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"location-relay/internal/config"
)

// NewInitializeCommand creates the initialize command
func NewInitializeCommand(opts *RootOptions) *cobra.Command {
	var inputFormat string

	cmd := &cobra.Command{
		Use:   "initialize <file|->",
		Short: "Store tracking settings from a JSON or YAML file",
		Long: `Initialize validates the settings and stores them, replacing any previous
settings. Pass "-" to read from stdin; stdin is read as JSON unless
--input-format yaml is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				settings *config.Options
				err      error
			)
			if args[0] == "-" {
				settings, err = config.DecodeOptions(cmd.InOrStdin(), inputFormat)
			} else {
				settings, err = config.LoadOptionsFile(args[0])
			}
			if err != nil {
				return settingsError(err)
			}

			a, err := newApp(opts.Config, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.monitor.Initialize(cmd.Context(), *settings); err != nil {
				return settingsError(err)
			}

			return output(cmd.OutOrStdout(), opts.Format, map[string]any{
				"initialized": true,
				"geofences":   a.geofences.Len(),
			}, func(w io.Writer) {
				fmt.Fprintf(w, "Settings saved (%d geofences)\n", a.geofences.Len())
			})
		},
	}

	cmd.Flags().StringVar(&inputFormat, "input-format", "json", "format of stdin input (json|yaml)")

	return cmd
}

// NewClearSettingsCommand creates the clear-settings command
func NewClearSettingsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-settings",
		Short: "Delete stored settings; queued rows are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.Config, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.monitor.ClearSettings(cmd.Context()); err != nil {
				return WrapExitError(ExitCommandError, "failed to clear settings", err)
			}

			return output(cmd.OutOrStdout(), opts.Format, map[string]any{"cleared": true}, func(w io.Writer) {
				fmt.Fprintln(w, "Settings cleared")
			})
		},
	}
}

// settingsError maps rejected settings to ExitFailure and everything else
// to ExitCommandError
func settingsError(err error) error {
	if errors.Is(err, config.ErrInvalidOptions) {
		return WrapExitError(ExitFailure, "settings rejected", err)
	}
	return WrapExitError(ExitCommandError, "failed to read settings", err)
}
