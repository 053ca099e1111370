package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"location-relay/internal/database"
)

type locationView struct {
	ID         string `json:"id"`
	Latitude   string `json:"latitude"`
	Longitude  string `json:"longitude"`
	OtherData  any    `json:"other_data,omitempty"`
	CreateDate string `json:"create_date"`
}

func newLocationView(loc *database.Location) *locationView {
	if loc == nil {
		return nil
	}
	v := &locationView{
		ID:         loc.ID,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		CreateDate: loc.CreateDate,
	}
	if len(loc.OtherData) > 0 {
		v.OtherData = loc.OtherData
	}
	return v
}

// NewLastPositionCommand creates the last-position command
func NewLastPositionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "last-position",
		Short: "Print the newest queued position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.Config, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			loc, err := a.monitor.LastPosition(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read last position", err)
			}

			return output(cmd.OutOrStdout(), opts.Format, newLocationView(loc), func(w io.Writer) {
				if loc == nil {
					fmt.Fprintln(w, "No position queued")
					return
				}
				fmt.Fprintf(w, "%s, %s (id %s)\n", loc.Latitude, loc.Longitude, loc.ID)
			})
		},
	}
}
