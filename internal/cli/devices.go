// ABOUTME: devices and version commands
// ABOUTME: Lists playback devices for the configured output mode
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harperreed/wavedeck/internal/version"
	"github.com/harperreed/wavedeck/pkg/audio/output"
)

func newDevicesCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List playback devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, settings, err := o.load(cmd)
			if err != nil {
				return err
			}
			logger, closer, err := setupLogging(settings, false)
			if err != nil {
				return err
			}
			defer closer.Close()

			backend, err := output.New(settings.OutputMode(), settings.OutputOptions(), logger)
			if err != nil {
				return err
			}
			devices, err := backend.Devices()
			if err != nil {
				return fmt.Errorf("list %s devices: %w", backend.Name(), err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s output (%s):\n", backend.Name(), settings.OutputMode())
			for _, d := range devices {
				marker := " "
				if d.Default {
					marker = "*"
				}
				fmt.Fprintf(out, " %s %s (%s)\n", marker, d.Name, d.ID)
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", version.Product, version.Version)
		},
	}
}
