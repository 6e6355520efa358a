// ABOUTME: play command
// ABOUTME: Builds a playlist from paths and runs the engine with the TUI or a log stream
package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harperreed/wavedeck/internal/app"
	"github.com/harperreed/wavedeck/internal/config"
)

func newPlayCommand(o *options) *cobra.Command {
	var noTUI bool
	cmd := &cobra.Command{
		Use:   "play [paths...]",
		Short: "Play files and directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, settings, err := o.load(cmd)
			if err != nil {
				return err
			}
			useTUI := !noTUI
			logger, closer, err := setupLogging(settings, useTUI)
			if err != nil {
				return err
			}
			defer closer.Close()

			if !useTUI {
				logger.Info().Str("config", loader.File()).Msg("Starting Wavedeck")
			}

			player := app.New(app.Config{
				Settings: settings,
				Paths:    args,
				UseTUI:   useTUI,
				Logger:   logger,
				Registry: o.registry,
			})
			defer player.Stop()
			if err := player.Start(); err != nil {
				return err
			}
			loader.Watch(func(s *config.Settings) { player.ApplySettings(s) })

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			select {
			case <-player.Quit():
				logger.Info().Msg("Received quit signal from TUI")
			case <-sigChan:
				logger.Info().Msg("Shutdown signal received")
			case <-player.Done():
				logger.Info().Msg("Playlist finished")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI, stream logs instead")
	return cmd
}
