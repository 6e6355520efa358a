// ABOUTME: Root cobra command and shared flag handling
// ABOUTME: Loads the config file, applies flag overrides and sets up logging
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harperreed/wavedeck/internal/config"
	"github.com/harperreed/wavedeck/internal/logging"
	"github.com/harperreed/wavedeck/internal/version"
	"github.com/harperreed/wavedeck/pkg/audio/decode"
)

type options struct {
	configPath  string
	logFile     string
	logLevel    string
	metricsAddr string
	outputMode  string
	device      string

	// registry overrides the default decoders; set by tests
	registry *decode.Registry
}

// NewRootCommand builds the wavedeck command tree
func NewRootCommand() *cobra.Command {
	return newRootCommand(&options{})
}

func newRootCommand(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "wavedeck",
		Short:         "Wavedeck - gapless crossfading music player",
		Long:          "Wavedeck plays local music with gapless transitions, automatic crossfades and loudness normalization.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "Config file (default $HOME/.config/wavedeck/wavedeck.toml)")
	pf.StringVar(&o.logFile, "log-file", "", "Log file path")
	pf.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	pf.StringVar(&o.outputMode, "output", "", "Output mode (shared, exclusive, direct, file, null)")
	pf.StringVar(&o.device, "device", "", "Output device ID or name")

	root.AddCommand(
		newPlayCommand(o),
		newGainCommand(o),
		newDevicesCommand(o),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}

// load reads the config file and applies flags the user set
func (o *options) load(cmd *cobra.Command) (*config.Loader, *config.Settings, error) {
	loader := config.NewLoader(o.configPath, zerolog.Nop())
	flags := cmd.Flags()
	overrides := []struct {
		flag, key string
		value     string
	}{
		{"log-file", "log.file", o.logFile},
		{"log-level", "log.level", o.logLevel},
		{"metrics-addr", "metrics.addr", o.metricsAddr},
		{"output", "output.mode", o.outputMode},
		{"device", "output.device", o.device},
	}
	for _, ov := range overrides {
		if flags.Changed(ov.flag) {
			loader.Set(ov.key, ov.value)
		}
	}

	settings, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return loader, settings, nil
}

func (o *options) decoders() *decode.Registry {
	if o.registry != nil {
		return o.registry
	}
	return decode.NewDefaultRegistry()
}

// setupLogging writes to the log file only while the TUI owns the
// terminal, and to stderr and the file otherwise
func setupLogging(s *config.Settings, useTUI bool) (zerolog.Logger, io.Closer, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}

	if s.Log.File != "" {
		f, err := logging.OpenFile(s.Log.File)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		closer = f
		if useTUI {
			out = f
		} else {
			out = io.MultiWriter(os.Stderr, f)
		}
	} else if useTUI {
		out = io.Discard
	}

	logger, err := logging.Setup(s.Log.Level, out)
	if err != nil {
		closer.Close()
		return zerolog.Nop(), nil, err
	}
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
