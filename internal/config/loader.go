// ABOUTME: Reads wavedeck.toml through viper and watches it for edits
// ABOUTME: Defaults come from Default so a missing file still yields valid settings
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Loader owns a viper instance bound to one config file
type Loader struct {
	v      *viper.Viper
	logger zerolog.Logger

	mu       sync.Mutex
	onChange []func(*Settings)
	watching bool
}

// NewLoader searches $HOME/.config/wavedeck and the working directory for
// wavedeck.toml, or reads path when given
func NewLoader(path string, logger zerolog.Logger) *Loader {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("wavedeck")
		v.SetConfigType("toml")
		v.AddConfigPath("$HOME/.config/wavedeck")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("wavedeck")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())
	return &Loader{v: v, logger: logger.With().Str("component", "config").Logger()}
}

func setDefaults(v *viper.Viper, d Settings) {
	v.SetDefault("output.mode", d.Output.Mode)
	v.SetDefault("output.device", d.Output.Device)
	v.SetDefault("output.backend", d.Output.Backend)
	v.SetDefault("output.buffer_ms", d.Output.BufferMS)
	v.SetDefault("output.file", d.Output.File)

	v.SetDefault("playback.crossfade", d.Playback.Crossfade)
	v.SetDefault("playback.crossfade_max_seconds", d.Playback.CrossfadeMaxSeconds)
	v.SetDefault("playback.crossfade_fallback_seconds", d.Playback.CrossfadeFallbackSeconds)
	v.SetDefault("playback.repeat", d.Playback.Repeat)
	v.SetDefault("playback.random", d.Playback.Random)
	v.SetDefault("playback.follow_selection", d.Playback.FollowSelection)
	v.SetDefault("playback.pitch_range", d.Playback.PitchRange)

	v.SetDefault("normalization.mode", d.Normalization.Mode)
	v.SetDefault("normalization.preamp_db", d.Normalization.PreampDB)
	v.SetDefault("normalization.reference_lufs", d.Normalization.ReferenceLUFS)
	v.SetDefault("normalization.hard_limit", d.Normalization.HardLimit)

	v.SetDefault("crossfade_detect.window_seconds", d.CrossfadeDetect.WindowSeconds)
	v.SetDefault("crossfade_detect.envelope_ms", d.CrossfadeDetect.EnvelopeMS)
	v.SetDefault("crossfade_detect.threshold_db", d.CrossfadeDetect.ThresholdDB)
	v.SetDefault("crossfade_detect.floor_db", d.CrossfadeDetect.FloorDB)
	v.SetDefault("crossfade_detect.chunk_frames", d.CrossfadeDetect.ChunkFrames)

	v.SetDefault("eq.enabled", d.EQ.Enabled)

	v.SetDefault("library.path", d.Library.Path)
	v.SetDefault("library.remove_missing", d.Library.RemoveMissing)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)

	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// Load reads the file, if any, and returns validated settings
func (l *Loader) Load() (*Settings, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		l.logger.Debug().Msg("No config file, using defaults")
	}
	return l.decode()
}

func (l *Loader) decode() (*Settings, error) {
	var s Settings
	if err := l.v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// Set overrides a key, as command-line flags do
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// File returns the config file in use, empty when running on defaults
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Watch calls fn with the new settings whenever the file is rewritten.
// Edits that fail validation are logged and skipped.
func (l *Loader) Watch(fn func(*Settings)) {
	l.mu.Lock()
	l.onChange = append(l.onChange, fn)
	start := !l.watching && l.v.ConfigFileUsed() != ""
	if start {
		l.watching = true
	}
	l.mu.Unlock()

	if start {
		l.v.OnConfigChange(l.handleChange)
		l.v.WatchConfig()
	}
}

func (l *Loader) handleChange(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	if err := l.v.ReadInConfig(); err != nil {
		l.logger.Warn().Err(err).Str("file", ev.Name).Msg("Config reload failed")
		return
	}
	s, err := l.decode()
	if err != nil {
		l.logger.Warn().Err(err).Str("file", ev.Name).Msg("Ignoring invalid config edit")
		return
	}
	l.logger.Info().Str("file", ev.Name).Msg("Config reloaded")

	l.mu.Lock()
	fns := append([]func(*Settings){}, l.onChange...)
	l.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}
