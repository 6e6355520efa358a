// ABOUTME: Settings file schema, defaults and validation
// ABOUTME: Converts the file sections into engine and backend options
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/wavedeck/internal/crossfade"
	"github.com/harperreed/wavedeck/internal/dsp"
	"github.com/harperreed/wavedeck/internal/engine"
	"github.com/harperreed/wavedeck/internal/gain"
	"github.com/harperreed/wavedeck/internal/playlist"
	"github.com/harperreed/wavedeck/pkg/audio/output"
)

// Settings is the contents of wavedeck.toml
type Settings struct {
	Output          OutputConfig        `mapstructure:"output"`
	Playback        PlaybackConfig      `mapstructure:"playback"`
	Normalization   NormalizationConfig `mapstructure:"normalization"`
	CrossfadeDetect DetectConfig        `mapstructure:"crossfade_detect"`
	EQ              EQConfig            `mapstructure:"eq"`
	Library         LibraryConfig       `mapstructure:"library"`
	Log             LogConfig           `mapstructure:"log"`
	Metrics         MetricsConfig       `mapstructure:"metrics"`
}

type OutputConfig struct {
	Mode     string `mapstructure:"mode"`
	Device   string `mapstructure:"device"`
	Backend  string `mapstructure:"backend"`
	BufferMS int    `mapstructure:"buffer_ms"`
	File     string `mapstructure:"file"`
}

type PlaybackConfig struct {
	Crossfade                bool    `mapstructure:"crossfade"`
	CrossfadeMaxSeconds      float64 `mapstructure:"crossfade_max_seconds"`
	CrossfadeFallbackSeconds float64 `mapstructure:"crossfade_fallback_seconds"`
	Repeat                   string  `mapstructure:"repeat"`
	Random                   bool    `mapstructure:"random"`
	FollowSelection          bool    `mapstructure:"follow_selection"`
	PitchRange               float64 `mapstructure:"pitch_range"`
}

type NormalizationConfig struct {
	Mode          string  `mapstructure:"mode"`
	PreampDB      float64 `mapstructure:"preamp_db"`
	ReferenceLUFS float64 `mapstructure:"reference_lufs"`
	HardLimit     bool    `mapstructure:"hard_limit"`
}

// DetectConfig tunes the quiet-tail search used to place crossfades
type DetectConfig struct {
	WindowSeconds float64 `mapstructure:"window_seconds"`
	EnvelopeMS    int     `mapstructure:"envelope_ms"`
	ThresholdDB   float64 `mapstructure:"threshold_db"`
	FloorDB       float64 `mapstructure:"floor_db"`
	ChunkFrames   int     `mapstructure:"chunk_frames"`
}

type EQConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	Bands   []BandConfig `mapstructure:"bands"`
}

type BandConfig struct {
	Freq   float64 `mapstructure:"freq"`
	GainDB float64 `mapstructure:"gain_db"`
	Q      float64 `mapstructure:"q"`
}

type LibraryConfig struct {
	Path          string `mapstructure:"path"`
	RemoveMissing bool   `mapstructure:"remove_missing"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Default returns the settings used for keys the file leaves out
func Default() Settings {
	detect := crossfade.DefaultParams()
	return Settings{
		Output: OutputConfig{
			Mode:     string(output.ModeShared),
			BufferMS: 100,
		},
		Playback: PlaybackConfig{
			Crossfade:           true,
			CrossfadeMaxSeconds: 10,
			Repeat:              string(playlist.RepeatOff),
			PitchRange:          0.1,
		},
		Normalization: NormalizationConfig{
			Mode:          string(engine.NormalizeTrack),
			ReferenceLUFS: gain.DefaultReference,
		},
		CrossfadeDetect: DetectConfig{
			WindowSeconds: detect.Window.Seconds(),
			EnvelopeMS:    int(detect.Envelope / time.Millisecond),
			ThresholdDB:   detect.ThresholdDB,
			FloorDB:       detect.FloorDB,
			ChunkFrames:   detect.ChunkFrames,
		},
		Library: LibraryConfig{Path: "wavedeck.db"},
		Log:     LogConfig{Level: "info", File: "wavedeck.log"},
	}
}

// Validate rejects settings the engine cannot run with
func (s *Settings) Validate() error {
	var errs []error
	mode, err := output.ParseMode(s.Output.Mode)
	if err != nil {
		errs = append(errs, err)
	}
	if s.Output.BufferMS <= 0 {
		errs = append(errs, fmt.Errorf("output.buffer_ms must be positive, got %d", s.Output.BufferMS))
	}
	if mode == output.ModeFile && s.Output.File == "" {
		errs = append(errs, errors.New("output.file is required for file mode"))
	}
	switch playlist.Repeat(s.Playback.Repeat) {
	case playlist.RepeatOff, playlist.RepeatTrack, playlist.RepeatPlaylist:
	default:
		errs = append(errs, fmt.Errorf("unknown playback.repeat %q", s.Playback.Repeat))
	}
	if s.Playback.PitchRange < 0 || s.Playback.PitchRange > 0.5 {
		errs = append(errs, fmt.Errorf("playback.pitch_range must be within [0, 0.5], got %v", s.Playback.PitchRange))
	}
	if s.Playback.CrossfadeMaxSeconds < 0 || s.Playback.CrossfadeFallbackSeconds < 0 {
		errs = append(errs, errors.New("crossfade durations cannot be negative"))
	}
	switch engine.Normalization(s.Normalization.Mode) {
	case engine.NormalizeOff, engine.NormalizeTrack, engine.NormalizeAlbum:
	default:
		errs = append(errs, fmt.Errorf("unknown normalization.mode %q", s.Normalization.Mode))
	}
	for i, b := range s.EQ.Bands {
		if b.Freq <= 0 {
			errs = append(errs, fmt.Errorf("eq.bands[%d]: frequency must be positive", i))
		}
	}
	return errors.Join(errs...)
}

// Engine converts the playback sections into engine settings
func (s *Settings) Engine() engine.Settings {
	bands := make([]dsp.Band, 0, len(s.EQ.Bands))
	for _, b := range s.EQ.Bands {
		bands = append(bands, dsp.Band{Freq: b.Freq, GainDB: b.GainDB, Q: b.Q})
	}
	return engine.Settings{
		Crossfade:         s.Playback.Crossfade,
		CrossfadeMax:      seconds(s.Playback.CrossfadeMaxSeconds),
		CrossfadeFallback: seconds(s.Playback.CrossfadeFallbackSeconds),
		Detect: crossfade.Params{
			Window:      seconds(s.CrossfadeDetect.WindowSeconds),
			Envelope:    time.Duration(s.CrossfadeDetect.EnvelopeMS) * time.Millisecond,
			ThresholdDB: s.CrossfadeDetect.ThresholdDB,
			FloorDB:     s.CrossfadeDetect.FloorDB,
			ChunkFrames: s.CrossfadeDetect.ChunkFrames,
		},
		Policy: playlist.Policy{
			Repeat:          playlist.Repeat(s.Playback.Repeat),
			Random:          s.Playback.Random,
			FollowSelection: s.Playback.FollowSelection,
		},
		PitchRange:    s.Playback.PitchRange,
		Normalization: engine.Normalization(s.Normalization.Mode),
		PreampDB:      s.Normalization.PreampDB,
		HardLimit:     s.Normalization.HardLimit,
		EQ:            s.EQ.Enabled,
		EQBands:       bands,
		RemoveMissing: s.Library.RemoveMissing,
	}
}

// OutputMode returns the parsed output mode
func (s *Settings) OutputMode() output.Mode {
	mode, err := output.ParseMode(s.Output.Mode)
	if err != nil {
		return output.ModeShared
	}
	return mode
}

// OutputOptions converts the output section into backend options
func (s *Settings) OutputOptions() output.Options {
	return output.Options{
		Device:   s.Output.Device,
		BufferMS: s.Output.BufferMS,
		FilePath: s.Output.File,
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
