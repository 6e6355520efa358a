//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harperreed/wavedeck/pkg/audio"
)

var errPortAudioDisabled = fmt.Errorf("%w: PortAudio support not enabled (build with -tags portaudio)", ErrDeviceUnavailable)

// PortAudio output implementation (stub)
type PortAudio struct {
	base
}

// NewPortAudio creates a new PortAudio output
func NewPortAudio(_ Options, logger zerolog.Logger) Backend {
	return &PortAudio{base: newBase(logger)}
}

func (p *PortAudio) Name() string { return "portaudio" }

func (p *PortAudio) Mode() Mode { return ModeDirect }

func (p *PortAudio) Open(audio.Format, Renderer) error { return errPortAudioDisabled }

func (p *PortAudio) Start() error { return errPortAudioDisabled }

func (p *PortAudio) Close() error { return nil }

func (p *PortAudio) Latency() time.Duration { return 0 }

func (p *PortAudio) Devices() ([]Device, error) { return nil, errPortAudioDisabled }
