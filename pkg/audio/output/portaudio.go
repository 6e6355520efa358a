//go:build portaudio

// ABOUTME: PortAudio direct-mode output implementation
// ABOUTME: Opens a low-latency hardware stream with a float32 callback
package output

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/harperreed/wavedeck/pkg/audio"
)

// PortAudio output implementation
type PortAudio struct {
	base
	opts        Options
	stream      *portaudio.Stream
	initialized bool
	mu          sync.Mutex
}

// NewPortAudio creates a new PortAudio output
func NewPortAudio(opts Options, logger zerolog.Logger) Backend {
	return &PortAudio{
		base: newBase(logger.With().Str("backend", "portaudio").Logger()),
		opts: opts,
	}
}

func (p *PortAudio) Name() string { return "portaudio" }

func (p *PortAudio) Mode() Mode { return ModeDirect }

func (p *PortAudio) init() error {
	if p.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	p.initialized = true
	return nil
}

// Open initializes PortAudio and opens an output stream
func (p *PortAudio) Open(format audio.Format, render Renderer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.init(); err != nil {
		return err
	}
	if p.stream != nil {
		p.closeStream()
	}

	dev, err := p.findDevice(p.opts.Device)
	if err != nil {
		return err
	}

	params := portaudio.LowLatencyParameters(nil, dev)
	params.Output.Channels = format.Channels
	params.SampleRate = float64(format.SampleRate)
	params.FramesPerBuffer = int(format.FramesFor(p.opts.bufferDuration()))

	p.format = audio.Format{
		Codec:      "pcm",
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		BitDepth:   32,
	}
	p.render = render

	stream, err := portaudio.OpenStream(params, func(out []float32) {
		p.fill(out)
	})
	if err != nil {
		return fmt.Errorf("%w: failed to open stream: %w", ErrDeviceUnavailable, err)
	}
	p.stream = stream

	p.logger.Info().
		Str("device", dev.Name).
		Int("sample_rate", format.SampleRate).
		Int("channels", format.Channels).
		Msg("Audio output initialized")
	return nil
}

// Start begins the stream
func (p *PortAudio) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return ErrNotOpen
	}
	if err := p.stream.Start(); err != nil {
		p.emit(Event{Type: DeviceLost, Err: err})
		return fmt.Errorf("failed to start stream: %w", err)
	}
	return nil
}

func (p *PortAudio) closeStream() {
	if p.stream == nil {
		return
	}
	if err := p.stream.Stop(); err != nil {
		p.logger.Warn().Err(err).Msg("Stream stop error")
	}
	if err := p.stream.Close(); err != nil {
		p.logger.Warn().Err(err).Msg("Stream close error")
	}
	p.stream = nil
}

// Close releases resources
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeStream()
	if p.initialized {
		p.initialized = false
		return portaudio.Terminate()
	}
	return nil
}

// Latency reports the stream's output latency
func (p *PortAudio) Latency() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return p.opts.bufferDuration()
	}
	return p.stream.Info().OutputLatency
}

// Devices lists devices with output channels
func (p *PortAudio) Devices() ([]Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.init(); err != nil {
		return nil, err
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	def, _ := portaudio.DefaultOutputDevice()

	var devices []Device
	for _, info := range infos {
		if info.MaxOutputChannels == 0 {
			continue
		}
		devices = append(devices, Device{
			ID:      fmt.Sprintf("%s:%s", info.HostApi.Name, info.Name),
			Name:    info.Name,
			Default: def != nil && info.Name == def.Name,
		})
	}
	return devices, nil
}

func (p *PortAudio) findDevice(want string) (*portaudio.DeviceInfo, error) {
	if want == "" {
		dev, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
		}
		return dev, nil
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, info := range infos {
		id := fmt.Sprintf("%s:%s", info.HostApi.Name, info.Name)
		if info.MaxOutputChannels > 0 && (id == want || strings.EqualFold(info.Name, want)) {
			return info, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, want)
}
