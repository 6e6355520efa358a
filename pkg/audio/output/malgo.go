// ABOUTME: Malgo-based exclusive-mode audio output with 24-bit support
// ABOUTME: The miniaudio device callback invokes the renderer directly
package output

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/harperreed/wavedeck/pkg/audio"
)

// Malgo output implementation using malgo/miniaudio library
type Malgo struct {
	base
	opts     Options
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	bitDepth int
	scratch  []float32
	closing  atomic.Bool
	mu       sync.Mutex
}

// NewMalgo creates a new Malgo output
func NewMalgo(opts Options, logger zerolog.Logger) *Malgo {
	return &Malgo{
		base: newBase(logger.With().Str("backend", "malgo").Logger()),
		opts: opts,
	}
}

func (m *Malgo) Name() string { return "malgo" }

func (m *Malgo) Mode() Mode { return ModeExclusive }

func (m *Malgo) ensureContext() error {
	if m.malgoCtx != nil {
		return nil
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	m.malgoCtx = ctx
	return nil
}

// Open initializes the output device with specified format
func (m *Malgo) Open(format audio.Format, render Renderer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		m.logger.Info().Msg("Reinitializing device")
		m.closeDevice()
	}
	if err := m.ensureContext(); err != nil {
		return err
	}

	bitDepth := deviceBitDepth(format.BitDepth)
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgoFormat(bitDepth)
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.Playback.ShareMode = malgo.Exclusive
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = uint32(m.opts.bufferDuration() / time.Millisecond)
	deviceConfig.Alsa.NoMMap = 1

	if m.opts.Device != "" {
		info, err := m.findDevice(m.opts.Device)
		if err != nil {
			return err
		}
		deviceConfig.Playback.DeviceID = info.ID.Pointer()
	}

	m.format = audio.Format{
		Codec:      "pcm",
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		BitDepth:   bitDepth,
	}
	m.bitDepth = bitDepth
	m.render = render
	m.closing.Store(false)

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			m.dataCallback(pOutput, frameCount)
		},
		Stop: func() {
			if !m.closing.Load() {
				m.emit(Event{Type: DeviceLost, Err: ErrDeviceUnavailable})
			}
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		return fmt.Errorf("%w: failed to initialize playback device: %w", ErrDeviceUnavailable, err)
	}
	m.device = device

	m.logger.Info().
		Int("sample_rate", format.SampleRate).
		Int("channels", format.Channels).
		Int("bit_depth", bitDepth).
		Str("format", formatName(deviceConfig.Playback.Format)).
		Msg("Audio output initialized")
	return nil
}

// Start starts the device clock
func (m *Malgo) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return ErrNotOpen
	}
	if m.device.IsStarted() {
		return nil
	}
	if err := m.device.Start(); err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	return nil
}

// dataCallback is called by malgo to fill the audio output buffer
func (m *Malgo) dataCallback(pOutput []byte, frameCount uint32) {
	total := int(frameCount) * m.format.Channels
	if cap(m.scratch) < total {
		m.scratch = make([]float32, total)
	}
	samples := m.scratch[:total]
	m.fill(samples)

	switch m.bitDepth {
	case 16:
		write16Bit(pOutput, samples)
	case 24:
		write24Bit(pOutput, samples)
	default:
		write32Bit(pOutput, samples)
	}
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeDevice()

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			m.logger.Warn().Err(err).Msg("Malgo context uninit error")
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

// closeDevice stops and uninitializes the device (must hold m.mu)
func (m *Malgo) closeDevice() {
	if m.device == nil {
		return
	}
	m.closing.Store(true)
	if err := m.device.Stop(); err != nil {
		m.logger.Warn().Err(err).Msg("Device stop error")
	}
	m.device.Uninit()
	m.device = nil
}

// Latency is one device period
func (m *Malgo) Latency() time.Duration {
	return m.opts.bufferDuration()
}

// Devices lists playback devices
func (m *Malgo) Devices() ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureContext(); err != nil {
		return nil, err
	}
	infos, err := m.malgoCtx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{
			ID:      info.ID.String(),
			Name:    info.Name(),
			Default: info.IsDefault != 0,
		})
	}
	return devices, nil
}

func (m *Malgo) findDevice(want string) (malgo.DeviceInfo, error) {
	infos, err := m.malgoCtx.Devices(malgo.Playback)
	if err != nil {
		return malgo.DeviceInfo{}, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, info := range infos {
		if info.ID.String() == want || strings.EqualFold(info.Name(), want) {
			return info, nil
		}
	}
	return malgo.DeviceInfo{}, fmt.Errorf("%w: %s", ErrDeviceUnavailable, want)
}

// deviceBitDepth picks the integer container for a source bit depth
func deviceBitDepth(source int) int {
	switch {
	case source <= 16 && source > 0:
		return 16
	case source == 24:
		return 24
	default:
		return 32
	}
}

func malgoFormat(bitDepth int) malgo.FormatType {
	switch bitDepth {
	case 16:
		return malgo.FormatS16
	case 24:
		return malgo.FormatS24
	default:
		return malgo.FormatS32
	}
}

// formatName returns human-readable format name
func formatName(format malgo.FormatType) string {
	switch format {
	case malgo.FormatS16:
		return "S16"
	case malgo.FormatS24:
		return "S24"
	case malgo.FormatS32:
		return "S32"
	default:
		return fmt.Sprintf("Unknown(%d)", format)
	}
}
