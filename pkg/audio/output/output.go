// ABOUTME: Audio output backend interface definition
// ABOUTME: Common contract for shared, exclusive, direct, file and null sinks
package output

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/harperreed/wavedeck/pkg/audio"
)

var (
	// ErrNotOpen is returned when a backend is used before Open
	ErrNotOpen = errors.New("output not open")
	// ErrDeviceUnavailable is returned when the requested device cannot be used
	ErrDeviceUnavailable = errors.New("audio device unavailable")
)

// Mode selects the output path
type Mode string

const (
	// ModeShared plays through the system mixer; the engine fills a ring buffer
	ModeShared Mode = "shared"
	// ModeExclusive opens the device exclusively; the hardware clock calls the renderer
	ModeExclusive Mode = "exclusive"
	// ModeDirect talks to the hardware driver through PortAudio
	ModeDirect Mode = "direct"
	// ModeFile writes a WAV file on a software clock
	ModeFile Mode = "file"
	// ModeNull discards output; driven manually or by a ticker
	ModeNull Mode = "null"
)

// ParseMode validates a mode string
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeShared, ModeExclusive, ModeDirect, ModeFile, ModeNull:
		return m, nil
	case "":
		return ModeShared, nil
	default:
		return "", fmt.Errorf("unknown output mode %q", s)
	}
}

// Renderer fills dst with interleaved float32 frames and returns the number
// of frames written. Backends zero the remainder. Called on the audio thread.
type Renderer func(dst []float32) int

// Device describes a playback device
type Device struct {
	ID      string
	Name    string
	Default bool
}

// EventType identifies an asynchronous device notification
type EventType int

const (
	// DeviceLost means the device stopped or disappeared
	DeviceLost EventType = iota
	// FormatChanged means the device can no longer play the opened format
	FormatChanged
)

func (t EventType) String() string {
	switch t {
	case DeviceLost:
		return "device-lost"
	case FormatChanged:
		return "format-changed"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is a device notification
type Event struct {
	Type EventType
	Err  error
}

// Backend is a platform audio sink
type Backend interface {
	// Name returns a short backend name for logs
	Name() string

	// Mode returns the output path this backend implements
	Mode() Mode

	// Open creates the device stream. The device format may differ from the
	// requested one; callers must render at Format().
	Open(format audio.Format, render Renderer) error

	// Start begins invoking the renderer
	Start() error

	// Close tears down the stream. Safe to call when not open.
	Close() error

	// Format returns the format the device was opened with
	Format() audio.Format

	// SetVolume sets linear output volume in [0,1]
	SetVolume(v float64)

	// Volume returns linear output volume
	Volume() float64

	// Latency returns the time between rendering a frame and hearing it
	Latency() time.Duration

	// Devices lists playback devices for this backend
	Devices() ([]Device, error)

	// Events delivers device-lost and format-changed notifications
	Events() <-chan Event
}

// Options configures backend creation
type Options struct {
	// Device selects a device by ID or name; empty uses the default
	Device string

	// BufferMS is the target buffer size in milliseconds
	BufferMS int

	// FilePath is the destination for ModeFile
	FilePath string

	// RealTime paces ModeFile at playback speed instead of as fast as possible
	RealTime bool
}

func (o Options) bufferDuration() time.Duration {
	if o.BufferMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(o.BufferMS) * time.Millisecond
}

// New creates a backend for the given mode
func New(mode Mode, opts Options, logger zerolog.Logger) (Backend, error) {
	switch mode {
	case ModeShared, "":
		return NewOto(opts, logger), nil
	case ModeExclusive:
		return NewMalgo(opts, logger), nil
	case ModeDirect:
		return NewPortAudio(opts, logger), nil
	case ModeFile:
		if opts.FilePath == "" {
			return nil, errors.New("file output requires a path")
		}
		return NewFile(opts, logger), nil
	case ModeNull:
		return NewNull(opts), nil
	default:
		return nil, fmt.Errorf("unknown output mode %q", mode)
	}
}

// base holds the state every backend shares
type base struct {
	logger zerolog.Logger
	format audio.Format
	render Renderer
	volume atomic.Uint64
	events chan Event
}

func newBase(logger zerolog.Logger) base {
	b := base{
		logger: logger,
		events: make(chan Event, 4),
	}
	b.volume.Store(math.Float64bits(1.0))
	return b
}

func (b *base) Format() audio.Format { return b.format }

func (b *base) Events() <-chan Event { return b.events }

func (b *base) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	b.volume.Store(math.Float64bits(v))
}

func (b *base) Volume() float64 {
	return math.Float64frombits(b.volume.Load())
}

// emit sends an event without blocking the audio thread
func (b *base) emit(e Event) {
	select {
	case b.events <- e:
	default:
	}
}

// fill calls the renderer, zero-fills the tail and applies volume
func (b *base) fill(dst []float32) int {
	ch := b.format.Channels
	frames := 0
	if b.render != nil {
		frames = b.render(dst)
	}
	if frames < 0 {
		frames = 0
	}
	n := frames * ch
	if n > len(dst) {
		n = len(dst)
	}
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	applyVolume(dst[:n], b.Volume())
	return frames
}

// applyVolume scales samples in place
func applyVolume(samples []float32, volume float64) {
	if volume == 1.0 {
		return
	}
	v := float32(volume)
	for i := range samples {
		samples[i] *= v
	}
}
