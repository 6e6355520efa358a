// ABOUTME: Oto-based shared-mode audio output
// ABOUTME: Feeds a ring buffer from a render goroutine; oto pulls from it
package output

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"

	"github.com/harperreed/wavedeck/pkg/audio"
)

// oto allows one context per process, so it outlives individual streams
var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoFormat audio.Format
)

// Oto output implementation using oto library
type Oto struct {
	base
	opts   Options
	player *oto.Player
	ring   *RingBuffer
	buf    []float32
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// NewOto creates a new Oto output
func NewOto(opts Options, logger zerolog.Logger) *Oto {
	return &Oto{
		base: newBase(logger.With().Str("backend", "oto").Logger()),
		opts: opts,
	}
}

func (o *Oto) Name() string { return "oto" }

func (o *Oto) Mode() Mode { return ModeShared }

// Open initializes the output device
func (o *Oto) Open(format audio.Format, render Renderer) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		o.closeLocked()
	}

	devFormat, err := sharedContext(format, o.opts.bufferDuration(), o.logger)
	if err != nil {
		return err
	}

	o.format = devFormat
	o.render = render

	// Twice the device buffer so the feeder stays ahead of the pull
	capacity := devFormat.FramesFor(2*o.opts.bufferDuration()) * int64(devFormat.Channels)
	o.ring = NewRingBuffer(int(capacity))
	o.player = otoCtx.NewPlayer(&ringReader{ring: o.ring})

	o.logger.Info().
		Int("sample_rate", devFormat.SampleRate).
		Int("channels", devFormat.Channels).
		Msg("Audio output initialized")
	return nil
}

// sharedContext returns the process-wide oto context, creating it on first use.
// A later stream with a different layout keeps the existing context format.
func sharedContext(format audio.Format, buffer time.Duration, logger zerolog.Logger) (audio.Format, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if !otoFormat.SameLayout(format) {
			logger.Warn().
				Int("from_rate", otoFormat.SampleRate).
				Int("to_rate", format.SampleRate).
				Msg("Format change detected but oto doesn't support reinitialization, resampling")
		}
		return otoFormat, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   buffer,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return audio.Format{}, fmt.Errorf("%w: failed to create oto context: %w", ErrDeviceUnavailable, err)
	}
	<-ready

	otoCtx = ctx
	otoFormat = audio.Format{
		Codec:      "pcm",
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		BitDepth:   32,
	}
	return otoFormat, nil
}

// Start launches the feeder and begins playback
func (o *Oto) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player == nil {
		return ErrNotOpen
	}
	if o.cancel != nil {
		return nil
	}
	if err := otoCtx.Resume(); err != nil {
		return fmt.Errorf("failed to resume oto context: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.done = make(chan struct{})

	// Prime the ring so the first pull has data
	o.feed()
	go o.feedLoop(ctx, o.done)
	o.player.Play()
	return nil
}

// feedLoop keeps the ring buffer topped up from the renderer
func (o *Oto) feedLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	period := o.opts.bufferDuration() / 4
	if period < 5*time.Millisecond {
		period = 5 * time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.feed()
			if err := o.player.Err(); err != nil {
				o.emit(Event{Type: DeviceLost, Err: err})
				return
			}
		}
	}
}

func (o *Oto) feed() {
	ch := o.format.Channels
	free := o.ring.Free() / ch * ch
	if free == 0 {
		return
	}
	if cap(o.buf) < free {
		o.buf = make([]float32, free)
	}
	o.buf = o.buf[:free]
	o.fill(o.buf)
	o.ring.Write(o.buf)
}

// Close stops the player; the shared context is suspended, not destroyed
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeLocked()
	return nil
}

func (o *Oto) closeLocked() {
	if o.cancel != nil {
		o.cancel()
		<-o.done
		o.cancel = nil
	}
	if o.player != nil {
		o.player.Pause()
		if err := o.player.Close(); err != nil {
			o.logger.Warn().Err(err).Msg("Player close error")
		}
		o.player = nil
	}
	if otoCtx != nil {
		if err := otoCtx.Suspend(); err != nil {
			o.logger.Warn().Err(err).Msg("Context suspend error")
		}
	}
}

// Latency is the device buffer plus whatever the feeder has queued
func (o *Oto) Latency() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ring == nil || !o.format.Valid() {
		return o.opts.bufferDuration()
	}
	queued := o.format.DurationOf(int64(o.ring.Available() / o.format.Channels))
	return o.opts.bufferDuration() + queued
}

// Devices returns the system mixer; oto cannot select a device
func (o *Oto) Devices() ([]Device, error) {
	return []Device{{ID: "default", Name: "System default", Default: true}}, nil
}

// ringReader adapts the ring buffer to the io.Reader oto pulls from
type ringReader struct {
	ring *RingBuffer
	buf  []float32
}

func (r *ringReader) Read(p []byte) (int, error) {
	samples := len(p) / 4
	if samples == 0 {
		return 0, nil
	}
	if cap(r.buf) < samples {
		r.buf = make([]float32, samples)
	}
	r.buf = r.buf[:samples]
	r.ring.Read(r.buf)
	for i, s := range r.buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return samples * 4, nil
}
