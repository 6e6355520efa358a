// ABOUTME: Synthetic decoders that generate audio instead of reading files
// ABOUTME: Used for test tones, silence, and scripted sources with failures or delays
package decode

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/harperreed/wavedeck/pkg/audio"
)

// ErrGeneratorFailed is returned by generators scripted to fail
var ErrGeneratorFailed = errors.New("generator failed")

// SampleFunc returns the sample for a frame and channel
type SampleFunc func(frame int64, channel int) float32

// Segment is a span of a scripted source with a fixed amplitude sine
type Segment struct {
	Duration  time.Duration
	Amplitude float64
	Frequency float64
}

// GeneratorOptions tweak a generator's failure behaviour
type GeneratorOptions struct {
	// FailAfter makes Read return ErrGeneratorFailed once this many frames
	// have been produced. Zero disables.
	FailAfter int64

	// ReadDelay sleeps before each Read to simulate slow decoding
	ReadDelay time.Duration
}

// Generator is a Decoder backed by a SampleFunc
type Generator struct {
	format audio.Format
	frames int64
	pos    int64
	fn     SampleFunc
	opts   GeneratorOptions
	closed bool
}

// NewGenerator creates a decoder producing frames from fn
func NewGenerator(format audio.Format, length time.Duration, fn SampleFunc, opts GeneratorOptions) *Generator {
	if format.Codec == "" {
		format.Codec = "generated"
	}
	if format.BitDepth == 0 {
		format.BitDepth = 24
	}
	return &Generator{
		format: format,
		frames: format.FramesFor(length),
		fn:     fn,
		opts:   opts,
	}
}

// NewTone creates a sine tone of the given peak amplitude (linear, 0..1)
func NewTone(format audio.Format, length time.Duration, freq, amplitude float64) *Generator {
	rate := float64(format.SampleRate)
	return NewGenerator(format, length, func(frame int64, _ int) float32 {
		return float32(amplitude * math.Sin(2*math.Pi*freq*float64(frame)/rate))
	}, GeneratorOptions{})
}

// NewSilence creates a silent source
func NewSilence(format audio.Format, length time.Duration) *Generator {
	return NewGenerator(format, length, func(int64, int) float32 { return 0 }, GeneratorOptions{})
}

// NewConstant creates a DC source; handy for checking gain and mixing math
func NewConstant(format audio.Format, length time.Duration, value float32) *Generator {
	return NewGenerator(format, length, func(int64, int) float32 { return value }, GeneratorOptions{})
}

// NewScripted creates a source made of consecutive sine segments
func NewScripted(format audio.Format, segments []Segment, opts GeneratorOptions) *Generator {
	var total time.Duration
	bounds := make([]int64, len(segments))
	for i, seg := range segments {
		total += seg.Duration
		bounds[i] = format.FramesFor(total)
	}
	rate := float64(format.SampleRate)
	return NewGenerator(format, total, func(frame int64, _ int) float32 {
		for i, end := range bounds {
			if frame < end {
				seg := segments[i]
				return float32(seg.Amplitude * math.Sin(2*math.Pi*seg.Frequency*float64(frame)/rate))
			}
		}
		return 0
	}, opts)
}

func (g *Generator) Format() audio.Format { return g.format }

func (g *Generator) Duration() time.Duration { return g.format.DurationOf(g.frames) }

func (g *Generator) Bitrate() int {
	return g.format.SampleRate * g.format.Channels * g.format.BitDepth / 1000
}

// Position returns the current read position in frames
func (g *Generator) Position() int64 { return g.pos }

func (g *Generator) Read(dst []float32) (int, error) {
	if g.closed {
		return 0, errors.New("generator closed")
	}
	if g.opts.ReadDelay > 0 {
		time.Sleep(g.opts.ReadDelay)
	}
	if g.opts.FailAfter > 0 && g.pos >= g.opts.FailAfter {
		return 0, ErrGeneratorFailed
	}

	ch := g.format.Channels
	want := int64(len(dst) / ch)
	if rem := g.frames - g.pos; want > rem {
		want = rem
	}
	if g.opts.FailAfter > 0 {
		if rem := g.opts.FailAfter - g.pos; want > rem {
			want = rem
		}
	}
	if want <= 0 {
		return 0, io.EOF
	}
	for i := int64(0); i < want; i++ {
		for c := 0; c < ch; c++ {
			dst[int(i)*ch+c] = g.fn(g.pos+i, c)
		}
	}
	g.pos += want
	return int(want), nil
}

func (g *Generator) Seek(pos time.Duration) error {
	frame := g.format.FramesFor(pos)
	if frame < 0 {
		return fmt.Errorf("negative seek position %v", pos)
	}
	if frame > g.frames {
		frame = g.frames
	}
	g.pos = frame
	return nil
}

func (g *Generator) Close() error {
	g.closed = true
	return nil
}

// Fixtures maps virtual paths to generator factories so a Registry can
// open synthetic sources by name.
type Fixtures struct {
	mu      sync.Mutex
	sources map[string]func() Decoder
	opened  map[string]int
}

// NewFixtures creates an empty fixture set
func NewFixtures() *Fixtures {
	return &Fixtures{
		sources: make(map[string]func() Decoder),
		opened:  make(map[string]int),
	}
}

// Add registers a factory for path
func (f *Fixtures) Add(path string, factory func() Decoder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources[path] = factory
}

// Opened returns how many times path has been opened
func (f *Fixtures) Opened(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened[path]
}

// Open implements Opener
func (f *Fixtures) Open(path string) (Decoder, error) {
	f.mu.Lock()
	factory, ok := f.sources[path]
	if ok {
		f.opened[path]++
	}
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no fixture for %s", path)
	}
	return factory(), nil
}

// Registry returns a registry that serves the fixtures for ext
func (f *Fixtures) Registry(ext string) *Registry {
	r := NewRegistry()
	r.Register(ext, f.Open)
	return r
}
