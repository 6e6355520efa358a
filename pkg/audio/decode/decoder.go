// ABOUTME: Decoder interface definition and registry
// ABOUTME: Maps file extensions to decoders and opens items with fallback paths
package decode

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harperreed/wavedeck/pkg/audio"
)

var (
	// ErrUnsupportedFormat is returned when no decoder is registered for a file
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrNoDecoder is returned when none of an item's paths could be opened
	ErrNoDecoder = errors.New("no decoder could open item")
	// ErrCancelled is returned when a cancellable read was stopped by its predicate
	ErrCancelled = errors.New("decode cancelled")
)

// Decoder produces interleaved float32 PCM frames from a media item
type Decoder interface {
	// Format returns channel count, sample rate and source bit depth
	Format() audio.Format

	// Duration returns the total length, or 0 when unknown
	Duration() time.Duration

	// Bitrate returns the average bitrate in kbps, or 0 when unknown
	Bitrate() int

	// Read fills dst with interleaved samples in [-1,1] and returns frames read.
	// len(dst) must be a multiple of the channel count. Returns io.EOF at end.
	Read(dst []float32) (int, error)

	// Seek moves the read position to pos from the start of the stream
	Seek(pos time.Duration) error

	// Close releases decoder resources
	Close() error
}

// Continue is polled between decode chunks; returning false stops the read
type Continue func() bool

// Opener creates a decoder for a file path
type Opener func(path string) (Decoder, error)

// Registry maps lowercase file extensions (".mp3") to openers
type Registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{openers: make(map[string]Opener)}
}

// NewDefaultRegistry creates a registry with every built-in decoder
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(".mp3", OpenMP3)
	r.Register(".flac", OpenFLAC)
	r.Register(".opus", OpenOpus)
	r.Register(".wav", OpenWAV)
	r.Register(".aiff", OpenAIFF)
	r.Register(".aif", OpenAIFF)
	r.Register(".ogg", OpenVorbis)
	r.Register(".oga", OpenVorbis)
	r.Register(".pcm", OpenPCM)
	r.Register(".raw", OpenPCM)
	return r
}

// Register adds or replaces the opener for an extension
func (r *Registry) Register(ext string, open Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[strings.ToLower(ext)] = open
}

// Supports reports whether a decoder is registered for the path's extension
func (r *Registry) Supports(path string) bool {
	_, ok := r.lookup(path)
	return ok
}

func (r *Registry) lookup(path string) (Opener, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	open, ok := r.openers[strings.ToLower(filepath.Ext(path))]
	return open, ok
}

// Open opens a single path
func (r *Registry) Open(path string) (Decoder, error) {
	open, ok := r.lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	dec, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return dec, nil
}

// OpenFirst tries each path in order and returns the first decoder that opens.
// Used with an item's filename followed by its duplicate locations.
func (r *Registry) OpenFirst(paths ...string) (Decoder, error) {
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		dec, err := r.Open(p)
		if err == nil {
			return dec, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrNoDecoder, errors.Join(errs...))
}

// Probe opens a path just long enough to read its format and duration
func (r *Registry) Probe(paths ...string) (audio.Format, time.Duration, error) {
	dec, err := r.OpenFirst(paths...)
	if err != nil {
		return audio.Format{}, 0, err
	}
	defer dec.Close()
	return dec.Format(), dec.Duration(), nil
}

// ReadCancellable reads from dec into buf chunk by chunk, handing each chunk
// to fn, until EOF, an error, or canContinue returns false.
func ReadCancellable(dec Decoder, buf []float32, canContinue Continue, fn func(chunk []float32) error) error {
	ch := dec.Format().Channels
	if ch <= 0 {
		return fmt.Errorf("invalid channel count %d", ch)
	}
	buf = buf[:len(buf)/ch*ch]
	for {
		if canContinue != nil && !canContinue() {
			return ErrCancelled
		}
		n, err := dec.Read(buf)
		if n > 0 {
			if ferr := fn(buf[:n*ch]); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// skipFrames discards frames by decoding them; used by formats without native seek
func skipFrames(dec Decoder, frames int64) error {
	ch := dec.Format().Channels
	buf := make([]float32, 4096*ch)
	for frames > 0 {
		want := int64(4096)
		if frames < want {
			want = frames
		}
		n, err := dec.Read(buf[:want*int64(ch)])
		frames -= int64(n)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}

// estimateBitrate derives an average kbps figure from file size and duration
func estimateBitrate(size int64, d time.Duration) int {
	if size <= 0 || d <= 0 {
		return 0
	}
	return int(float64(size*8) / d.Seconds() / 1000)
}
