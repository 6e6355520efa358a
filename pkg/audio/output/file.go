// ABOUTME: WAV file output on a software clock
// ABOUTME: Renders through go-audio/wav, paced in real time or as fast as possible
package output

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/harperreed/wavedeck/pkg/audio"
)

// wavFormatPCM is the WAVE_FORMAT_PCM tag
const wavFormatPCM = 1

// File writes rendered audio to a WAV file
type File struct {
	base
	opts   Options
	file   *os.File
	enc    *wav.Encoder
	cancel context.CancelFunc
	done   chan struct{}
	frames int64
	mu     sync.Mutex
}

// NewFile creates a WAV file sink
func NewFile(opts Options, logger zerolog.Logger) *File {
	return &File{
		base: newBase(logger.With().Str("backend", "file").Logger()),
		opts: opts,
	}
}

func (f *File) Name() string { return "file" }

func (f *File) Mode() Mode { return ModeFile }

// Open creates the output file and WAV encoder
func (f *File) Open(format audio.Format, render Renderer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file != nil {
		f.closeLocked()
	}

	file, err := os.Create(f.opts.FilePath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	bitDepth := 16
	if format.BitDepth >= 24 {
		bitDepth = 24
	}
	f.file = file
	f.enc = wav.NewEncoder(file, format.SampleRate, bitDepth, format.Channels, wavFormatPCM)
	f.format = audio.Format{
		Codec:      "wav",
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		BitDepth:   bitDepth,
	}
	f.render = render
	f.frames = 0

	f.logger.Info().Str("path", f.opts.FilePath).Int("bit_depth", bitDepth).Msg("File output initialized")
	return nil
}

// Start begins the clock goroutine
func (f *File) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enc == nil {
		return ErrNotOpen
	}
	if f.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.clock(ctx, f.done)
	return nil
}

func (f *File) clock(ctx context.Context, done chan struct{}) {
	defer close(done)

	period := f.opts.bufferDuration()
	frames := int(f.format.FramesFor(period))
	samples := make([]float32, frames*f.format.Channels)
	buf := &goaudio.IntBuffer{
		Data:           make([]int, len(samples)),
		Format:         &goaudio.Format{NumChannels: f.format.Channels, SampleRate: f.format.SampleRate},
		SourceBitDepth: f.format.BitDepth,
	}

	var ticker *time.Ticker
	if f.opts.RealTime {
		ticker = time.NewTicker(period)
		defer ticker.Stop()
	}

	for {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return
		}

		f.fill(samples)
		floatsToInts(buf.Data, samples, f.format.BitDepth)

		f.mu.Lock()
		var err error
		if f.enc != nil {
			err = f.enc.Write(buf)
			f.frames += int64(frames)
		}
		f.mu.Unlock()

		if err != nil {
			f.emit(Event{Type: DeviceLost, Err: err})
			return
		}
	}
}

// Frames returns how many frames have been written
func (f *File) Frames() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

// Close stops the clock and finalizes the WAV header
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeLocked()
}

func (f *File) closeLocked() error {
	if f.cancel != nil {
		f.cancel()
		f.mu.Unlock()
		<-f.done
		f.mu.Lock()
		f.cancel = nil
	}
	if f.enc == nil {
		return nil
	}
	encErr := f.enc.Close()
	fileErr := f.file.Close()
	f.enc = nil
	f.file = nil
	if encErr != nil {
		return fmt.Errorf("failed to finalize wav: %w", encErr)
	}
	return fileErr
}

// Latency is zero; a file has no playback delay
func (f *File) Latency() time.Duration { return 0 }

// Devices returns the configured file path
func (f *File) Devices() ([]Device, error) {
	return []Device{{ID: f.opts.FilePath, Name: "WAV file", Default: true}}, nil
}
