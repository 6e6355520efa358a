// ABOUTME: FLAC file decoder
// ABOUTME: Parses frames with mewkiz/flac and interleaves subframe samples
package decode

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mewkiz/flac"

	"github.com/harperreed/wavedeck/pkg/audio"
)

// FLACDecoder decodes FLAC files
type FLACDecoder struct {
	file    *os.File
	stream  *flac.Stream
	format  audio.Format
	frames  int64
	size    int64
	pending []float32 // decoded but not yet returned, interleaved
	skip    int64     // frames to drop after a seek landed before the target
	atEnd   bool
}

// OpenFLAC opens a FLAC file with seek support
func OpenFLAC(path string) (Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open flac file: %w", err)
	}

	stream, err := flac.NewSeek(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode flac: %w", err)
	}

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	info := stream.Info
	return &FLACDecoder{
		file:   f,
		stream: stream,
		format: audio.Format{
			Codec:      "flac",
			SampleRate: int(info.SampleRate),
			Channels:   int(info.NChannels),
			BitDepth:   int(info.BitsPerSample),
		},
		frames: int64(info.NSamples),
		size:   size,
	}, nil
}

func (d *FLACDecoder) Format() audio.Format { return d.format }

func (d *FLACDecoder) Duration() time.Duration { return d.format.DurationOf(d.frames) }

func (d *FLACDecoder) Bitrate() int { return estimateBitrate(d.size, d.Duration()) }

func (d *FLACDecoder) Read(dst []float32) (int, error) {
	if d.atEnd {
		return 0, io.EOF
	}
	ch := d.format.Channels
	want := len(dst) / ch * ch
	written := 0

	for written < want {
		if len(d.pending) == 0 {
			if err := d.fill(); err != nil {
				if err == io.EOF && written > 0 {
					return written / ch, nil
				}
				return written / ch, err
			}
			continue
		}
		n := copy(dst[written:want], d.pending)
		d.pending = d.pending[n:]
		written += n
	}
	return written / ch, nil
}

// fill decodes the next FLAC frame into the pending buffer
func (d *FLACDecoder) fill() error {
	frame, err := d.stream.ParseNext()
	if err != nil {
		return err
	}

	ch := d.format.Channels
	block := int(frame.BlockSize)
	start := 0
	if d.skip > 0 {
		if int64(block) <= d.skip {
			d.skip -= int64(block)
			return nil
		}
		start = int(d.skip)
		d.skip = 0
	}

	need := (block - start) * ch
	if cap(d.pending) < need {
		d.pending = make([]float32, need)
	}
	d.pending = d.pending[:need]

	for i := start; i < block; i++ {
		for c := 0; c < ch; c++ {
			d.pending[(i-start)*ch+c] = audio.IntToFloat(int(frame.Subframes[c].Samples[i]), d.format.BitDepth)
		}
	}
	return nil
}

func (d *FLACDecoder) Seek(pos time.Duration) error {
	target := d.format.FramesFor(pos)
	d.pending = d.pending[:0]
	d.atEnd = d.frames > 0 && target >= d.frames
	if d.atEnd {
		return nil
	}
	landed, err := d.stream.Seek(uint64(target))
	if err != nil {
		return fmt.Errorf("flac seek failed: %w", err)
	}
	d.skip = target - int64(landed)
	if d.skip < 0 {
		d.skip = 0
	}
	return nil
}

func (d *FLACDecoder) Close() error {
	d.stream.Close()
	return d.file.Close()
}
