// ABOUTME: Raw PCM file decoder
// ABOUTME: Reads headerless signed 16-bit little-endian stereo at 44.1kHz
package decode

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/harperreed/wavedeck/pkg/audio"
)

// Raw PCM files carry no header, so the layout is fixed
const (
	rawSampleRate = 44100
	rawChannels   = 2
	rawBitDepth   = 16
)

// PCMDecoder decodes raw s16le PCM files
type PCMDecoder struct {
	file   *os.File
	r      *bufio.Reader
	format audio.Format
	frames int64
	buf    []byte
}

// OpenPCM opens a raw PCM file
func OpenPCM(path string) (Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcm file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat pcm file: %w", err)
	}
	frameSize := int64(rawChannels * rawBitDepth / 8)
	return &PCMDecoder{
		file: f,
		r:    bufio.NewReader(f),
		format: audio.Format{
			Codec:      "pcm",
			SampleRate: rawSampleRate,
			Channels:   rawChannels,
			BitDepth:   rawBitDepth,
		},
		frames: info.Size() / frameSize,
	}, nil
}

func (d *PCMDecoder) Format() audio.Format { return d.format }

func (d *PCMDecoder) Duration() time.Duration { return d.format.DurationOf(d.frames) }

func (d *PCMDecoder) Bitrate() int {
	return d.format.SampleRate * d.format.Channels * d.format.BitDepth / 1000
}

func (d *PCMDecoder) Read(dst []float32) (int, error) {
	samples := len(dst) / d.format.Channels * d.format.Channels
	if samples == 0 {
		return 0, nil
	}
	need := samples * 2
	if cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	d.buf = d.buf[:need]

	n, err := io.ReadFull(d.r, d.buf)
	if err == io.ErrUnexpectedEOF {
		err = nil
	}
	frames := n / (2 * d.format.Channels)
	for i := 0; i < frames*d.format.Channels; i++ {
		dst[i] = audio.IntToFloat(int(int16(binary.LittleEndian.Uint16(d.buf[i*2:]))), 16)
	}
	if frames == 0 && err == nil {
		err = io.EOF
	}
	return frames, err
}

func (d *PCMDecoder) Seek(pos time.Duration) error {
	frame := d.format.FramesFor(pos)
	if frame > d.frames {
		frame = d.frames
	}
	if _, err := d.file.Seek(frame*int64(d.format.Channels*2), io.SeekStart); err != nil {
		return fmt.Errorf("pcm seek failed: %w", err)
	}
	d.r.Reset(d.file)
	return nil
}

func (d *PCMDecoder) Close() error {
	return d.file.Close()
}
