// ABOUTME: Ogg Opus file decoder
// ABOUTME: Decodes through libopusfile and reads layout from the Ogg headers
package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/hraban/opus.v2"

	"github.com/harperreed/wavedeck/pkg/audio"
)

// Opus always decodes at 48kHz
const opusSampleRate = 48000

var (
	opusHeadMagic = []byte("OpusHead")
	oggPageMagic  = []byte("OggS")
)

// OpusDecoder decodes Ogg Opus files
type OpusDecoder struct {
	path   string
	file   *os.File
	stream *opus.Stream
	format audio.Format
	frames int64
	size   int64
}

// OpenOpus opens an Ogg Opus file
func OpenOpus(path string) (Decoder, error) {
	channels, preSkip, frames, size, err := probeOpus(path)
	if err != nil {
		return nil, err
	}

	d := &OpusDecoder{
		path: path,
		format: audio.Format{
			Codec:      "opus",
			SampleRate: opusSampleRate,
			Channels:   channels,
			BitDepth:   16,
		},
		frames: frames - int64(preSkip),
		size:   size,
	}
	if d.frames < 0 {
		d.frames = 0
	}
	if err := d.open(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *OpusDecoder) open() error {
	f, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("failed to open opus file: %w", err)
	}
	stream, err := opus.NewStream(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to decode opus: %w", err)
	}
	d.file = f
	d.stream = stream
	return nil
}

func (d *OpusDecoder) Format() audio.Format { return d.format }

func (d *OpusDecoder) Duration() time.Duration { return d.format.DurationOf(d.frames) }

func (d *OpusDecoder) Bitrate() int { return estimateBitrate(d.size, d.Duration()) }

func (d *OpusDecoder) Read(dst []float32) (int, error) {
	ch := d.format.Channels
	want := len(dst) / ch
	got := 0
	for got < want {
		n, err := d.stream.ReadFloat32(dst[got*ch : want*ch])
		got += n
		if err == io.EOF {
			if got > 0 {
				return got, nil
			}
			return 0, io.EOF
		}
		if err != nil {
			return got, fmt.Errorf("opus decode failed: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return got, nil
}

// Seek reopens the stream and decodes up to the target position
func (d *OpusDecoder) Seek(pos time.Duration) error {
	d.closeStream()
	if err := d.open(); err != nil {
		return err
	}
	return skipFrames(d, d.format.FramesFor(pos))
}

func (d *OpusDecoder) closeStream() {
	if d.stream != nil {
		d.stream.Close()
		d.stream = nil
	}
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
}

func (d *OpusDecoder) Close() error {
	d.closeStream()
	return nil
}

// probeOpus reads the channel count and pre-skip from the OpusHead packet and
// the total sample count from the granule position of the last Ogg page.
func probeOpus(path string) (channels int, preSkip int, frames int64, size int64, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("failed to read opus file: %w", err)
	}
	size = int64(len(data))

	head := bytes.Index(data, opusHeadMagic)
	if head < 0 || head+19 > len(data) {
		return 0, 0, 0, 0, errors.New("missing OpusHead header")
	}
	channels = int(data[head+9])
	preSkip = int(binary.LittleEndian.Uint16(data[head+10:]))
	if channels <= 0 {
		return 0, 0, 0, 0, fmt.Errorf("invalid opus channel count %d", channels)
	}

	last := bytes.LastIndex(data, oggPageMagic)
	if last >= 0 && last+14 <= len(data) {
		granule := int64(binary.LittleEndian.Uint64(data[last+6:]))
		if granule > 0 {
			frames = granule
		}
	}
	return channels, preSkip, frames, size, nil
}
