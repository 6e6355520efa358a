// ABOUTME: MP3 file decoder
// ABOUTME: Wraps go-mp3 which always produces 16-bit stereo output
package decode

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hajimehoshi/go-mp3"

	"github.com/harperreed/wavedeck/pkg/audio"
)

// go-mp3 output is always 16-bit stereo
const mp3BytesPerFrame = 4

// MP3Decoder decodes MP3 files
type MP3Decoder struct {
	file    *os.File
	decoder *mp3.Decoder
	format  audio.Format
	size    int64
	buf     []byte
}

// OpenMP3 opens an MP3 file
func OpenMP3(path string) (Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mp3 file: %w", err)
	}

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode mp3: %w", err)
	}

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	return &MP3Decoder{
		file:    f,
		decoder: dec,
		format: audio.Format{
			Codec:      "mp3",
			SampleRate: dec.SampleRate(),
			Channels:   2,
			BitDepth:   16,
		},
		size: size,
	}, nil
}

func (d *MP3Decoder) Format() audio.Format { return d.format }

func (d *MP3Decoder) Duration() time.Duration {
	length := d.decoder.Length()
	if length <= 0 {
		return 0
	}
	return d.format.DurationOf(length / mp3BytesPerFrame)
}

func (d *MP3Decoder) Bitrate() int {
	return estimateBitrate(d.size, d.Duration())
}

func (d *MP3Decoder) Read(dst []float32) (int, error) {
	frames := len(dst) / 2
	if frames == 0 {
		return 0, nil
	}
	need := frames * mp3BytesPerFrame
	if cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	d.buf = d.buf[:need]

	n, err := io.ReadFull(d.decoder, d.buf)
	if err == io.ErrUnexpectedEOF {
		err = nil
	}
	got := n / mp3BytesPerFrame
	for i := 0; i < got*2; i++ {
		dst[i] = audio.IntToFloat(int(int16(binary.LittleEndian.Uint16(d.buf[i*2:]))), 16)
	}
	if got == 0 && err == nil {
		err = io.EOF
	}
	return got, err
}

func (d *MP3Decoder) Seek(pos time.Duration) error {
	offset := d.format.FramesFor(pos) * mp3BytesPerFrame
	if length := d.decoder.Length(); length > 0 && offset > length {
		offset = length
	}
	if _, err := d.decoder.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("mp3 seek failed: %w", err)
	}
	return nil
}

func (d *MP3Decoder) Close() error {
	return d.file.Close()
}
