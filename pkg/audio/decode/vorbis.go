// ABOUTME: Ogg Vorbis file decoder
// ABOUTME: Wraps jfreymuth/oggvorbis which produces float32 output natively
package decode

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jfreymuth/oggvorbis"

	"github.com/harperreed/wavedeck/pkg/audio"
)

// VorbisDecoder decodes Ogg Vorbis files
type VorbisDecoder struct {
	file   *os.File
	reader *oggvorbis.Reader
	format audio.Format
	frames int64
	size   int64
}

// OpenVorbis opens an Ogg Vorbis file
func OpenVorbis(path string) (Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vorbis file: %w", err)
	}

	r, err := oggvorbis.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode vorbis: %w", err)
	}

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	return &VorbisDecoder{
		file:   f,
		reader: r,
		format: audio.Format{
			Codec:      "vorbis",
			SampleRate: r.SampleRate(),
			Channels:   r.Channels(),
			BitDepth:   16,
		},
		frames: r.Length(),
		size:   size,
	}, nil
}

func (d *VorbisDecoder) Format() audio.Format { return d.format }

func (d *VorbisDecoder) Duration() time.Duration { return d.format.DurationOf(d.frames) }

func (d *VorbisDecoder) Bitrate() int {
	if nominal := d.reader.Bitrate().Nominal; nominal > 0 {
		return nominal / 1000
	}
	return estimateBitrate(d.size, d.Duration())
}

// Read returns frames; the underlying reader counts interleaved values
func (d *VorbisDecoder) Read(dst []float32) (int, error) {
	ch := d.format.Channels
	want := len(dst) / ch * ch
	got := 0
	for got < want {
		n, err := d.reader.Read(dst[got:want])
		got += n
		if err == io.EOF {
			if got > 0 {
				return got / ch, nil
			}
			return 0, io.EOF
		}
		if err != nil {
			return got / ch, fmt.Errorf("vorbis decode failed: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return got / ch, nil
}

func (d *VorbisDecoder) Seek(pos time.Duration) error {
	frame := d.format.FramesFor(pos)
	if d.frames > 0 && frame > d.frames {
		frame = d.frames
	}
	if err := d.reader.SetPosition(frame); err != nil {
		return fmt.Errorf("vorbis seek failed: %w", err)
	}
	return nil
}

func (d *VorbisDecoder) Close() error {
	return d.file.Close()
}
