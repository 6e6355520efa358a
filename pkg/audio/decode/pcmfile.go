// ABOUTME: Shared decoder for go-audio container formats
// ABOUTME: Backs the WAV and AIFF decoders with IntBuffer reads and reopen seeking
package decode

import (
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"

	"github.com/harperreed/wavedeck/pkg/audio"
)

// pcmReader is the subset of the go-audio wav and aiff decoders we use
type pcmReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

// containerInfo describes an opened container file
type containerInfo struct {
	reader   pcmReader
	format   audio.Format
	frames   int64
	goFormat *goaudio.Format
}

// containerOpener parses a container header from an open file
type containerOpener func(f *os.File) (containerInfo, error)

// containerDecoder decodes integer PCM from WAV or AIFF containers
type containerDecoder struct {
	path   string
	open   containerOpener
	file   *os.File
	info   containerInfo
	size   int64
	intBuf *goaudio.IntBuffer
}

func openContainer(path string, open containerOpener) (*containerDecoder, error) {
	d := &containerDecoder{path: path, open: open}
	if err := d.reopen(); err != nil {
		return nil, err
	}
	if st, err := d.file.Stat(); err == nil {
		d.size = st.Size()
	}
	return d, nil
}

func (d *containerDecoder) reopen() error {
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
	f, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", d.path, err)
	}
	info, err := d.open(f)
	if err != nil {
		f.Close()
		return err
	}
	if !info.format.Valid() {
		f.Close()
		return fmt.Errorf("invalid format in %s", d.path)
	}
	d.file = f
	d.info = info
	return nil
}

func (d *containerDecoder) Format() audio.Format { return d.info.format }

func (d *containerDecoder) Duration() time.Duration { return d.info.format.DurationOf(d.info.frames) }

func (d *containerDecoder) Bitrate() int { return estimateBitrate(d.size, d.Duration()) }

func (d *containerDecoder) Read(dst []float32) (int, error) {
	ch := d.info.format.Channels
	want := len(dst) / ch * ch
	if want == 0 {
		return 0, nil
	}
	if d.intBuf == nil || cap(d.intBuf.Data) < want {
		d.intBuf = &goaudio.IntBuffer{
			Data:           make([]int, want),
			Format:         d.info.goFormat,
			SourceBitDepth: d.info.format.BitDepth,
		}
	}
	d.intBuf.Data = d.intBuf.Data[:want]

	n, err := d.info.reader.PCMBuffer(d.intBuf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return 0, fmt.Errorf("pcm read failed: %w", err)
	}
	frames := n / ch
	if frames == 0 {
		return 0, io.EOF
	}
	bits := d.info.format.BitDepth
	for i := 0; i < frames*ch; i++ {
		dst[i] = audio.IntToFloat(d.intBuf.Data[i], bits)
	}
	return frames, nil
}

// Seek reopens the container and decodes up to the target position
func (d *containerDecoder) Seek(pos time.Duration) error {
	if err := d.reopen(); err != nil {
		return err
	}
	return skipFrames(d, d.info.format.FramesFor(pos))
}

func (d *containerDecoder) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
