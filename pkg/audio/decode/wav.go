// ABOUTME: WAV file decoder
// ABOUTME: Reads integer PCM WAV files through go-audio/wav
package decode

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"

	"github.com/harperreed/wavedeck/pkg/audio"
)

// ErrNotWAV is returned for files without a RIFF/WAVE header
var ErrNotWAV = errors.New("not a valid wav file")

// OpenWAV opens a WAV file
func OpenWAV(path string) (Decoder, error) {
	return openContainer(path, func(f *os.File) (containerInfo, error) {
		dec := wav.NewDecoder(f)
		if !dec.IsValidFile() {
			return containerInfo{}, ErrNotWAV
		}
		dec.ReadInfo()
		if err := dec.FwdToPCM(); err != nil {
			return containerInfo{}, fmt.Errorf("failed to locate wav data: %w", err)
		}

		format := audio.Format{
			Codec:      "wav",
			SampleRate: int(dec.SampleRate),
			Channels:   int(dec.NumChans),
			BitDepth:   int(dec.BitDepth),
		}
		var frames int64
		if frameSize := format.Channels * format.BitDepth / 8; frameSize > 0 {
			frames = int64(dec.PCMSize / frameSize)
		}
		return containerInfo{
			reader:   dec,
			format:   format,
			frames:   frames,
			goFormat: dec.Format(),
		}, nil
	})
}
