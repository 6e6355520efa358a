// ABOUTME: AIFF file decoder
// ABOUTME: Reads integer PCM AIFF files through go-audio/aiff
package decode

import (
	"errors"
	"os"

	"github.com/go-audio/aiff"

	"github.com/harperreed/wavedeck/pkg/audio"
)

// ErrNotAIFF is returned for files without a FORM/AIFF header
var ErrNotAIFF = errors.New("not a valid aiff file")

// OpenAIFF opens an AIFF file
func OpenAIFF(path string) (Decoder, error) {
	return openContainer(path, func(f *os.File) (containerInfo, error) {
		dec := aiff.NewDecoder(f)
		if !dec.IsValidFile() {
			return containerInfo{}, ErrNotAIFF
		}
		dec.ReadInfo()

		return containerInfo{
			reader: dec,
			format: audio.Format{
				Codec:      "aiff",
				SampleRate: dec.SampleRate,
				Channels:   int(dec.NumChans),
				BitDepth:   int(dec.BitDepth),
			},
			frames:   int64(dec.NumSampleFrames),
			goFormat: dec.Format(),
		}, nil
	})
}
