// ABOUTME: Quiet-tail detection for crossfade points
// ABOUTME: Builds an RMS envelope over a track's tail and finds where it stays quiet
package crossfade

import (
	"errors"
	"math"
	"time"

	"github.com/harperreed/wavedeck/pkg/audio/decode"
)

// Params tunes quiet-region detection
type Params struct {
	// Window is how much of the track's end is analysed
	Window time.Duration
	// Envelope is the RMS window length
	Envelope time.Duration
	// ThresholdDB is added to the loudest envelope value to get the quiet threshold
	ThresholdDB float64
	// FloorDB is the lowest threshold allowed (dBFS)
	FloorDB float64
	// ChunkFrames is the decode chunk size; cancellation is checked per chunk
	ChunkFrames int
}

// DefaultParams returns the standard heuristic
func DefaultParams() Params {
	return Params{
		Window:      15 * time.Second,
		Envelope:    50 * time.Millisecond,
		ThresholdDB: -30,
		FloorDB:     -55,
		ChunkFrames: 4096,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Window <= 0 {
		p.Window = d.Window
	}
	if p.Envelope <= 0 {
		p.Envelope = d.Envelope
	}
	if p.ChunkFrames <= 0 {
		p.ChunkFrames = d.ChunkFrames
	}
	if p.ThresholdDB == 0 {
		p.ThresholdDB = d.ThresholdDB
	}
	if p.FloorDB == 0 {
		p.FloorDB = d.FloorDB
	}
	return p
}

// Detection is the outcome of one analysis
type Detection struct {
	// Position is the fade start from the beginning of the track
	Position time.Duration
	// Found is false when the tail never gets quiet
	Found bool
	// Duration is the analysed track's length
	Duration time.Duration
}

// Detect finds the earliest point in the track's tail after which the
// envelope stays below the quiet threshold. Analysis starts no earlier than
// seek. The returned position always lies within [0, duration].
func Detect(dec decode.Decoder, seek time.Duration, p Params, canContinue decode.Continue) (Detection, error) {
	p = p.withDefaults()
	format := dec.Format()
	if !format.Valid() {
		return Detection{}, errors.New("invalid decoder format")
	}

	duration := dec.Duration()
	start := seek
	if duration > 0 && duration-p.Window > start {
		start = duration - p.Window
	}
	if start < 0 {
		start = 0
	}
	if start > 0 {
		if err := dec.Seek(start); err != nil {
			return Detection{}, err
		}
	}

	envFrames := int(format.FramesFor(p.Envelope))
	if envFrames < 1 {
		envFrames = 1
	}

	var (
		envelope []float64
		sum      float64
		count    int
		total    int64
	)
	ch := format.Channels
	buf := make([]float32, p.ChunkFrames*ch)
	err := decode.ReadCancellable(dec, buf, canContinue, func(chunk []float32) error {
		for i := 0; i+ch <= len(chunk); i += ch {
			for c := 0; c < ch; c++ {
				s := float64(chunk[i+c])
				sum += s * s
			}
			count++
			if count == envFrames {
				envelope = append(envelope, meanSquareDB(sum, count*ch))
				sum, count = 0, 0
			}
		}
		total += int64(len(chunk) / ch)
		return nil
	})
	if err != nil {
		return Detection{}, err
	}
	if duration <= 0 {
		duration = start + format.DurationOf(total)
	}
	result := Detection{Duration: duration}

	idx, ok := quietTail(envelope, p.ThresholdDB, p.FloorDB)
	if !ok {
		return result, nil
	}

	pos := start + format.DurationOf(int64(idx*envFrames))
	if pos > duration {
		pos = duration
	}
	result.Position = pos
	result.Found = true
	return result, nil
}

// quietTail returns the first envelope index from which every value is
// below the adaptive threshold. A trailing partial window is never part of env,
// so a quiet region shorter than one window counts as none.
func quietTail(env []float64, thresholdDB, floorDB float64) (int, bool) {
	if len(env) == 0 {
		return 0, false
	}
	peak := math.Inf(-1)
	for _, v := range env {
		peak = math.Max(peak, v)
	}
	threshold := math.Max(floorDB, peak+thresholdDB)

	idx := len(env)
	for idx > 0 && env[idx-1] < threshold {
		idx--
	}
	if idx == len(env) {
		return 0, false
	}
	return idx, true
}

func meanSquareDB(sum float64, n int) float64 {
	if n == 0 || sum <= 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(sum/float64(n))
}
