// ABOUTME: Visualisation taps on the rendered output
// ABOUTME: Peak levels, a mono sample history and an FFT magnitude spectrum
package engine

import (
	"math"
	"math/cmplx"
	"sync/atomic"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	scopeSize   = 8192
	maxChannels = 8
)

// scope records rendered audio without locking. Readers may observe a
// partially updated history, which is fine for display.
type scope struct {
	samples  [scopeSize]atomic.Uint32
	write    atomic.Uint64
	levels   [maxChannels]atomic.Uint32
	channels atomic.Int32
}

// capture is called from the audio callback
func (s *scope) capture(buf []float32, ch int) {
	if ch <= 0 {
		return
	}
	s.channels.Store(int32(min(ch, maxChannels)))
	var peaks [maxChannels]float32
	w := s.write.Load()
	for i := 0; i+ch <= len(buf); i += ch {
		var sum float32
		for c := 0; c < ch; c++ {
			v := buf[i+c]
			sum += v
			if c < maxChannels {
				if v < 0 {
					v = -v
				}
				if v > peaks[c] {
					peaks[c] = v
				}
			}
		}
		s.samples[w%scopeSize].Store(math.Float32bits(sum / float32(ch)))
		w++
	}
	s.write.Store(w)
	for c := 0; c < ch && c < maxChannels; c++ {
		s.levels[c].Store(math.Float32bits(peaks[c]))
	}
}

func (s *scope) reset() {
	for c := range s.levels {
		s.levels[c].Store(0)
	}
}

// Levels returns the peak of each channel in the last rendered block
func (s *scope) Levels() []float32 {
	n := int(s.channels.Load())
	out := make([]float32, n)
	for c := range out {
		out[c] = math.Float32frombits(s.levels[c].Load())
	}
	return out
}

// Samples returns the most recent n mono samples, oldest first
func (s *scope) Samples(n int) []float32 {
	n = min(n, scopeSize)
	w := s.write.Load()
	if uint64(n) > w {
		n = int(w)
	}
	out := make([]float32, n)
	start := w - uint64(n)
	for i := range out {
		out[i] = math.Float32frombits(s.samples[(start+uint64(i))%scopeSize].Load())
	}
	return out
}

// Spectrum returns bins magnitudes of a Hann-windowed FFT over recent output
func (s *scope) Spectrum(bins int) []float64 {
	if bins <= 0 {
		return nil
	}
	n := 2 * bins
	samples := s.Samples(n)
	seq := make([]float64, n)
	for i, v := range samples {
		w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		seq[n-len(samples)+i] = float64(v) * w
	}

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, seq)
	out := make([]float64, bins)
	for i := range out {
		out[i] = cmplx.Abs(coeff[i]) * 2 / float64(n)
	}
	return out
}
