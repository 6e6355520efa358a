// ABOUTME: Parametric equalizer built from peaking biquad filters
// ABOUTME: Coefficients are computed once per band; Process runs in place
package dsp

import "math"

// Band is one peaking filter
type Band struct {
	Freq   float64 // centre frequency in Hz
	GainDB float64
	Q      float64
}

type coeffs struct {
	b0, b1, b2, a1, a2 float64
}

// peaking computes RBJ cookbook peaking EQ coefficients normalised by a0
func peaking(b Band, rate int) coeffs {
	q := b.Q
	if q <= 0 {
		q = math.Sqrt2 / 2
	}
	a := math.Pow(10, b.GainDB/40)
	w := 2 * math.Pi * b.Freq / float64(rate)
	alpha := math.Sin(w) / (2 * q)
	cosw := math.Cos(w)

	a0 := 1 + alpha/a
	return coeffs{
		b0: (1 + alpha*a) / a0,
		b1: -2 * cosw / a0,
		b2: (1 - alpha*a) / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha/a) / a0,
	}
}

type state struct {
	x1, x2, y1, y2 float64
}

// EQ is a chain of peaking filters with per-channel state. Not safe for
// concurrent use; build a new one to change bands.
type EQ struct {
	channels int
	boosts   bool
	filters  []coeffs
	states   [][]state // [band][channel]
}

// NewEQ builds an equalizer for bands at the given format. Bands with zero
// gain or a frequency at or above Nyquist are skipped.
func NewEQ(bands []Band, sampleRate, channels int) *EQ {
	eq := &EQ{channels: channels}
	nyquist := float64(sampleRate) / 2
	for _, b := range bands {
		if b.GainDB == 0 || b.Freq <= 0 || b.Freq >= nyquist {
			continue
		}
		if b.GainDB > 0 {
			eq.boosts = true
		}
		eq.filters = append(eq.filters, peaking(b, sampleRate))
		eq.states = append(eq.states, make([]state, channels))
	}
	return eq
}

// Empty reports whether the EQ would leave audio unchanged
func (e *EQ) Empty() bool {
	return e == nil || len(e.filters) == 0
}

// Boosts reports whether any band raises the level and can push samples
// past full scale
func (e *EQ) Boosts() bool {
	return e != nil && e.boosts
}

// Process filters interleaved samples in place
func (e *EQ) Process(buf []float32) {
	if e.Empty() {
		return
	}
	ch := e.channels
	for f, c := range e.filters {
		st := e.states[f]
		for i := 0; i+ch <= len(buf); i += ch {
			for k := 0; k < ch; k++ {
				s := &st[k]
				x := float64(buf[i+k])
				y := c.b0*x + c.b1*s.x1 + c.b2*s.x2 - c.a1*s.y1 - c.a2*s.y2
				s.x2, s.x1 = s.x1, x
				s.y2, s.y1 = s.y1, y
				buf[i+k] = float32(y)
			}
		}
	}
}

// Reset clears filter history
func (e *EQ) Reset() {
	if e == nil {
		return
	}
	for _, st := range e.states {
		clear(st)
	}
}
