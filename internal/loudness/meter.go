// ABOUTME: EBU R128 integrated loudness meter
// ABOUTME: K-weights audio, measures gated 400ms blocks and tracks sample peak
package loudness

import (
	"math"
)

const (
	// AbsoluteGate drops blocks quieter than this (LUFS)
	AbsoluteGate = -70.0
	// RelativeGate drops blocks this far below the ungated mean (LU)
	RelativeGate = -10.0

	blockMillis    = 400
	subBlockMillis = 100
	subBlocks      = blockMillis / subBlockMillis
)

// Meter measures integrated loudness of one stream
type Meter struct {
	channels   int
	sampleRate int
	weights    []float64
	filters    []kWeighting

	subLen  int       // frames per 100ms sub-block
	subPos  int       // frames in the current sub-block
	subSum  []float64 // per-channel energy of the current sub-block
	history []float64 // weighted energy of recent complete sub-blocks
	blocks  []float64 // weighted mean-square energy per gating block
	peak    float64
	frames  int64
}

// NewMeter creates a meter for interleaved audio
func NewMeter(channels, sampleRate int) *Meter {
	m := &Meter{
		channels:   channels,
		sampleRate: sampleRate,
		weights:    channelWeights(channels),
		filters:    make([]kWeighting, channels),
		subLen:     sampleRate * subBlockMillis / 1000,
		subSum:     make([]float64, channels),
	}
	for i := range m.filters {
		m.filters[i] = newKWeighting(sampleRate)
	}
	if m.subLen < 1 {
		m.subLen = 1
	}
	return m
}

// channelWeights follows ITU-R BS.1770: LFE ignored, surrounds boosted
func channelWeights(channels int) []float64 {
	w := make([]float64, channels)
	for i := range w {
		w[i] = 1.0
	}
	if channels == 6 {
		w[3] = 0
		w[4] = 1.41
		w[5] = 1.41
	}
	return w
}

// Add feeds interleaved samples
func (m *Meter) Add(samples []float32) {
	ch := m.channels
	frames := len(samples) / ch
	for f := 0; f < frames; f++ {
		for c := 0; c < ch; c++ {
			s := float64(samples[f*ch+c])
			if a := math.Abs(s); a > m.peak {
				m.peak = a
			}
			y := m.filters[c].process(s)
			m.subSum[c] += y * y
		}
		m.subPos++
		if m.subPos == m.subLen {
			m.finishSubBlock()
		}
	}
	m.frames += int64(frames)
}

func (m *Meter) finishSubBlock() {
	var energy float64
	for c := range m.subSum {
		energy += m.weights[c] * m.subSum[c]
		m.subSum[c] = 0
	}
	m.subPos = 0

	m.history = append(m.history, energy)
	if len(m.history) > subBlocks {
		m.history = m.history[1:]
	}
	if len(m.history) == subBlocks {
		var sum float64
		for _, e := range m.history {
			sum += e
		}
		m.blocks = append(m.blocks, sum/float64(subBlocks*m.subLen))
	}
}

// Integrated returns gated integrated loudness in LUFS. ok is false when
// no block survived gating (silence or too short).
func (m *Meter) Integrated() (lufs float64, ok bool) {
	return integrate(m.blocks)
}

// Peak returns the linear sample peak
func (m *Meter) Peak() float64 { return m.peak }

// Frames returns how many frames were measured
func (m *Meter) Frames() int64 { return m.frames }

// Joint computes integrated loudness over the blocks of all meters together,
// as if they were one continuous stream.
func Joint(meters ...*Meter) (lufs float64, ok bool) {
	var all []float64
	for _, m := range meters {
		all = append(all, m.blocks...)
	}
	return integrate(all)
}

// JointPeak returns the highest peak among meters
func JointPeak(meters ...*Meter) float64 {
	var peak float64
	for _, m := range meters {
		peak = math.Max(peak, m.peak)
	}
	return peak
}

func integrate(blocks []float64) (float64, bool) {
	absThreshold := energyOf(AbsoluteGate)

	var sum float64
	var n int
	for _, e := range blocks {
		if e > absThreshold {
			sum += e
			n++
		}
	}
	if n == 0 {
		return math.Inf(-1), false
	}

	relThreshold := energyOf(loudnessOf(sum/float64(n)) + RelativeGate)
	sum, n = 0, 0
	for _, e := range blocks {
		if e > absThreshold && e > relThreshold {
			sum += e
			n++
		}
	}
	if n == 0 {
		return math.Inf(-1), false
	}
	return loudnessOf(sum / float64(n)), true
}

func loudnessOf(energy float64) float64 {
	if energy <= 0 {
		return math.Inf(-1)
	}
	return -0.691 + 10*math.Log10(energy)
}

func energyOf(lufs float64) float64 {
	return math.Pow(10, (lufs+0.691)/10)
}
