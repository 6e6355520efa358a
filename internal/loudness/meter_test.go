// ABOUTME: Tests for the loudness meter
// ABOUTME: Checks sine calibration, gating, joint measurement and peak
package loudness

import (
	"math"
	"testing"
)

func sine(channels, rate int, seconds, freq, amplitude float64) []float32 {
	frames := int(seconds * float64(rate))
	out := make([]float32, frames*channels)
	for i := 0; i < frames; i++ {
		v := float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		for c := 0; c < channels; c++ {
			out[i*channels+c] = v
		}
	}
	return out
}

func TestStereoSineCalibration(t *testing.T) {
	tests := []struct {
		rate      int
		amplitude float64
		want      float64
	}{
		{48000, 0.1, -20},
		{44100, 0.1, -20},
		{48000, math.Pow(10, -23.0/20), -23},
	}

	for _, tt := range tests {
		m := NewMeter(2, tt.rate)
		m.Add(sine(2, tt.rate, 5, 1000, tt.amplitude))

		got, ok := m.Integrated()
		if !ok {
			t.Fatalf("rate %d: expected a measurement", tt.rate)
		}
		if math.Abs(got-tt.want) > 0.3 {
			t.Errorf("rate %d amp %f: expected %.1f LUFS, got %.2f", tt.rate, tt.amplitude, tt.want, got)
		}
	}
}

func TestSilenceIsGated(t *testing.T) {
	m := NewMeter(2, 48000)
	m.Add(make([]float32, 48000*2*3))

	if _, ok := m.Integrated(); ok {
		t.Error("silence should not produce a measurement")
	}
	if m.Peak() != 0 {
		t.Errorf("expected zero peak, got %f", m.Peak())
	}
}

func TestTooShortForABlock(t *testing.T) {
	m := NewMeter(1, 48000)
	m.Add(sine(1, 48000, 0.3, 1000, 0.5))
	if _, ok := m.Integrated(); ok {
		t.Error("300ms is shorter than one gating block")
	}
}

func TestSilentTailDoesNotLowerLoudness(t *testing.T) {
	loud := NewMeter(2, 48000)
	loud.Add(sine(2, 48000, 5, 1000, 0.1))
	base, _ := loud.Integrated()

	padded := NewMeter(2, 48000)
	padded.Add(sine(2, 48000, 5, 1000, 0.1))
	padded.Add(make([]float32, 48000*2*5))
	got, ok := padded.Integrated()
	if !ok {
		t.Fatal("expected a measurement")
	}
	if math.Abs(got-base) > 0.2 {
		t.Errorf("silence should be gated out: %.2f vs %.2f", got, base)
	}
}

func TestJointIsNotAverage(t *testing.T) {
	a := NewMeter(2, 48000)
	a.Add(sine(2, 48000, 10, 1000, 0.2))
	b := NewMeter(2, 48000)
	b.Add(sine(2, 48000, 2, 1000, 0.05))

	la, _ := a.Integrated()
	lb, _ := b.Integrated()
	joint, ok := Joint(a, b)
	if !ok {
		t.Fatal("expected joint measurement")
	}

	average := (la + lb) / 2
	if joint <= average {
		t.Errorf("joint %.2f should be weighted toward the longer loud track (avg %.2f)", joint, average)
	}
	if joint > la {
		t.Errorf("joint %.2f should not exceed the loudest track %.2f", joint, la)
	}
}

func TestJointOfIdenticalMeters(t *testing.T) {
	a := NewMeter(2, 48000)
	a.Add(sine(2, 48000, 3, 1000, 0.1))
	b := NewMeter(2, 48000)
	b.Add(sine(2, 48000, 3, 1000, 0.1))

	la, _ := a.Integrated()
	joint, _ := Joint(a, b)
	if math.Abs(joint-la) > 0.01 {
		t.Errorf("joint of identical tracks %.3f should equal %.3f", joint, la)
	}
}

func TestPeak(t *testing.T) {
	m := NewMeter(2, 48000)
	m.Add([]float32{0.1, -0.7, 0.3, 0.2})
	if math.Abs(m.Peak()-0.7) > 1e-6 {
		t.Errorf("expected peak 0.7, got %f", m.Peak())
	}
	n := NewMeter(2, 48000)
	n.Add([]float32{0.9, 0})
	if JointPeak(m, n) != float64(float32(0.9)) {
		t.Errorf("expected joint peak 0.9, got %f", JointPeak(m, n))
	}
}
