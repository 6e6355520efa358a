// ABOUTME: Tests for the render-path DSP stages
// ABOUTME: Gain, balance, clipping behaviour and equalizer response
package dsp

import (
	"math"
	"testing"
)

func TestApplyGain(t *testing.T) {
	buf := []float32{0.5, -0.25, 1}
	ApplyGain(buf, 0.5)
	want := []float32{0.25, -0.125, 0.5}
	for i := range buf {
		if buf[i] != want[i] {
			t.Errorf("buf[%d] = %v, want %v", i, buf[i], want[i])
		}
	}
}

func TestBalance(t *testing.T) {
	tests := []struct {
		balance   float64
		wantLeft  float32
		wantRight float32
	}{
		{0, 1, 1},
		{-1, 1, 0},
		{1, 0, 1},
		{0.5, 0.5, 1},
		{-0.25, 1, 0.75},
		{3, 0, 1},
	}
	for _, tt := range tests {
		buf := []float32{1, 1, 1, 1}
		Balance(buf, 2, tt.balance)
		if buf[0] != tt.wantLeft || buf[1] != tt.wantRight || buf[2] != tt.wantLeft || buf[3] != tt.wantRight {
			t.Errorf("Balance(%v) = %v, want L=%v R=%v", tt.balance, buf, tt.wantLeft, tt.wantRight)
		}
	}

	mono := []float32{1, 1}
	Balance(mono, 1, -1)
	if mono[0] != 1 || mono[1] != 1 {
		t.Errorf("mono should be untouched, got %v", mono)
	}
}

func TestSoftClip(t *testing.T) {
	buf := []float32{0.5, -0.8, 0.9, -1.5, 1.0, 1.2, 100}
	SoftClip(buf)

	if buf[0] != 0.5 || buf[1] != -0.8 {
		t.Errorf("samples below the knee changed: %v", buf[:2])
	}
	for i, s := range buf {
		if s > 1 || s < -1 {
			t.Errorf("buf[%d] = %v exceeds full scale", i, s)
		}
	}
	if !(buf[2] > 0.8 && buf[2] < 0.9) {
		t.Errorf("0.9 should be bent below itself, got %v", buf[2])
	}
	if buf[3] > -0.8 {
		t.Errorf("negative overs keep their sign, got %v", buf[3])
	}
	if !(buf[4] < buf[5]) {
		t.Errorf("soft clip should stay monotonic: %v >= %v", buf[4], buf[5])
	}
}

func TestHardLimit(t *testing.T) {
	buf := []float32{1.5, -2, 0.3}
	HardLimit(buf)
	if buf[0] != 1 || buf[1] != -1 || buf[2] != 0.3 {
		t.Errorf("HardLimit = %v", buf)
	}
}

func TestEQBoosts(t *testing.T) {
	tests := []struct {
		name  string
		bands []Band
		want  bool
	}{
		{"none", nil, false},
		{"cut only", []Band{{Freq: 1000, GainDB: -6, Q: 1}}, false},
		{"boost", []Band{{Freq: 100, GainDB: -3, Q: 1}, {Freq: 1000, GainDB: 4, Q: 1}}, true},
		{"boost above nyquist skipped", []Band{{Freq: 30000, GainDB: 6, Q: 1}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewEQ(tt.bands, 44100, 2).Boosts(); got != tt.want {
				t.Errorf("Boosts() = %v, want %v", got, tt.want)
			}
		})
	}
	var nilEQ *EQ
	if nilEQ.Boosts() {
		t.Error("nil EQ should not boost")
	}
}

func TestPeak(t *testing.T) {
	out := make([]float32, 2)
	Peak([]float32{0.1, -0.7, -0.4, 0.2}, 2, out)
	if out[0] != 0.4 || out[1] != 0.7 {
		t.Errorf("Peak = %v", out)
	}
}

// steadyGain runs a sine through eq and returns output/input amplitude
func steadyGain(eq *EQ, freq float64, rate int) float64 {
	n := rate
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = float32(0.25 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	eq.Process(buf)
	var peak float64
	for _, s := range buf[n/2:] {
		peak = math.Max(peak, math.Abs(float64(s)))
	}
	return peak / 0.25
}

func TestEQPeaking(t *testing.T) {
	const rate = 48000
	tests := []struct {
		name string
		freq float64
		want float64
		tol  float64
	}{
		{"boost at centre", 1000, math.Pow(10, 6.0/20), 0.02},
		{"far below centre", 50, 1, 0.05},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eq := NewEQ([]Band{{Freq: 1000, GainDB: 6, Q: 1}}, rate, 1)
			got := steadyGain(eq, tt.freq, rate)
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("gain at %v Hz = %.3f, want %.3f", tt.freq, got, tt.want)
			}
		})
	}
}

func TestEQSkipsUselessBands(t *testing.T) {
	eq := NewEQ([]Band{{Freq: 1000, GainDB: 0}, {Freq: 30000, GainDB: 3}}, 44100, 2)
	if !eq.Empty() {
		t.Error("flat and above-Nyquist bands should be skipped")
	}
	buf := []float32{0.1, 0.2}
	eq.Process(buf)
	if buf[0] != 0.1 || buf[1] != 0.2 {
		t.Errorf("empty EQ changed audio: %v", buf)
	}

	var nilEQ *EQ
	if !nilEQ.Empty() {
		t.Error("nil EQ should be empty")
	}
}
