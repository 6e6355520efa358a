// ABOUTME: Per-sample gain stages for the render path
// ABOUTME: Gain, stereo balance, soft clipping and hard limiting on interleaved float32
package dsp

import "math"

// SoftKnee is the level where SoftClip starts bending the signal
const SoftKnee = 0.8

// ApplyGain multiplies every sample by g
func ApplyGain(buf []float32, g float32) {
	if g == 1 {
		return
	}
	for i := range buf {
		buf[i] *= g
	}
}

// BalanceGains returns left/right multipliers for balance in [-1, 1].
// Centre leaves both at unity; full left mutes the right channel.
func BalanceGains(balance float64) (left, right float32) {
	balance = math.Max(-1, math.Min(1, balance))
	left, right = 1, 1
	if balance > 0 {
		left = float32(1 - balance)
	} else if balance < 0 {
		right = float32(1 + balance)
	}
	return left, right
}

// Balance scales the first two channels of each frame. Mono input is untouched.
func Balance(buf []float32, channels int, balance float64) {
	if channels < 2 || balance == 0 {
		return
	}
	l, r := BalanceGains(balance)
	for i := 0; i+channels <= len(buf); i += channels {
		buf[i] *= l
		buf[i+1] *= r
	}
}

// SoftClip passes samples under SoftKnee unchanged and compresses anything
// above it smoothly so the output never exceeds full scale.
func SoftClip(buf []float32) {
	const span = 1 - SoftKnee
	for i, s := range buf {
		a := math.Abs(float64(s))
		if a <= SoftKnee {
			continue
		}
		y := SoftKnee + span*math.Tanh((a-SoftKnee)/span)
		if s < 0 {
			y = -y
		}
		buf[i] = float32(y)
	}
}

// HardLimit clamps samples to [-1, 1]
func HardLimit(buf []float32) {
	for i, s := range buf {
		if s > 1 {
			buf[i] = 1
		} else if s < -1 {
			buf[i] = -1
		}
	}
}

// Peak returns the largest absolute sample per channel
func Peak(buf []float32, channels int, out []float32) {
	for c := range out {
		out[c] = 0
	}
	for i := 0; i+channels <= len(buf); i += channels {
		for c := 0; c < channels && c < len(out); c++ {
			v := buf[i+c]
			if v < 0 {
				v = -v
			}
			if v > out[c] {
				out[c] = v
			}
		}
	}
}
