// ABOUTME: K-weighting pre-filter from ITU-R BS.1770
// ABOUTME: High-shelf and high-pass biquads computed for any sample rate
package loudness

import "math"

type biquad struct {
	b0, b1, b2, a1, a2 float64
	z1, z2             float64
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.z1
	f.z1 = f.b1*x - f.a1*y + f.z2
	f.z2 = f.b2*x - f.a2*y
	return y
}

type kWeighting struct {
	shelf    biquad
	highpass biquad
}

func (k *kWeighting) process(x float64) float64 {
	return k.highpass.process(k.shelf.process(x))
}

// newKWeighting derives the filter pair for rate. Constants are the analog
// prototypes that reproduce the 48kHz reference coefficients.
func newKWeighting(rate int) kWeighting {
	fs := float64(rate)

	f0 := 1681.974450955533
	g := 3.999843853973347
	q := 0.7071752369554196
	k := math.Tan(math.Pi * f0 / fs)
	vh := math.Pow(10, g/20)
	vb := math.Pow(vh, 0.4996667741545416)
	a0 := 1 + k/q + k*k
	shelf := biquad{
		b0: (vh + vb*k/q + k*k) / a0,
		b1: 2 * (k*k - vh) / a0,
		b2: (vh - vb*k/q + k*k) / a0,
		a1: 2 * (k*k - 1) / a0,
		a2: (1 - k/q + k*k) / a0,
	}

	f0 = 38.13547087602444
	q = 0.5003270373238773
	k = math.Tan(math.Pi * f0 / fs)
	a0 = 1 + k/q + k*k
	highpass := biquad{
		b0: 1,
		b1: -2,
		b2: 1,
		a1: 2 * (k*k - 1) / a0,
		a2: (1 - k/q + k*k) / a0,
	}

	return kWeighting{shelf: shelf, highpass: highpass}
}
