// ABOUTME: Streaming linear resampler for float32 audio
// ABOUTME: Converts sample rates and applies playback speed across chunk boundaries
package resample

// Resampler performs linear interpolation between sample rates. State is
// carried between calls so consecutive chunks join without clicks.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	speed      float64
	ratio      float64
	position   float64   // read position; 1.0 is the first frame of the next chunk
	lastFrame  []float32 // final frame of the previous chunk
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	r := &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		speed:      1.0,
		lastFrame:  make([]float32, channels),
	}
	r.updateRatio()
	r.Reset()
	return r
}

func (r *Resampler) updateRatio() {
	r.ratio = float64(r.inputRate) * r.speed / float64(r.outputRate)
}

// SetSpeed scales how fast input is consumed. 2.0 plays an octave up.
func (r *Resampler) SetSpeed(speed float64) {
	if speed <= 0 {
		speed = 1.0
	}
	r.speed = speed
	r.updateRatio()
}

// Speed returns the current playback speed
func (r *Resampler) Speed() float64 { return r.speed }

// Passthrough reports whether input is copied unchanged
func (r *Resampler) Passthrough() bool { return r.ratio == 1.0 }

// Ratio returns input frames consumed per output frame
func (r *Resampler) Ratio() float64 { return r.ratio }

// Process converts interleaved input and appends the result to out
func (r *Resampler) Process(input []float32, out []float32) []float32 {
	ch := r.channels
	n := len(input) / ch
	if n == 0 {
		return out
	}

	if r.Passthrough() && r.position == 1.0 {
		out = append(out, input[:n*ch]...)
		copy(r.lastFrame, input[(n-1)*ch:n*ch])
		return out
	}

	for int(r.position) <= n-1 {
		idx := int(r.position)
		frac := float32(r.position - float64(idx))
		for c := 0; c < ch; c++ {
			var a float32
			if idx == 0 {
				a = r.lastFrame[c]
			} else {
				a = input[(idx-1)*ch+c]
			}
			b := input[idx*ch+c]
			out = append(out, a+(b-a)*frac)
		}
		r.position += r.ratio
	}

	r.position -= float64(n)
	copy(r.lastFrame, input[(n-1)*ch:n*ch])
	return out
}

// Reset clears carried state so the next chunk starts fresh
func (r *Resampler) Reset() {
	r.position = 1.0
	for i := range r.lastFrame {
		r.lastFrame[i] = 0
	}
}

// OutputFrames estimates output frames produced for inputFrames
func (r *Resampler) OutputFrames(inputFrames int) int {
	return int(float64(inputFrames)/r.ratio) + 1
}

// InputFrames estimates input frames needed to produce outputFrames
func (r *Resampler) InputFrames(outputFrames int) int {
	return int(float64(outputFrames)*r.ratio) + 1
}
