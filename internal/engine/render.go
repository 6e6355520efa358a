// ABOUTME: Real-time render path called by the device backend
// ABOUTME: Mixes current and outgoing streams, then applies EQ, balance and clipping when boosted
package engine

import (
	"math"
	"time"

	"github.com/harperreed/wavedeck/internal/dsp"
)

// renderState is an immutable snapshot the audio callback renders from.
// Control code and the callback replace it with CompareAndSwap.
type renderState struct {
	cur  *trackStream // playing, or fading in
	out  *trackStream // fading out, nil outside a crossfade
	next *trackStream // armed to follow cur

	// fadeAt is cur's position where next takes over; negative means at end of stream
	fadeAt time.Duration
	// fadeLen is the planned overlap with next in output frames; zero means a gapless cut
	fadeLen int64
	// outLen is the length of the fade out in progress
	outLen int64

	paused bool
}

func (st *renderState) clone() *renderState {
	c := *st
	return &c
}

// render fills dst and always reports it full; silence pads any shortfall.
// It never blocks, allocates or logs.
func (e *Engine) render(dst []float32) int {
	ch := e.outChannels
	if ch <= 0 {
		clear(dst)
		return 0
	}
	frames := len(dst) / ch
	base := e.outFrames.Load()

	// boosted is set when a gain stage can take samples past full scale
	boosted := false
	done := 0
	for guard := 0; done < frames && guard < 16; guard++ {
		st := e.state.Load()
		if st == nil || st.paused {
			break
		}
		boosted = boosted || st.cur.boosts() || (st.out != nil && st.out.boosts())
		done += e.renderSegment(st, dst[done*ch:frames*ch], base+int64(done))
	}
	clear(dst[done*ch:])

	if eq := e.eq.Load(); eq != nil {
		eq.Process(dst[:frames*ch])
		boosted = boosted || eq.Boosts()
	}
	dsp.Balance(dst[:frames*ch], ch, math.Float64frombits(e.balance.Load()))
	switch {
	case e.hardLimit.Load():
		dsp.HardLimit(dst[:frames*ch])
	case boosted:
		dsp.SoftClip(dst[:frames*ch])
	}

	e.scope.capture(dst[:frames*ch], ch)
	e.outFrames.Add(int64(frames))
	return frames
}

// renderSegment renders from one snapshot and returns frames produced. It
// returns 0 after swapping the snapshot so render reloads it.
func (e *Engine) renderSegment(st *renderState, seg []float32, at int64) int {
	ch := e.outChannels
	want := int64(len(seg) / ch)
	cur := st.cur

	if cur.rtLeadIn > 0 {
		n := min(cur.rtLeadIn, want)
		clear(seg[:n*int64(ch)])
		cur.rtLeadIn -= n
		return int(n)
	}
	if cur.startOut.Load() < 0 {
		cur.startOut.Store(at)
	}

	if st.next != nil && st.fadeAt >= 0 {
		until := cur.framesUntil(st.fadeAt)
		if until <= 0 {
			e.promote(st, at, true)
			return 0
		}
		want = min(want, until)
	}
	if st.out != nil {
		left := st.outLen - st.out.rtFade
		if left <= 0 {
			e.finishFade(st)
			return 0
		}
		want = min(want, left, int64(len(e.scratch)/ch))
	}

	part := seg[:want*int64(ch)]
	n := int64(cur.read(part))
	clear(part[n*int64(ch):])

	if st.out != nil {
		e.mixOutgoing(st, part)
		if n < want && !cur.drained() {
			e.underruns.Add(1)
		}
		return int(want)
	}

	if n < want {
		if cur.drained() {
			if st.next != nil {
				e.promote(st, at+n, false)
				return int(n)
			}
			if !cur.ended.Swap(true) {
				e.wake.Notify()
			}
		} else {
			e.underruns.Add(1)
		}
		return int(want)
	}
	return int(n)
}

// mixOutgoing blends the fading-out stream under the incoming audio in part
func (e *Engine) mixOutgoing(st *renderState, part []float32) {
	ch := e.outChannels
	out := st.out
	scratch := e.scratch[:len(part)]
	n := out.read(scratch)
	clear(scratch[n*ch:])

	frames := len(part) / ch
	total := float32(st.outLen)
	for f := 0; f < frames; f++ {
		p := float32(out.rtFade+int64(f)) / total
		for c := 0; c < ch; c++ {
			i := f*ch + c
			part[i] = part[i]*p + scratch[i]*(1-p)
		}
	}
	out.rtFade += int64(frames)

	if out.rtFade >= st.outLen || out.drained() {
		e.finishFade(st)
	}
}

// promote makes next current. With fade set the old stream overlaps it.
func (e *Engine) promote(st *renderState, at int64, fade bool) {
	ns := &renderState{cur: st.next, fadeAt: -1}
	if fade && st.fadeLen > 0 && !st.cur.drained() {
		ns.out = st.cur
		ns.outLen = st.fadeLen
	}
	st.next.startOut.Store(at)
	if e.state.CompareAndSwap(st, ns) {
		e.wake.Notify()
	}
}

// finishFade drops the outgoing stream
func (e *Engine) finishFade(st *renderState) {
	ns := st.clone()
	ns.out = nil
	ns.outLen = 0
	if e.state.CompareAndSwap(st, ns) {
		e.wake.Notify()
	}
}
