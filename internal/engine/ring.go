// ABOUTME: Lock-free single-producer single-consumer sample ring
// ABOUTME: The decode goroutine writes, the audio callback reads, neither blocks
package engine

import "sync/atomic"

// spscRing is safe for exactly one writer goroutine and one reader goroutine
type spscRing struct {
	buf  []float32
	mask uint64
	head atomic.Uint64 // total samples written
	tail atomic.Uint64 // total samples read
}

func newSPSCRing(minSamples int) *spscRing {
	size := uint64(1)
	for size < uint64(minSamples) {
		size <<= 1
	}
	return &spscRing{buf: make([]float32, size), mask: size - 1}
}

// Cap returns the ring size in samples
func (r *spscRing) Cap() int { return len(r.buf) }

// Len returns samples ready to read
func (r *spscRing) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Free returns samples that can be written
func (r *spscRing) Free() int {
	return len(r.buf) - r.Len()
}

// Write copies as many samples as fit, rounded down to a multiple of align
func (r *spscRing) Write(p []float32, align int) int {
	head := r.head.Load()
	free := len(r.buf) - int(head-r.tail.Load())
	n := min(len(p), free)
	n -= n % align
	for i := 0; i < n; i++ {
		r.buf[(head+uint64(i))&r.mask] = p[i]
	}
	r.head.Store(head + uint64(n))
	return n
}

// Read copies up to len(p) samples, rounded down to a multiple of align
func (r *spscRing) Read(p []float32, align int) int {
	tail := r.tail.Load()
	avail := int(r.head.Load() - tail)
	n := min(len(p), avail)
	n -= n % align
	for i := 0; i < n; i++ {
		p[i] = r.buf[(tail+uint64(i))&r.mask]
	}
	r.tail.Store(tail + uint64(n))
	return n
}
