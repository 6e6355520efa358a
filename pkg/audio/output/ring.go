// ABOUTME: Thread-safe circular buffer for float32 samples
// ABOUTME: Decouples the render goroutine from device pull callbacks
package output

import "sync"

// RingBuffer provides thread-safe circular buffer for audio samples
type RingBuffer struct {
	buffer   []float32
	readPos  int
	writePos int
	size     int
	count    int // Number of samples currently in buffer
	mu       sync.Mutex
}

// NewRingBuffer creates a ring buffer with given capacity (in samples)
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]float32, capacity),
		size:   capacity,
	}
}

// Write adds samples to the ring buffer and returns how many fit
func (rb *RingBuffer) Write(samples []float32) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for written < len(samples) && rb.count < rb.size {
		n := len(samples) - written
		if free := rb.size - rb.count; n > free {
			n = free
		}
		if tail := rb.size - rb.writePos; n > tail {
			n = tail
		}
		copy(rb.buffer[rb.writePos:rb.writePos+n], samples[written:written+n])
		rb.writePos = (rb.writePos + n) % rb.size
		rb.count += n
		written += n
	}
	return written
}

// Read retrieves samples, zero-filling on underrun, and returns how many were real
func (rb *RingBuffer) Read(samples []float32) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for read < len(samples) && rb.count > 0 {
		n := len(samples) - read
		if n > rb.count {
			n = rb.count
		}
		if tail := rb.size - rb.readPos; n > tail {
			n = tail
		}
		copy(samples[read:read+n], rb.buffer[rb.readPos:rb.readPos+n])
		rb.readPos = (rb.readPos + n) % rb.size
		rb.count -= n
		read += n
	}

	for i := read; i < len(samples); i++ {
		samples[i] = 0
	}

	return read
}

// Available returns the number of samples available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Free returns the number of free slots in the buffer
func (rb *RingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size - rb.count
}

// Reset drops all buffered samples
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.readPos, rb.writePos, rb.count = 0, 0, 0
}
