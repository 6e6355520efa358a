// ABOUTME: Null audio output that discards rendered frames
// ABOUTME: Pumped manually by tests or driven by an optional ticker
package output

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harperreed/wavedeck/pkg/audio"
)

// Null renders into memory and throws the result away
type Null struct {
	base
	opts    Options
	mu      sync.Mutex
	open    bool
	started bool
	latency time.Duration
	last    []float32
	total   int64
	stop    chan struct{}
	done    chan struct{}
}

// NewNull creates a null output. With RealTime set it renders on a ticker;
// otherwise nothing happens until Pump is called.
func NewNull(opts Options) *Null {
	return &Null{
		base: newBase(zerolog.Nop()),
		opts: opts,
	}
}

func (n *Null) Name() string { return "null" }

func (n *Null) Mode() Mode { return ModeNull }

func (n *Null) Open(format audio.Format, render Renderer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.format = format
	n.render = render
	n.open = true
	n.started = false
	n.total = 0
	return nil
}

func (n *Null) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.open {
		return ErrNotOpen
	}
	if n.started {
		return nil
	}
	n.started = true
	if n.opts.RealTime {
		n.stop = make(chan struct{})
		n.done = make(chan struct{})
		go n.tick(n.stop, n.done)
	}
	return nil
}

func (n *Null) tick(stop, done chan struct{}) {
	defer close(done)
	period := n.opts.bufferDuration()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	frames := int(n.format.FramesFor(period))
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n.Pump(frames)
		}
	}
}

// Pump renders frames synchronously, as a device callback would.
// Returns the frames the renderer produced; 0 when closed or not started.
func (n *Null) Pump(frames int) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.open || !n.started {
		return 0
	}
	size := frames * n.format.Channels
	if cap(n.last) < size {
		n.last = make([]float32, size)
	}
	n.last = n.last[:size]
	got := n.fill(n.last)
	n.total += int64(frames)
	return got
}

// Last returns a copy of the most recently pumped buffer
func (n *Null) Last() []float32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]float32, len(n.last))
	copy(out, n.last)
	return out
}

// Total returns frames pumped since Open
func (n *Null) Total() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.total
}

// IsOpen reports whether a stream is open
func (n *Null) IsOpen() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.open
}

// SetLatency sets the value reported by Latency
func (n *Null) SetLatency(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.latency = d
}

// Inject delivers a device event as if the hardware raised it
func (n *Null) Inject(e Event) { n.emit(e) }

func (n *Null) Close() error {
	n.mu.Lock()
	stop, done := n.stop, n.done
	n.stop, n.done = nil, nil
	n.open = false
	n.started = false
	n.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func (n *Null) Latency() time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.latency
}

func (n *Null) Devices() ([]Device, error) {
	return []Device{{ID: "null", Name: "Null output", Default: true}}, nil
}
