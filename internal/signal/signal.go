// ABOUTME: Manual-reset and auto-reset event primitives
// ABOUTME: Flag stays set until cleared; Wake is consumed by the waiter
package signal

import "sync"

// Flag is a manual-reset event. Once Set it stays signaled until Clear,
// so any number of goroutines can poll IsSet or wait on Done.
type Flag struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{}
}

// NewFlag creates a cleared flag
func NewFlag() *Flag {
	return &Flag{ch: make(chan struct{})}
}

// Set signals the flag. Setting an already set flag does nothing.
func (f *Flag) Set() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		return
	}
	f.set = true
	close(f.ch)
}

// Clear resets the flag so Done returns a fresh channel
func (f *Flag) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.set {
		return
	}
	f.set = false
	f.ch = make(chan struct{})
}

// IsSet reports whether the flag is signaled
func (f *Flag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

// Done returns a channel closed when the flag is set
func (f *Flag) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ch
}

// Continue returns a predicate that is true while the flag is clear
func (f *Flag) Continue() func() bool {
	return func() bool { return !f.IsSet() }
}

// Wake is an auto-reset event. Notify wakes at most one waiter; repeated
// notifications before the wait collapse into one.
type Wake struct {
	ch chan struct{}
}

// NewWake creates an unsignaled wake event
func NewWake() *Wake {
	return &Wake{ch: make(chan struct{}, 1)}
}

// Notify signals the event
func (w *Wake) Notify() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// C returns the channel to receive on; receiving consumes the signal
func (w *Wake) C() <-chan struct{} {
	return w.ch
}
