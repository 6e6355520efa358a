// ABOUTME: Single-slot preloader for the next track's decoder
// ABOUTME: Opens the upcoming item in the background and hands it over only if it still matches
package preload

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harperreed/wavedeck/internal/metrics"
	"github.com/harperreed/wavedeck/internal/playlist"
)

// OpenFunc opens the resource for an item
type OpenFunc[T io.Closer] func(item playlist.Item) (T, error)

type entry[T io.Closer] struct {
	item      playlist.Item
	ready     chan struct{}
	value     T
	err       error
	discarded bool
}

// Manager holds at most one preloaded value. A new request replaces, and
// closes, any preload for a different item.
type Manager[T io.Closer] struct {
	open   OpenFunc[T]
	logger zerolog.Logger

	mu   sync.Mutex
	slot *entry[T]
	wg   sync.WaitGroup
}

// New creates a manager that opens items with open
func New[T io.Closer](open OpenFunc[T], logger zerolog.Logger) *Manager[T] {
	return &Manager[T]{
		open:   open,
		logger: logger.With().Str("component", "preload").Logger(),
	}
}

// Request starts preloading item unless it is already cached
func (m *Manager[T]) Request(item playlist.Item) {
	m.mu.Lock()
	if m.slot != nil && m.slot.item.ID == item.ID {
		m.mu.Unlock()
		return
	}
	old := m.slot
	e := &entry[T]{item: item, ready: make(chan struct{})}
	m.slot = e
	m.wg.Add(1)
	m.mu.Unlock()

	if old != nil {
		m.discard(old)
	}
	go m.load(e)
}

// Pending returns the item currently held, if any
func (m *Manager[T]) Pending() (playlist.Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slot == nil {
		return playlist.Item{}, false
	}
	return m.slot.item, true
}

// Take hands over the preloaded value if it was made for want. It waits for
// an in-progress open unless ctx ends first. A preload for any other item is
// closed and never returned.
func (m *Manager[T]) Take(ctx context.Context, want playlist.Item) (T, bool) {
	var zero T

	m.mu.Lock()
	e := m.slot
	m.slot = nil
	m.mu.Unlock()

	if e == nil {
		metrics.PreloadResults.WithLabelValues("miss").Inc()
		return zero, false
	}
	if e.item.ID != want.ID {
		m.logger.Debug().
			Str("preloaded", e.item.Filename).
			Str("wanted", want.Filename).
			Msg("Discarding stale preload")
		metrics.PreloadResults.WithLabelValues("stale").Inc()
		m.discard(e)
		return zero, false
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		metrics.PreloadResults.WithLabelValues("miss").Inc()
		m.discard(e)
		return zero, false
	}
	if e.err != nil {
		metrics.PreloadResults.WithLabelValues("miss").Inc()
		return zero, false
	}
	metrics.PreloadResults.WithLabelValues("hit").Inc()
	return e.value, true
}

// Discard drops whatever is preloaded
func (m *Manager[T]) Discard() {
	m.mu.Lock()
	e := m.slot
	m.slot = nil
	m.mu.Unlock()
	if e != nil {
		m.discard(e)
	}
}

// Close discards the slot and waits for background opens to finish
func (m *Manager[T]) Close() {
	m.Discard()
	m.wg.Wait()
}

func (m *Manager[T]) load(e *entry[T]) {
	defer m.wg.Done()
	value, err := m.open(e.item)
	if err != nil {
		m.logger.Debug().Err(err).Str("file", e.item.Filename).Msg("Preload failed")
	}

	m.mu.Lock()
	e.value, e.err = value, err
	close(e.ready)
	discarded := e.discarded
	m.mu.Unlock()

	if discarded && err == nil {
		value.Close()
	}
}

// discard marks e dropped and closes its value once loaded
func (m *Manager[T]) discard(e *entry[T]) {
	m.mu.Lock()
	if e.discarded {
		m.mu.Unlock()
		return
	}
	e.discarded = true
	loaded := false
	select {
	case <-e.ready:
		loaded = e.err == nil
	default:
	}
	m.mu.Unlock()

	if loaded {
		e.value.Close()
	}
}

// Matches reports whether a preload exists for id
func (m *Manager[T]) Matches(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slot != nil && m.slot.item.ID == id
}
