// ABOUTME: In-memory playlist with navigation policies
// ABOUTME: Sequential, random and repeat navigation plus selection tracking
package playlist

import (
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
)

// ErrEmptyPlaylist is returned when navigating an empty playlist
var ErrEmptyPlaylist = errors.New("playlist is empty")

// Item is one playlist entry
type Item struct {
	ID         uuid.UUID
	Filename   string
	Duplicates []string // alternative locations of the same media
	Title      string
	Artist     string
	Album      string
}

// Paths returns the filename followed by its duplicates
func (i Item) Paths() []string {
	return append([]string{i.Filename}, i.Duplicates...)
}

// Repeat selects what happens at the end of a track or the playlist
type Repeat string

const (
	RepeatOff      Repeat = "off"
	RepeatTrack    Repeat = "track"
	RepeatPlaylist Repeat = "playlist"
)

// Policy controls automatic navigation
type Policy struct {
	Repeat          Repeat
	Random          bool
	FollowSelection bool
}

// EventType identifies a playlist notification
type EventType int

const (
	// Changed means items were added, removed or reordered
	Changed EventType = iota
	// SelectionChanged means the track to follow changed
	SelectionChanged
)

// Event is a playlist notification
type Event struct {
	Type      EventType
	Selection uuid.UUID
}

// Playlist is an ordered list of items safe for concurrent use
type Playlist struct {
	mu        sync.RWMutex
	items     []Item
	selection uuid.UUID
	// randomNext caches the pending random pick per current item so that
	// PeekNext and Advance agree until Advance consumes it
	randomNext map[uuid.UUID]uuid.UUID
	rng        *rand.Rand

	listenersMu sync.Mutex
	listeners   map[int]func(Event)
	nextID      int
}

// New creates an empty playlist
func New() *Playlist {
	return &Playlist{
		randomNext: make(map[uuid.UUID]uuid.UUID),
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		listeners:  make(map[int]func(Event)),
	}
}

// NewSeeded creates a playlist with deterministic random picks
func NewSeeded(seed uint64) *Playlist {
	p := New()
	p.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return p
}

// Add appends items, assigning IDs where missing, and returns them
func (p *Playlist) Add(items ...Item) []Item {
	p.mu.Lock()
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
	}
	p.items = append(p.items, items...)
	p.randomNext = make(map[uuid.UUID]uuid.UUID)
	p.mu.Unlock()

	p.notify(Event{Type: Changed})
	return items
}

// Remove deletes an item by ID
func (p *Playlist) Remove(id uuid.UUID) bool {
	p.mu.Lock()
	idx := p.indexOf(id)
	if idx < 0 {
		p.mu.Unlock()
		return false
	}
	p.items = append(p.items[:idx], p.items[idx+1:]...)
	p.randomNext = make(map[uuid.UUID]uuid.UUID)
	p.mu.Unlock()

	p.notify(Event{Type: Changed})
	return true
}

// Clear removes every item
func (p *Playlist) Clear() {
	p.mu.Lock()
	p.items = nil
	p.selection = uuid.Nil
	p.randomNext = make(map[uuid.UUID]uuid.UUID)
	p.mu.Unlock()

	p.notify(Event{Type: Changed})
}

// Len returns the number of items
func (p *Playlist) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// Items returns a copy of the items
func (p *Playlist) Items() []Item {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Item, len(p.items))
	copy(out, p.items)
	return out
}

// Get resolves an item by ID
func (p *Playlist) Get(id uuid.UUID) (Item, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if idx := p.indexOf(id); idx >= 0 {
		return p.items[idx], true
	}
	return Item{}, false
}

// First returns the first item
func (p *Playlist) First() (Item, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.items) == 0 {
		return Item{}, ErrEmptyPlaylist
	}
	return p.items[0], nil
}

func (p *Playlist) indexOf(id uuid.UUID) int {
	for i, it := range p.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// Next returns the item after id, wrapping to the start when wrap is set
func (p *Playlist) Next(id uuid.UUID, wrap bool) (Item, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.step(id, 1, wrap)
}

// Previous returns the item before id, wrapping to the end when wrap is set
func (p *Playlist) Previous(id uuid.UUID, wrap bool) (Item, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.step(id, -1, wrap)
}

func (p *Playlist) step(id uuid.UUID, dir int, wrap bool) (Item, bool) {
	n := len(p.items)
	if n == 0 {
		return Item{}, false
	}
	idx := p.indexOf(id)
	if idx < 0 {
		return p.items[0], true
	}
	next := idx + dir
	if next < 0 || next >= n {
		if !wrap {
			return Item{}, false
		}
		next = (next + n) % n
	}
	return p.items[next], true
}

// Random returns a random item, avoiding exclude when there is a choice
func (p *Playlist) Random(exclude uuid.UUID) (Item, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.random(exclude)
}

func (p *Playlist) random(exclude uuid.UUID) (Item, bool) {
	n := len(p.items)
	if n == 0 {
		return Item{}, false
	}
	if n == 1 {
		return p.items[0], true
	}
	for {
		it := p.items[p.rng.IntN(n)]
		if it.ID != exclude {
			return it, true
		}
	}
}

// PeekNext resolves what would play after current under policy without
// changing navigation state. Repeated calls return the same answer until
// Advance is called or the playlist changes.
func (p *Playlist) PeekNext(current uuid.UUID, policy Policy) (Item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolveNext(current, policy)
}

// Advance resolves the next item like PeekNext and consumes the pending
// random pick for current.
func (p *Playlist) Advance(current uuid.UUID, policy Policy) (Item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	it, ok := p.resolveNext(current, policy)
	delete(p.randomNext, current)
	if policy.FollowSelection && p.selection != uuid.Nil && p.selection != current {
		p.selection = uuid.Nil
	}
	return it, ok
}

func (p *Playlist) resolveNext(current uuid.UUID, policy Policy) (Item, bool) {
	if len(p.items) == 0 {
		return Item{}, false
	}
	if policy.FollowSelection && p.selection != uuid.Nil && p.selection != current {
		if idx := p.indexOf(p.selection); idx >= 0 {
			return p.items[idx], true
		}
	}
	if policy.Repeat == RepeatTrack {
		if idx := p.indexOf(current); idx >= 0 {
			return p.items[idx], true
		}
	}
	if policy.Random {
		if id, ok := p.randomNext[current]; ok {
			if idx := p.indexOf(id); idx >= 0 {
				return p.items[idx], true
			}
		}
		it, ok := p.random(current)
		if ok {
			p.randomNext[current] = it.ID
		}
		return it, ok
	}
	return p.step(current, 1, policy.Repeat == RepeatPlaylist)
}

// Select marks the item the user picked; with FollowSelection it plays next
func (p *Playlist) Select(id uuid.UUID) {
	p.mu.Lock()
	changed := p.selection != id
	p.selection = id
	p.mu.Unlock()

	if changed {
		p.notify(Event{Type: SelectionChanged, Selection: id})
	}
}

// Selection returns the selected item ID
func (p *Playlist) Selection() uuid.UUID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.selection
}

// Subscribe registers fn for playlist events and returns an unsubscribe func
func (p *Playlist) Subscribe(fn func(Event)) func() {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.listenersMu.Lock()
		defer p.listenersMu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *Playlist) notify(e Event) {
	p.listenersMu.Lock()
	fns := make([]func(Event), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.listenersMu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}
