// ABOUTME: Output queue mapping output stream offsets to playlist items
// ABOUTME: Answers which item is audible at a given output frame, even mid-crossfade
package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/harperreed/wavedeck/internal/playlist"
)

// QueueEntry is an item committed to the output stream
type QueueEntry struct {
	Item playlist.Item

	// Start is the output frame where the item's first sample is mixed
	Start int64

	// Seek is where decoding began. InitialSeek is the seek as requested,
	// negative when it counted from the end of the track.
	Seek        time.Duration
	InitialSeek time.Duration
}

// OutputQueue keeps entries ordered by Start with no two sharing a start
type OutputQueue struct {
	mu      sync.Mutex
	entries []QueueEntry
}

// Push appends e. Entries starting at or after e.Start are replaced.
func (q *OutputQueue) Push(e QueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := sort.Search(len(q.entries), func(i int) bool { return q.entries[i].Start >= e.Start })
	q.entries = append(q.entries[:i], e)
}

// NowPlaying returns the entry audible at frame. Before the first entry
// starts, the first entry is returned.
func (q *OutputQueue) NowPlaying(frame int64) (QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return QueueEntry{}, false
	}
	i := sort.Search(len(q.entries), func(i int) bool { return q.entries[i].Start > frame })
	if i == 0 {
		return q.entries[0], true
	}
	return q.entries[i-1], true
}

// Trim drops entries that were fully replaced before frame
func (q *OutputQueue) Trim(before int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := sort.Search(len(q.entries), func(i int) bool { return q.entries[i].Start > before })
	if i > 1 {
		q.entries = append(q.entries[:0], q.entries[i-1:]...)
	}
}

// Entries returns a copy of the queue
func (q *OutputQueue) Entries() []QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]QueueEntry(nil), q.entries...)
}

// Len returns the number of entries
func (q *OutputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Reset empties the queue
func (q *OutputQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
}
