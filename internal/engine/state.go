// ABOUTME: Engine playback states, events and settings
// ABOUTME: Types shared by the transport API, the render path and listeners
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/wavedeck/internal/crossfade"
	"github.com/harperreed/wavedeck/internal/dsp"
	"github.com/harperreed/wavedeck/internal/playlist"
)

var (
	// ErrNoPlayableItem is returned when no item in the playlist could be opened
	ErrNoPlayableItem = errors.New("no playable item")
	// ErrItemNotFound is returned when an ID is not in the playlist
	ErrItemNotFound = errors.New("item not in playlist")
	// ErrNotPlaying is returned by operations that need a current item
	ErrNotPlaying = errors.New("nothing is playing")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("engine closed")
)

// State is the engine's transport state
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Normalization selects which stored gain is applied
type Normalization string

const (
	NormalizeOff   Normalization = "off"
	NormalizeTrack Normalization = "track"
	NormalizeAlbum Normalization = "album"
)

// Settings are the engine values that can change at runtime
type Settings struct {
	Crossfade bool
	// CrossfadeMax caps the overlap; zero means no cap
	CrossfadeMax time.Duration
	// CrossfadeFallback is used when a track has no quiet tail; zero plays gapless
	CrossfadeFallback time.Duration
	Detect            crossfade.Params

	Policy playlist.Policy

	// PitchRange bounds SetPitch to 1±PitchRange
	PitchRange float64

	Normalization Normalization
	PreampDB      float64
	// HardLimit clamps at full scale instead of soft clipping
	HardLimit bool

	EQ      bool
	EQBands []dsp.Band

	// RemoveMissing marks unopenable files as missing in the library
	RemoveMissing bool
}

// DefaultSettings returns the settings used when none are given
func DefaultSettings() Settings {
	return Settings{
		Crossfade:     true,
		CrossfadeMax:  10 * time.Second,
		Detect:        crossfade.DefaultParams(),
		Policy:        playlist.Policy{Repeat: playlist.RepeatOff},
		PitchRange:    0.1,
		Normalization: NormalizeTrack,
	}
}

// EventType identifies an engine notification
type EventType int

const (
	// EventStateChanged fires on every transport state change
	EventStateChanged EventType = iota
	// EventItemChanged fires when a new item becomes audible
	EventItemChanged
	// EventPosition fires periodically while playing
	EventPosition
	// EventGainApplied fires when the current item's gain changes
	EventGainApplied
	// EventCrossfadeStarted fires when two items begin overlapping
	EventCrossfadeStarted
	// EventItemMissing fires when an item could not be opened
	EventItemMissing
	// EventError reports a failure the user should see
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state"
	case EventItemChanged:
		return "item"
	case EventPosition:
		return "position"
	case EventGainApplied:
		return "gain"
	case EventCrossfadeStarted:
		return "crossfade"
	case EventItemMissing:
		return "missing"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is delivered to subscribers. Listeners are never called from the
// audio callback and never while the engine lock is held.
type Event struct {
	Type     EventType
	State    State
	Item     playlist.Item
	Position time.Duration
	Duration time.Duration
	GainDB   float64
	Err      error
}

// OutputItem describes the item being heard
type OutputItem struct {
	Item        playlist.Item
	Position    time.Duration
	InitialSeek time.Duration
	Duration    time.Duration
	GainDB      float64
	StreamTitle string
}
