// ABOUTME: Normalisation gain lookup for playing items
// ABOUTME: Reads calculator estimates or stored tags and schedules scans for unknown items
package engine

import (
	"context"

	"github.com/harperreed/wavedeck/internal/gain"
	"github.com/harperreed/wavedeck/internal/library"
	"github.com/harperreed/wavedeck/internal/playlist"
)

// gainForLocked returns the dB gain to apply to item. Unknown gain is unity.
func (e *Engine) gainForLocked(item playlist.Item) float64 {
	if e.settings.Normalization == NormalizeOff {
		return 0
	}
	est, ok := e.estimateLocked(item)
	if !ok {
		return 0
	}
	g := est.TrackGain
	if e.settings.Normalization == NormalizeAlbum && est.AlbumGain != nil {
		g = est.AlbumGain
	}
	if g == nil {
		return 0
	}
	return *g + e.settings.PreampDB
}

func (e *Engine) estimateLocked(item playlist.Item) (gain.Estimate, bool) {
	if e.opts.Gain != nil {
		if est, ok := e.opts.Gain.Estimate(item.ID); ok {
			return est, true
		}
	}

	e.tagsMu.Lock()
	est, ok := e.tagGains[item.Filename]
	e.tagsMu.Unlock()
	if ok || e.opts.Library == nil {
		return est, ok && est.TrackGain != nil
	}

	tags, found, err := e.opts.Library.Get(context.Background(), item.Filename)
	if err != nil {
		e.logger.Debug().Err(err).Str("file", item.Filename).Msg("Tag lookup failed")
		return gain.Estimate{}, false
	}
	if !found {
		tags = library.MediaTags{Filename: item.Filename}
	}
	est = estimateFromTags(tags)
	e.tagsMu.Lock()
	e.tagGains[item.Filename] = est
	e.tagsMu.Unlock()
	return est, est.TrackGain != nil
}

func estimateFromTags(t library.MediaTags) gain.Estimate {
	return gain.Estimate{
		TrackGain: t.TrackGain,
		TrackPeak: t.TrackPeak,
		AlbumGain: t.AlbumGain,
		AlbumPeak: t.AlbumPeak,
	}
}

// onTagsChanged runs on the library's notifying goroutine
func (e *Engine) onTagsChanged(c library.Change) {
	e.tagsMu.Lock()
	e.tagGains[c.Updated.Filename] = estimateFromTags(c.Updated)
	e.tagsMu.Unlock()
	e.wake.Notify()
}

// autoScanLocked queues item's album on the gain calculator when no gain is known
func (e *Engine) autoScanLocked(item playlist.Item) {
	if e.opts.Gain == nil || e.settings.Normalization == NormalizeOff || e.scanned[item.ID] {
		return
	}
	if _, ok := e.estimateLocked(item); ok {
		return
	}

	batch := []playlist.Item{item}
	e.scanned[item.ID] = true
	if item.Album != "" {
		for _, other := range e.playlist.Items() {
			if other.Album == item.Album && !e.scanned[other.ID] {
				if _, ok := e.estimateLocked(other); !ok {
					batch = append(batch, other)
				}
				e.scanned[other.ID] = true
			}
		}
	}
	e.logger.Debug().Str("file", item.Filename).Int("items", len(batch)).Msg("Scheduling gain scan")
	e.opts.Gain.Enqueue(batch...)
}

// refreshGainsLocked pushes newly known gains into live streams
func (e *Engine) refreshGainsLocked(st *renderState) {
	for _, s := range []*trackStream{st.cur, st.next} {
		if s == nil {
			continue
		}
		g := e.gainForLocked(s.item)
		if g == s.gainValue() {
			continue
		}
		s.setGain(g)
		if s == st.cur {
			e.logger.Info().Str("file", s.item.Filename).Float64("gain_db", g).Msg("Gain applied")
			e.emit(Event{Type: EventGainApplied, State: e.status, Item: s.item, GainDB: g})
		}
	}
}
