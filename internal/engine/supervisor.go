// ABOUTME: Engine supervisor goroutine
// ABOUTME: Handles track transitions, arming the next item, end of playlist and device loss
package engine

import (
	"time"

	"github.com/harperreed/wavedeck/internal/metrics"
	"github.com/harperreed/wavedeck/pkg/audio/output"
)

func (e *Engine) supervise() {
	defer close(e.done)
	ticker := time.NewTicker(positionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.quit.Done():
			return
		case <-e.wake.C():
			e.reconcile(false)
		case <-ticker.C:
			e.reconcile(true)
		case ev := <-e.backend.Events():
			e.recoverDevice(ev)
		}
	}
}

// reconcile brings engine bookkeeping in line with what the audio callback did
func (e *Engine) reconcile(tick bool) {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if d := e.underruns.Load() - e.reported; d > 0 {
		metrics.Underruns.Add(float64(d))
		e.reported += d
	}
	if e.closed || e.status == Stopped {
		return
	}
	st := e.state.Load()
	if st == nil {
		return
	}

	if st.cur != e.current {
		e.transitionLocked(st)
	}
	e.retireLocked()
	e.armLocked()

	st = e.state.Load()
	if st == nil {
		return
	}
	e.refreshGainsLocked(st)
	e.warmCrossfadeLocked(st)

	if st.next == nil && st.cur.ended.Load() {
		e.endLocked(st.cur)
		return
	}

	if tick && e.status == Playing {
		e.emit(Event{
			Type:     EventPosition,
			State:    e.status,
			Item:     st.cur.item,
			Position: st.cur.Position(),
			Duration: st.cur.duration,
			GainDB:   st.cur.gainValue(),
		})
		e.queue.Trim(e.outFrames.Load() - e.backendFormat().FramesFor(e.backend.Latency()))
	}
}

// transitionLocked records that the audio callback promoted the armed stream
func (e *Engine) transitionLocked(st *renderState) {
	prev := e.current
	e.current = st.cur
	if prev != nil {
		e.playlist.Advance(prev.item.ID, e.settings.Policy)
	}
	e.queue.Push(QueueEntry{Item: st.cur.item, Start: st.cur.startOut.Load(), Seek: st.cur.seek, InitialSeek: st.cur.requested})
	if st.out != nil {
		metrics.Crossfades.Inc()
		e.emit(Event{Type: EventCrossfadeStarted, State: e.status, Item: st.cur.item})
	}
	e.startedLocked(st.cur)
}

// armLocked opens the item that will follow the current one and hands it to
// the audio callback, replacing an armed stream that no longer matches
func (e *Engine) armLocked() {
	st := e.state.Load()
	if st == nil {
		return
	}
	cur := st.cur
	peek, ok := e.playlist.PeekNext(cur.item.ID, e.settings.Policy)

	if st.next != nil && (!ok || st.next.item.ID != peek.ID) {
		stale := st.next
		e.logger.Debug().Str("file", stale.item.Filename).Msg("Next item changed, disarming")
		e.update(func(cs *renderState) *renderState {
			if cs.next != stale {
				return cs
			}
			ns := cs.clone()
			ns.next = nil
			return ns
		})
		e.retireLocked()
		st = e.state.Load()
		if st == nil || st.cur != cur {
			return
		}
	}

	fadeAt, fadeLen := e.fadeForLocked(cur)

	if st.next == nil {
		if !ok || e.failedArm[peek.ID] {
			return
		}
		dec, err := e.openLocked(peek)
		if err != nil {
			e.failedArm[peek.ID] = true
			e.missingLocked(peek, err)
			return
		}
		next := e.newStreamLocked(peek, dec, 0)
		next.start()
		e.update(func(cs *renderState) *renderState {
			if cs.cur != cur || cs.next != nil {
				return cs
			}
			ns := cs.clone()
			ns.next = next
			ns.fadeAt, ns.fadeLen = fadeAt, fadeLen
			return ns
		})
		e.retireLocked()
		if next, ok := e.playlist.PeekNext(peek.ID, e.settings.Policy); ok {
			e.preload.Request(next)
		}
		return
	}

	if st.fadeAt != fadeAt || st.fadeLen != fadeLen {
		e.update(func(cs *renderState) *renderState {
			if cs.cur != cur || cs.next != st.next {
				return cs
			}
			ns := cs.clone()
			ns.fadeAt, ns.fadeLen = fadeAt, fadeLen
			return ns
		})
	}
}

// fadeForLocked decides where cur hands over to the next item. A negative
// position means a gapless cut at end of stream.
func (e *Engine) fadeForLocked(cur *trackStream) (time.Duration, int64) {
	if !e.settings.Crossfade {
		return -1, 0
	}
	res, ok := e.crossfade.Result(cur.item.ID)
	if !ok || res.Seek != cur.seek {
		return -1, 0
	}
	dur := cur.duration
	if dur <= 0 {
		dur = res.Duration
	}

	var at time.Duration
	switch fallback := e.settings.CrossfadeFallback; {
	case res.Enabled:
		at = res.Position
	case fallback > 0 && dur > fallback:
		at = dur - fallback
	default:
		return -1, 0
	}
	if at < cur.seek {
		return -1, 0
	}

	length := dur - at
	if m := e.settings.CrossfadeMax; m > 0 && length > m {
		length = m
	}
	frames := int64(length.Seconds() * float64(e.outRate) / e.Pitch())
	if frames <= 0 {
		return -1, 0
	}
	return at, frames
}

// warmCrossfadeLocked analyses the armed item once the current one is done
func (e *Engine) warmCrossfadeLocked(st *renderState) {
	if st.next == nil || !e.settings.Crossfade || e.cfTargets[st.next.item.ID] || e.crossfade.Busy() {
		return
	}
	e.cfTargets[st.next.item.ID] = true
	e.crossfade.SetTarget(st.next.item, 0)
}

// endLocked handles the current item running out with nothing armed
func (e *Engine) endLocked(cur *trackStream) {
	next, ok := e.playlist.Advance(cur.item.ID, e.settings.Policy)
	if !ok {
		e.logger.Info().Msg("End of playlist")
		e.stopLocked()
		return
	}
	if err := e.startLocked(next, 0); err != nil {
		e.logger.Warn().Err(err).Msg("Cannot continue playback")
	}
}

// recoverDevice tries to reopen the device once before giving up
func (e *Engine) recoverDevice(ev output.Event) {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.backendOpen {
		return
	}

	e.logger.Warn().Err(ev.Err).Stringer("event", ev.Type).Msg("Audio device problem, reinitializing")
	rate, channels := e.outRate, e.outChannels
	e.backend.Close()
	e.backendOpen = false

	if err := e.openBackendLocked(e.openFormat); err != nil {
		metrics.DeviceRecoveries.WithLabelValues("failed").Inc()
		e.logger.Error().Err(err).Msg("Audio device recovery failed")
		e.stopLocked()
		e.emit(Event{Type: EventError, Err: err})
		return
	}
	metrics.DeviceRecoveries.WithLabelValues("ok").Inc()

	if e.outRate == rate && e.outChannels == channels || e.current == nil {
		return
	}
	// the device came back with another layout; restart the item converted to it
	item, pos, paused := e.current.item, e.current.Position(), e.status == Paused
	if err := e.startLocked(item, pos); err != nil {
		e.emit(Event{Type: EventError, Item: item, Err: err})
		return
	}
	if paused {
		e.setPausedLocked(true)
		e.setStatusLocked(Paused)
	}
}
