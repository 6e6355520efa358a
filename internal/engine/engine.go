// ABOUTME: Playback engine turning playlist positions into continuous audio
// ABOUTME: Transport commands, device ownership and collaborator wiring
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harperreed/wavedeck/internal/crossfade"
	"github.com/harperreed/wavedeck/internal/dsp"
	"github.com/harperreed/wavedeck/internal/gain"
	"github.com/harperreed/wavedeck/internal/library"
	"github.com/harperreed/wavedeck/internal/metrics"
	"github.com/harperreed/wavedeck/internal/playlist"
	"github.com/harperreed/wavedeck/internal/preload"
	"github.com/harperreed/wavedeck/internal/signal"
	"github.com/harperreed/wavedeck/pkg/audio"
	"github.com/harperreed/wavedeck/pkg/audio/decode"
	"github.com/harperreed/wavedeck/pkg/audio/output"
)

const (
	positionInterval = 100 * time.Millisecond
	prefillTimeout   = 2 * time.Second
	preloadWait      = time.Second
)

// Library is the tag store the engine reads gains from and reports missing files to
type Library interface {
	Get(ctx context.Context, filename string) (library.MediaTags, bool, error)
	MarkMissing(ctx context.Context, filename string) error
	Subscribe(fn func(library.Change)) func()
}

// Options configures an Engine
type Options struct {
	Backend  output.Backend
	Registry *decode.Registry
	Playlist *playlist.Playlist

	// Library and Gain are optional
	Library Library
	Gain    *gain.Calculator

	Settings Settings
	// RingDuration is how much decoded audio each stream buffers
	RingDuration time.Duration
	Logger       zerolog.Logger
}

// Engine is the output engine. Transport methods are safe for concurrent
// use; the backend calls render on its own thread.
type Engine struct {
	opts     Options
	logger   zerolog.Logger
	backend  output.Backend
	registry *decode.Registry
	playlist *playlist.Playlist

	crossfade *crossfade.Calculator
	preload   *preload.Manager[decode.Decoder]

	mu          sync.Mutex
	settings    Settings
	status      State
	current     *trackStream   // the stream the supervisor last saw as current
	live        []*trackStream // every stream not yet closed
	backendOpen bool
	openFormat  audio.Format
	volume      float64
	closed      bool
	scanned     map[uuid.UUID]bool
	failedArm   map[uuid.UUID]bool
	cfTargets   map[uuid.UUID]bool
	unsubscribe []func()

	tagsMu   sync.Mutex
	tagGains map[string]gain.Estimate // by filename, from the library

	// shared with the audio callback
	state       atomic.Pointer[renderState]
	eq          atomic.Pointer[dsp.EQ]
	speed       atomic.Uint64 // float64 bits
	balance     atomic.Uint64 // float64 bits
	hardLimit   atomic.Bool
	outFrames   atomic.Int64
	underruns   atomic.Int64
	outChannels int
	outRate     int
	scratch     []float32
	scope       scope

	queue OutputQueue

	wake     *signal.Wake
	quit     *signal.Flag
	done     chan struct{}
	reported int64 // underruns already exported

	listenersMu sync.Mutex
	listeners   map[int]func(Event)
	nextID      int
	outboxMu    sync.Mutex
	outbox      []Event
}

// New creates an engine and starts its supervisor
func New(opts Options) (*Engine, error) {
	if opts.Backend == nil {
		return nil, errors.New("engine requires a backend")
	}
	if opts.Registry == nil {
		opts.Registry = decode.NewDefaultRegistry()
	}
	if opts.Playlist == nil {
		opts.Playlist = playlist.New()
	}
	if opts.RingDuration <= 0 {
		opts.RingDuration = defaultRingDuration
	}

	logger := opts.Logger.With().Str("component", "engine").Logger()
	e := &Engine{
		opts:      opts,
		logger:    logger,
		backend:   opts.Backend,
		registry:  opts.Registry,
		playlist:  opts.Playlist,
		volume:    opts.Backend.Volume(),
		tagGains:  make(map[string]gain.Estimate),
		scanned:   make(map[uuid.UUID]bool),
		failedArm: make(map[uuid.UUID]bool),
		cfTargets: make(map[uuid.UUID]bool),
		wake:      signal.NewWake(),
		quit:      signal.NewFlag(),
		done:      make(chan struct{}),
		listeners: make(map[int]func(Event)),
	}
	e.speed.Store(math.Float64bits(1))
	e.crossfade = crossfade.New(crossfade.Options{
		Registry: opts.Registry,
		Params:   opts.Settings.Detect,
		Logger:   opts.Logger,
	})
	e.preload = preload.New(func(item playlist.Item) (decode.Decoder, error) {
		return e.registry.OpenFirst(item.Paths()...)
	}, opts.Logger)
	e.applySettingsLocked(opts.Settings)

	notify := func() { e.wake.Notify() }
	e.crossfade.OnResult(func(crossfade.Result) { notify() })
	if opts.Gain != nil {
		opts.Gain.OnResult(func(gain.Result) { notify() })
	}
	e.unsubscribe = append(e.unsubscribe, e.playlist.Subscribe(func(playlist.Event) { notify() }))
	if opts.Library != nil {
		e.unsubscribe = append(e.unsubscribe, opts.Library.Subscribe(e.onTagsChanged))
	}

	go e.supervise()
	return e, nil
}

// Subscribe registers fn for engine events and returns an unsubscribe func
func (e *Engine) Subscribe(fn func(Event)) func() {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	return func() {
		e.listenersMu.Lock()
		defer e.listenersMu.Unlock()
		delete(e.listeners, id)
	}
}

// emit queues an event; it is delivered by flush once locks are released
func (e *Engine) emit(ev Event) {
	e.outboxMu.Lock()
	e.outbox = append(e.outbox, ev)
	e.outboxMu.Unlock()
}

func (e *Engine) flush() {
	e.outboxMu.Lock()
	events := e.outbox
	e.outbox = nil
	e.outboxMu.Unlock()
	if len(events) == 0 {
		return
	}

	e.listenersMu.Lock()
	fns := make([]func(Event), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.listenersMu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// State returns the transport state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) setStatusLocked(s State) {
	if e.status == s {
		return
	}
	e.status = s
	metrics.EngineState.Set(float64(s))
	e.logger.Debug().Stringer("state", s).Msg("State changed")
	e.emit(Event{Type: EventStateChanged, State: s})
}

// Play starts id at seek. A zero id plays the first item. A negative seek
// is relative to the end of the track. Unopenable items are skipped.
func (e *Engine) Play(id uuid.UUID, seek time.Duration) error {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	var item playlist.Item
	if id == uuid.Nil {
		first, err := e.playlist.First()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNoPlayableItem, err)
		}
		item = first
	} else {
		it, ok := e.playlist.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
		item = it
	}
	return e.startLocked(item, seek)
}

// startLocked opens item, skipping forward past items that fail to open
func (e *Engine) startLocked(item playlist.Item, seek time.Duration) error {
	policy := e.settings.Policy
	if policy.Repeat == playlist.RepeatTrack {
		policy.Repeat = playlist.RepeatOff
	}

	attempts := max(e.playlist.Len(), 1)
	var lastErr error
	for i := 0; i < attempts; i++ {
		dec, err := e.openLocked(item)
		if err == nil {
			err = e.beginLocked(item, dec, seek)
			if err == nil {
				return nil
			}
			if errors.Is(err, output.ErrDeviceUnavailable) {
				e.stopLocked()
				e.emit(Event{Type: EventError, Item: item, Err: err})
				return err
			}
		}
		lastErr = err
		e.missingLocked(item, err)

		next, ok := e.playlist.Advance(item.ID, policy)
		if !ok || next.ID == item.ID {
			break
		}
		item, seek = next, 0
	}

	e.stopLocked()
	return fmt.Errorf("%w: %w", ErrNoPlayableItem, lastErr)
}

// openLocked returns the preloaded decoder for item or opens a fresh one
func (e *Engine) openLocked(item playlist.Item) (decode.Decoder, error) {
	ctx, cancel := context.WithTimeout(context.Background(), preloadWait)
	defer cancel()
	if dec, ok := e.preload.Take(ctx, item); ok {
		return dec, nil
	}
	return e.registry.OpenFirst(item.Paths()...)
}

// missingLocked reports an item that could not be opened
func (e *Engine) missingLocked(item playlist.Item, err error) {
	e.logger.Warn().Err(err).Str("file", item.Filename).Msg("Cannot open item")
	if e.settings.RemoveMissing && e.opts.Library != nil {
		if merr := e.opts.Library.MarkMissing(context.Background(), item.Filename); merr != nil {
			e.logger.Warn().Err(merr).Str("file", item.Filename).Msg("Failed to mark missing")
		}
	}
	e.emit(Event{Type: EventItemMissing, Item: item, Err: err})
}

// beginLocked makes dec the only live stream and starts playback
func (e *Engine) beginLocked(item playlist.Item, dec decode.Decoder, seek time.Duration) error {
	requested := seek
	if seek < 0 {
		seek = max(dec.Duration()+seek, 0)
	}
	if seek > 0 {
		if err := dec.Seek(seek); err != nil {
			dec.Close()
			return fmt.Errorf("seek %s: %w", item.Filename, err)
		}
	}

	// an explicit start replaces everything, so the device can follow the new layout
	if e.backendOpen && !dec.Format().SameLayout(e.openFormat) {
		e.state.Store(nil)
		e.backend.Close()
		e.backendOpen = false
	}
	leadIn := int64(0)
	if !e.backendOpen {
		if err := e.openBackendLocked(dec.Format()); err != nil {
			dec.Close()
			return err
		}
		leadIn = e.backendFormat().FramesFor(e.backend.Latency())
	}

	s := e.newStreamLocked(item, dec, seek)
	s.rtLeadIn = leadIn
	s.requested = requested
	s.start()
	if !s.waitReady(prefillTimeout) {
		e.logger.Warn().Str("file", item.Filename).Msg("Decoder slow to start")
	}

	e.state.Store(&renderState{cur: s, fadeAt: -1})
	e.current = s
	e.retireLocked()
	e.queue.Reset()
	e.queue.Push(QueueEntry{Item: item, Start: e.outFrames.Load() + leadIn, Seek: seek, InitialSeek: requested})
	e.setStatusLocked(Playing)
	e.startedLocked(s)
	e.wake.Notify()
	return nil
}

func (e *Engine) newStreamLocked(item playlist.Item, dec decode.Decoder, seek time.Duration) *trackStream {
	s := newTrackStream(item, dec, seek, e.backendFormat(), &e.speed, e.opts.RingDuration, e.logger)
	s.setGain(e.gainForLocked(item))
	e.live = append(e.live, s)
	return s
}

// startedLocked runs the bookkeeping for a stream that became current
func (e *Engine) startedLocked(s *trackStream) {
	metrics.TracksStarted.Inc()
	clear(e.failedArm)
	clear(e.cfTargets)
	e.logger.Info().Str("file", s.item.Filename).Dur("seek", s.seek).Msg("Playing")
	e.emit(Event{
		Type:     EventItemChanged,
		State:    e.status,
		Item:     s.item,
		Position: s.seek,
		Duration: s.duration,
		GainDB:   s.gainValue(),
	})

	if e.settings.Crossfade {
		e.crossfade.SetTarget(s.item, s.seek)
		e.cfTargets[s.item.ID] = true
	}
	if next, ok := e.playlist.PeekNext(s.item.ID, e.settings.Policy); ok {
		e.preload.Request(next)
	}
	e.autoScanLocked(s.item)
}

func (e *Engine) backendFormat() audio.Format {
	return audio.Format{Codec: "pcm", SampleRate: e.outRate, Channels: e.outChannels, BitDepth: 32}
}

// openBackendLocked opens and starts the device at format's layout
func (e *Engine) openBackendLocked(format audio.Format) error {
	if err := e.backend.Open(format, e.render); err != nil {
		return fmt.Errorf("%w: %w", output.ErrDeviceUnavailable, err)
	}
	got := e.backend.Format()
	if !got.Valid() {
		got = format
	}
	e.outRate, e.outChannels = got.SampleRate, got.Channels
	e.scratch = make([]float32, int(got.FramesFor(time.Second))*got.Channels)
	e.rebuildEQLocked()
	e.backend.SetVolume(e.volume)
	if err := e.backend.Start(); err != nil {
		e.backend.Close()
		return fmt.Errorf("%w: %w", output.ErrDeviceUnavailable, err)
	}
	e.openFormat = format
	e.backendOpen = true
	e.logger.Info().
		Str("backend", e.backend.Name()).
		Int("rate", got.SampleRate).
		Int("channels", got.Channels).
		Msg("Audio output initialized")
	return nil
}

// retireLocked closes streams the render state no longer references
func (e *Engine) retireLocked() {
	st := e.state.Load()
	keep := e.live[:0]
	for _, s := range e.live {
		if st != nil && (s == st.cur || s == st.out || s == st.next) {
			keep = append(keep, s)
			continue
		}
		s.close()
	}
	clear(e.live[len(keep):])
	e.live = keep
}

// Pause silences output but keeps the device and decoders. Pausing when not
// playing does nothing.
func (e *Engine) Pause() error {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != Playing {
		return nil
	}
	e.setPausedLocked(true)
	e.setStatusLocked(Paused)
	return nil
}

// Resume continues from Paused
func (e *Engine) Resume() error {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != Paused {
		return nil
	}
	e.setPausedLocked(false)
	e.setStatusLocked(Playing)
	return nil
}

func (e *Engine) setPausedLocked(paused bool) {
	e.update(func(st *renderState) *renderState {
		ns := st.clone()
		ns.paused = paused
		return ns
	})
}

// update swaps the render state through fn, retrying if the audio callback
// changed it concurrently
func (e *Engine) update(fn func(*renderState) *renderState) bool {
	for i := 0; i < 8; i++ {
		st := e.state.Load()
		if st == nil {
			return false
		}
		if e.state.CompareAndSwap(st, fn(st)) {
			return true
		}
	}
	return false
}

// Stop tears down the device stream and every decoder. Stopping when
// already stopped does nothing.
func (e *Engine) Stop() error {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == Stopped {
		return nil
	}
	e.stopLocked()
	return nil
}

func (e *Engine) stopLocked() {
	e.state.Store(nil)
	if e.backendOpen {
		if err := e.backend.Close(); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to close output")
		}
		e.backendOpen = false
	}
	e.retireLocked()
	e.current = nil
	e.crossfade.Cancel()
	e.preload.Discard()
	e.queue.Reset()
	e.scope.reset()
	e.setStatusLocked(Stopped)
}

// Next plays the item after the current one
func (e *Engine) Next() error {
	return e.step(func(cur uuid.UUID, policy playlist.Policy) (playlist.Item, bool) {
		if policy.Repeat == playlist.RepeatTrack {
			policy.Repeat = playlist.RepeatOff
		}
		return e.playlist.Advance(cur, policy)
	})
}

// Previous plays the item before the current one
func (e *Engine) Previous() error {
	return e.step(func(cur uuid.UUID, policy playlist.Policy) (playlist.Item, bool) {
		return e.playlist.Previous(cur, policy.Repeat == playlist.RepeatPlaylist)
	})
}

func (e *Engine) step(resolve func(uuid.UUID, playlist.Policy) (playlist.Item, bool)) error {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	var cur uuid.UUID
	if e.current != nil {
		cur = e.current.item.ID
	}
	item, ok := resolve(cur, e.settings.Policy)
	if !ok {
		return ErrNoPlayableItem
	}
	return e.startLocked(item, 0)
}

// Seek moves the current item to pos, reusing its decoder
func (e *Engine) Seek(pos time.Duration) error {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seekLocked(pos)
}

func (e *Engine) seekLocked(pos time.Duration) error {
	if e.current == nil {
		return ErrNotPlaying
	}

	// the callback may have promoted the armed stream since the last reconcile
	if st := e.state.Swap(nil); st != nil && st.cur != e.current {
		e.transitionLocked(st)
	}

	old := e.current
	item := old.item
	requested := pos
	if pos < 0 {
		pos = max(old.duration+pos, 0)
	}
	if old.duration > 0 && pos > old.duration {
		pos = old.duration
	}

	dec := old.detach()
	if err := dec.Seek(pos); err != nil {
		dec.Close()
		e.logger.Warn().Err(err).Str("file", item.Filename).Msg("Seek failed, reopening")
		return e.startLocked(item, requested)
	}

	paused := e.status == Paused
	s := e.newStreamLocked(item, dec, pos)
	s.requested = requested
	s.start()
	s.waitReady(prefillTimeout)

	e.state.Store(&renderState{cur: s, fadeAt: -1, paused: paused})
	e.current = s
	e.retireLocked()
	e.queue.Reset()
	e.queue.Push(QueueEntry{Item: item, Start: e.outFrames.Load(), Seek: pos, InitialSeek: requested})
	clear(e.failedArm)

	if e.settings.Crossfade {
		e.crossfade.SetTarget(item, pos)
		e.cfTargets[item.ID] = true
	}
	e.emit(Event{Type: EventPosition, State: e.status, Item: item, Position: pos, Duration: s.duration})
	e.wake.Notify()
	return nil
}

// SetVolume sets output volume in [0,1]
func (e *Engine) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = math.Max(0, math.Min(1, v))
	e.backend.SetVolume(e.volume)
}

// GetVolume returns output volume
func (e *Engine) GetVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// SetPitch changes playback speed, clamped to 1±PitchRange. Returns the
// applied ratio.
func (e *Engine) SetPitch(ratio float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.settings.PitchRange
	ratio = math.Max(1-r, math.Min(1+r, ratio))
	e.speed.Store(math.Float64bits(ratio))
	return ratio
}

// Pitch returns the playback speed
func (e *Engine) Pitch() float64 {
	return math.Float64frombits(e.speed.Load())
}

// SetBalance pans stereo output; -1 is full left, 1 full right
func (e *Engine) SetBalance(b float64) {
	e.balance.Store(math.Float64bits(math.Max(-1, math.Min(1, b))))
}

// Balance returns the stereo balance
func (e *Engine) Balance() float64 {
	return math.Float64frombits(e.balance.Load())
}

// GetCurrentPlaying returns the item being heard
func (e *Engine) GetCurrentPlaying() (OutputItem, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == Stopped {
		return OutputItem{}, false
	}

	heard := e.outFrames.Load()
	if e.backendOpen {
		heard -= e.backendFormat().FramesFor(e.backend.Latency())
	}
	entry, ok := e.queue.NowPlaying(heard)
	if !ok {
		return OutputItem{}, false
	}

	it := OutputItem{Item: entry.Item, InitialSeek: entry.InitialSeek, Position: entry.Seek}
	if st := e.state.Load(); st != nil {
		for _, s := range []*trackStream{st.cur, st.out} {
			if s != nil && s.item.ID == entry.Item.ID {
				it.Position = s.Position()
				it.Duration = s.duration
				it.GainDB = s.gainValue()
				break
			}
		}
	}
	return it, true
}

// AppliedGain returns the gain in dB applied to the current stream
func (e *Engine) AppliedGain() float64 {
	if st := e.state.Load(); st != nil {
		return st.cur.gainValue()
	}
	return 0
}

// Levels returns per-channel peak levels of the last rendered block
func (e *Engine) Levels() []float32 { return e.scope.Levels() }

// Samples returns the last n rendered samples, mixed to mono
func (e *Engine) Samples(n int) []float32 { return e.scope.Samples(n) }

// Spectrum returns a magnitude spectrum of recent output
func (e *Engine) Spectrum(bins int) []float64 { return e.scope.Spectrum(bins) }

// Queue exposes the output queue
func (e *Engine) Queue() *OutputQueue { return &e.queue }

// Underruns returns how many render blocks ran short of decoded audio
func (e *Engine) Underruns() int64 { return e.underruns.Load() }

// OutputFormat returns the format the device was opened with
func (e *Engine) OutputFormat() (audio.Format, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.backendOpen {
		return audio.Format{}, false
	}
	return e.backendFormat(), true
}

// Settings returns the active settings
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// ApplySettings changes runtime settings. EQ coefficients are rebuilt here,
// off the audio thread.
func (e *Engine) ApplySettings(s Settings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applySettingsLocked(s)
	e.wake.Notify()
}

func (e *Engine) applySettingsLocked(s Settings) {
	if s.Normalization == "" {
		s.Normalization = NormalizeOff
	}
	if s.Policy.Repeat == "" {
		s.Policy.Repeat = playlist.RepeatOff
	}
	if s.Detect != e.settings.Detect {
		e.crossfade.SetParams(s.Detect)
		clear(e.cfTargets)
	}
	e.settings = s
	e.hardLimit.Store(s.HardLimit)
	switch {
	case !s.Crossfade:
		e.crossfade.Cancel()
		clear(e.cfTargets)
	case e.current != nil && !e.cfTargets[e.current.item.ID]:
		e.crossfade.SetTarget(e.current.item, e.current.seek)
		e.cfTargets[e.current.item.ID] = true
	}
	e.rebuildEQLocked()

	r := s.PitchRange
	speed := math.Float64frombits(e.speed.Load())
	if clamped := math.Max(1-r, math.Min(1+r, speed)); clamped != speed {
		e.speed.Store(math.Float64bits(clamped))
	}
}

func (e *Engine) rebuildEQLocked() {
	if !e.settings.EQ || e.outRate == 0 {
		e.eq.Store(nil)
		return
	}
	eq := dsp.NewEQ(e.settings.EQBands, e.outRate, e.outChannels)
	if eq.Empty() {
		e.eq.Store(nil)
		return
	}
	e.eq.Store(eq)
}

// Close stops playback and shuts down background work
func (e *Engine) Close() error {
	e.Stop()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	unsub := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	for _, fn := range unsub {
		fn()
	}
	e.quit.Set()
	<-e.done
	e.crossfade.Close()
	e.preload.Close()
	return nil
}
