// ABOUTME: Background ReplayGain calculator
// ABOUTME: Measures track and album loudness on a worker pool and persists the results
package gain

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/harperreed/wavedeck/internal/library"
	"github.com/harperreed/wavedeck/internal/loudness"
	"github.com/harperreed/wavedeck/internal/metrics"
	"github.com/harperreed/wavedeck/internal/playlist"
	"github.com/harperreed/wavedeck/internal/signal"
	"github.com/harperreed/wavedeck/pkg/audio"
	"github.com/harperreed/wavedeck/pkg/audio/decode"
)

// DefaultReference is the ReplayGain 2.0 target loudness in LUFS
const DefaultReference = -18.0

const defaultChunkFrames = 4096

// Library is where gain results are persisted
type Library interface {
	Get(ctx context.Context, filename string) (library.MediaTags, bool, error)
	UpdateMediaTags(ctx context.Context, previous, updated library.MediaTags) error
}

// Result holds the gains computed for one file
type Result struct {
	ItemID    uuid.UUID
	Filename  string
	Loudness  float64 // integrated LUFS
	TrackGain float64 // dB
	TrackPeak float64 // linear
	AlbumGain float64 // dB, valid when HasAlbum
	AlbumPeak float64
	HasAlbum  bool
}

// Estimate is the gain known for an item
type Estimate struct {
	TrackGain *float64
	AlbumGain *float64
	TrackPeak *float64
	AlbumPeak *float64
}

// Options configures a Calculator
type Options struct {
	Registry  *decode.Registry
	Library   Library
	Reference float64
	// Workers caps the analysis pool; 0 uses runtime.NumCPU
	Workers     int
	ChunkFrames int
	Logger      zerolog.Logger
}

// Calculator computes gains for queued items on a background worker
type Calculator struct {
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	pending []playlist.Item
	groups  []Group
	gen     uint64 // bumped by Cancel
	busy    bool   // a group is being grouped or measured

	wake   *signal.Wake
	cancel *signal.Flag // cancels the in-flight group
	closed *signal.Flag
	done   chan struct{}

	estMu     sync.RWMutex
	estimates map[uuid.UUID]Estimate

	listenersMu sync.Mutex
	listeners   []func(Result)
}

// New creates a calculator; call Start to launch the worker
func New(opts Options) *Calculator {
	if opts.Reference == 0 {
		opts.Reference = DefaultReference
	}
	if opts.ChunkFrames <= 0 {
		opts.ChunkFrames = defaultChunkFrames
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Calculator{
		opts:      opts,
		logger:    opts.Logger.With().Str("component", "gain").Logger(),
		wake:      signal.NewWake(),
		cancel:    signal.NewFlag(),
		closed:    signal.NewFlag(),
		done:      make(chan struct{}),
		estimates: make(map[uuid.UUID]Estimate),
	}
}

// Start launches the worker goroutine
func (c *Calculator) Start() {
	go c.run()
}

// Close stops the worker, cancelling in-flight work
func (c *Calculator) Close() {
	c.closed.Set()
	c.cancel.Set()
	c.wake.Notify()
	<-c.done
}

// OnResult registers fn to be called for every persisted result
func (c *Calculator) OnResult(fn func(Result)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Enqueue schedules items for album-grouped calculation
func (c *Calculator) Enqueue(items ...playlist.Item) {
	if len(items) == 0 {
		return
	}
	c.mu.Lock()
	c.pending = append(c.pending, items...)
	c.mu.Unlock()
	c.wake.Notify()
}

// Pending reports queued items and groups not yet processed
func (c *Calculator) Pending() (items, groups int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending), len(c.groups)
}

// Idle reports that nothing is queued or being measured
func (c *Calculator) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.busy && len(c.pending) == 0 && len(c.groups) == 0
}

// Wait blocks until the calculator is idle or ctx ends
func (c *Calculator) Wait(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for !c.Idle() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// Cancel drops queued work and stops the group being measured.
// Partial results are discarded.
func (c *Calculator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	c.groups = nil
	c.gen++
	c.cancel.Set()
}

// Estimate returns the known gain for an item
func (c *Calculator) Estimate(id uuid.UUID) (Estimate, bool) {
	c.estMu.RLock()
	defer c.estMu.RUnlock()
	e, ok := c.estimates[id]
	return e, ok
}

// SetEstimate records a gain known from elsewhere, such as stored tags
func (c *Calculator) SetEstimate(id uuid.UUID, e Estimate) {
	c.estMu.Lock()
	defer c.estMu.Unlock()
	c.estimates[id] = e
}

func (c *Calculator) run() {
	defer close(c.done)
	for {
		group, ok := c.next()
		if !ok {
			select {
			case <-c.wake.C():
				continue
			case <-c.closed.Done():
				return
			}
		}
		if c.closed.IsSet() {
			return
		}
		c.processGroup(group)
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}
}

// next pops one group, grouping pending items first when needed
func (c *Calculator) next() (Group, bool) {
	c.mu.Lock()
	if len(c.groups) == 0 && len(c.pending) > 0 {
		items := c.pending
		gen := c.gen
		c.pending = nil
		c.busy = true
		c.mu.Unlock()

		grouped := GroupItems(items, c.probe)

		c.mu.Lock()
		if gen == c.gen {
			c.groups = append(c.groups, grouped...)
		}
	}
	defer c.mu.Unlock()

	if len(c.groups) == 0 {
		c.busy = false
		return Group{}, false
	}
	g := c.groups[0]
	c.groups = c.groups[1:]
	c.busy = true
	c.cancel.Clear()
	return g, true
}

func (c *Calculator) probe(item playlist.Item) (audio.Format, bool) {
	format, _, err := c.opts.Registry.Probe(item.Paths()...)
	if err != nil {
		c.logger.Debug().Err(err).Str("file", item.Filename).Msg("Skipping unreadable item")
		metrics.GainJobs.WithLabelValues("failed").Inc()
		return audio.Format{}, false
	}
	return format, true
}

func (c *Calculator) canContinue() bool {
	return !c.cancel.IsSet() && !c.closed.IsSet()
}

// processGroup measures every track of a group in parallel and persists the
// results unless the group was cancelled.
func (c *Calculator) processGroup(group Group) {
	log := c.logger.With().Str("album", group.Key.Album).Int("tracks", len(group.Items)).Logger()
	log.Info().Msg("Calculating gain")

	meters := make([]*loudness.Meter, len(group.Items))

	var eg errgroup.Group
	eg.SetLimit(min(len(group.Items), c.opts.Workers))
	for i, item := range group.Items {
		eg.Go(func() error {
			m, err := c.measure(item, c.canContinue)
			if errors.Is(err, decode.ErrCancelled) {
				return err
			}
			if err != nil {
				log.Warn().Err(err).Str("file", item.Filename).Msg("Gain measurement failed")
				metrics.GainJobs.WithLabelValues("failed").Inc()
				return nil
			}
			meters[i] = m
			return nil
		})
	}

	if err := eg.Wait(); err != nil || !c.canContinue() {
		log.Info().Msg("Gain calculation cancelled")
		metrics.GainJobs.WithLabelValues("cancelled").Add(float64(len(group.Items)))
		return
	}

	var measured []*loudness.Meter
	for _, m := range meters {
		if m != nil {
			measured = append(measured, m)
		}
	}
	albumLUFS, albumOK := loudness.Joint(measured...)
	albumPeak := loudness.JointPeak(measured...)

	var results []Result
	for i, item := range group.Items {
		m := meters[i]
		if m == nil {
			continue
		}
		lufs, ok := m.Integrated()
		if !ok {
			log.Debug().Str("file", item.Filename).Msg("Track is silent, no gain")
			continue
		}
		res := Result{
			ItemID:    item.ID,
			Filename:  item.Filename,
			Loudness:  lufs,
			TrackGain: c.opts.Reference - lufs,
			TrackPeak: m.Peak(),
		}
		if albumOK {
			res.AlbumGain = c.opts.Reference - albumLUFS
			res.AlbumPeak = albumPeak
			res.HasAlbum = true
		}
		results = append(results, res)
	}

	// a Cancel from a result listener stops the rest of the group
	for i, res := range results {
		if !c.canContinue() {
			log.Info().Int("stored", i).Msg("Gain calculation cancelled")
			metrics.GainJobs.WithLabelValues("cancelled").Add(float64(len(results) - i))
			return
		}
		c.store(res)
	}
}

// measure decodes one item through a loudness meter
func (c *Calculator) measure(item playlist.Item, canContinue decode.Continue) (*loudness.Meter, error) {
	dec, err := c.opts.Registry.OpenFirst(item.Paths()...)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	format := dec.Format()
	m := loudness.NewMeter(format.Channels, format.SampleRate)
	buf := make([]float32, c.opts.ChunkFrames*format.Channels)
	err = decode.ReadCancellable(dec, buf, canContinue, func(chunk []float32) error {
		m.Add(chunk)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// store persists a result, updates the estimate map and notifies listeners
func (c *Calculator) store(res Result) {
	est := Estimate{
		TrackGain: library.Float(res.TrackGain),
		TrackPeak: library.Float(res.TrackPeak),
	}
	if res.HasAlbum {
		est.AlbumGain = library.Float(res.AlbumGain)
		est.AlbumPeak = library.Float(res.AlbumPeak)
	}
	if res.ItemID != uuid.Nil {
		c.SetEstimate(res.ItemID, est)
	}

	if c.opts.Library != nil {
		ctx := context.Background()
		prev, _, err := c.opts.Library.Get(ctx, res.Filename)
		if err != nil {
			c.logger.Warn().Err(err).Str("file", res.Filename).Msg("Failed to read tags")
		} else {
			updated := prev
			updated.TrackGain = est.TrackGain
			updated.TrackPeak = est.TrackPeak
			if res.HasAlbum {
				updated.AlbumGain = est.AlbumGain
				updated.AlbumPeak = est.AlbumPeak
			}
			if err := c.opts.Library.UpdateMediaTags(ctx, prev, updated); err != nil {
				c.logger.Warn().Err(err).Str("file", res.Filename).Msg("Failed to persist gain")
			}
		}
	}

	metrics.GainJobs.WithLabelValues("ok").Inc()
	c.logger.Info().
		Str("file", res.Filename).
		Float64("lufs", res.Loudness).
		Float64("track_gain", res.TrackGain).
		Msg("Gain calculated")

	c.listenersMu.Lock()
	fns := append([]func(Result){}, c.listeners...)
	c.listenersMu.Unlock()
	for _, fn := range fns {
		fn(res)
	}
}

// CalculateFile measures a single file synchronously. No grouping, no
// persistence. Returns false if the file can't be decoded, is silent, or ctx
// is cancelled.
func (c *Calculator) CalculateFile(ctx context.Context, filename string) (Result, bool) {
	item := playlist.Item{Filename: filename}
	m, err := c.measure(item, func() bool { return ctx.Err() == nil && !c.closed.IsSet() })
	if err != nil {
		c.logger.Debug().Err(err).Str("file", filename).Msg("Single file gain failed")
		return Result{}, false
	}
	lufs, ok := m.Integrated()
	if !ok {
		return Result{}, false
	}
	return Result{
		Filename:  filename,
		Loudness:  lufs,
		TrackGain: c.opts.Reference - lufs,
		TrackPeak: m.Peak(),
	}, true
}
