// ABOUTME: Background crossfade point calculator
// ABOUTME: Runs quiet-tail detection for one target item at a time and caches results
package crossfade

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harperreed/wavedeck/internal/metrics"
	"github.com/harperreed/wavedeck/internal/playlist"
	"github.com/harperreed/wavedeck/internal/signal"
	"github.com/harperreed/wavedeck/pkg/audio/decode"
)

// Result is the crossfade state computed for an item
type Result struct {
	ItemID uuid.UUID
	// Position is where the fade out starts, from the beginning of the track
	Position time.Duration
	// Seek is the offset analysis started from
	Seek time.Duration
	// Duration of the analysed track
	Duration time.Duration
	// Enabled is false when no quiet region was found
	Enabled bool
}

// Options configures a Calculator
type Options struct {
	Registry *decode.Registry
	Params   Params
	Logger   zerolog.Logger
}

type job struct {
	item playlist.Item
	seek time.Duration
	stop *signal.Flag
}

// Calculator computes crossfade points on a background goroutine. Only the
// latest target is ever computed; setting a new one cancels the old.
type Calculator struct {
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	current *job
	cache   map[uuid.UUID]Result
	wg      sync.WaitGroup

	listenersMu sync.Mutex
	listeners   []func(Result)
}

// New creates a calculator
func New(opts Options) *Calculator {
	opts.Params = opts.Params.withDefaults()
	return &Calculator{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "crossfade").Logger(),
		cache:  make(map[uuid.UUID]Result),
	}
}

// SetParams changes the detection heuristic and drops cached results
func (c *Calculator) SetParams(p Params) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.Params = p.withDefaults()
	c.cache = make(map[uuid.UUID]Result)
}

// OnResult registers fn for every completed analysis
func (c *Calculator) OnResult(fn func(Result)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// SetTarget makes item the one to analyse, starting at seek. Any in-flight
// analysis for a different target is cancelled and its result discarded.
// Returns true if a cached result already covers the target.
func (c *Calculator) SetTarget(item playlist.Item, seek time.Duration) bool {
	c.mu.Lock()
	if res, ok := c.cache[item.ID]; ok && res.Seek == seek {
		if c.current != nil {
			c.current.stop.Set()
			c.current = nil
		}
		c.mu.Unlock()
		return true
	}
	if c.current != nil {
		if c.current.item.ID == item.ID && c.current.seek == seek {
			c.mu.Unlock()
			return false
		}
		c.current.stop.Set()
	}
	j := &job{item: item, seek: seek, stop: signal.NewFlag()}
	c.current = j
	params := c.opts.Params
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(j, params)
	return false
}

// Cancel stops the in-flight analysis. Nothing is written for it.
func (c *Calculator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.stop.Set()
		c.current = nil
	}
}

// Result returns the cached crossfade state for an item
func (c *Calculator) Result(id uuid.UUID) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.cache[id]
	return res, ok
}

// Busy reports whether an analysis is running
func (c *Calculator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Wait blocks until every started analysis goroutine has returned
func (c *Calculator) Wait() {
	c.wg.Wait()
}

// Close cancels work and waits for it to finish
func (c *Calculator) Close() {
	c.Cancel()
	c.wg.Wait()
}

func (c *Calculator) run(j *job, params Params) {
	defer c.wg.Done()
	log := c.logger.With().Str("file", j.item.Filename).Dur("seek", j.seek).Logger()

	det, err := c.detect(j, params)
	switch {
	case errors.Is(err, decode.ErrCancelled) || j.stop.IsSet():
		log.Debug().Msg("Crossfade analysis cancelled")
		metrics.CrossfadeJobs.WithLabelValues("cancelled").Inc()
		return
	case err != nil:
		log.Warn().Err(err).Msg("Crossfade analysis failed")
		metrics.CrossfadeJobs.WithLabelValues("failed").Inc()
		c.finish(j, nil)
		return
	}

	res := Result{
		ItemID:   j.item.ID,
		Position: det.Position,
		Seek:     j.seek,
		Duration: det.Duration,
		Enabled:  det.Found,
	}
	if !c.finish(j, &res) {
		metrics.CrossfadeJobs.WithLabelValues("cancelled").Inc()
		return
	}

	if res.Enabled {
		metrics.CrossfadeJobs.WithLabelValues("found").Inc()
		log.Debug().Dur("position", res.Position).Msg("Crossfade point found")
	} else {
		metrics.CrossfadeJobs.WithLabelValues("none").Inc()
		log.Debug().Msg("No quiet tail, crossfade disabled")
	}

	c.listenersMu.Lock()
	fns := append([]func(Result){}, c.listeners...)
	c.listenersMu.Unlock()
	for _, fn := range fns {
		fn(res)
	}
}

func (c *Calculator) detect(j *job, params Params) (Detection, error) {
	dec, err := c.opts.Registry.OpenFirst(j.item.Paths()...)
	if err != nil {
		return Detection{}, err
	}
	defer dec.Close()
	return Detect(dec, j.seek, params, j.stop.Continue())
}

// finish clears the job and stores res if the job is still current
func (c *Calculator) finish(j *job, res *Result) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != j || j.stop.IsSet() {
		return false
	}
	c.current = nil
	if res != nil {
		c.cache[j.item.ID] = *res
	}
	return true
}
