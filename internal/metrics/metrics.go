// ABOUTME: Prometheus collectors for the playback engine
// ABOUTME: Counters for underruns, transitions, preload, gain and device recovery
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry holds every wavedeck collector
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// Underruns counts render callbacks that ran out of decoded audio
	Underruns = factory.NewCounter(prometheus.CounterOpts{
		Name: "wavedeck_underruns_total",
		Help: "Render callbacks that had to pad with silence mid-track",
	})

	// TracksStarted counts items that began playing
	TracksStarted = factory.NewCounter(prometheus.CounterOpts{
		Name: "wavedeck_tracks_started_total",
		Help: "Items that started playback",
	})

	// Crossfades counts transitions that overlapped two tracks
	Crossfades = factory.NewCounter(prometheus.CounterOpts{
		Name: "wavedeck_crossfades_total",
		Help: "Track transitions performed with a crossfade",
	})

	// PreloadResults counts preload lookups by outcome (hit, miss, stale)
	PreloadResults = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "wavedeck_preload_results_total",
		Help: "Preloaded decoder lookups at track transitions",
	}, []string{"result"})

	// GainJobs counts gain calculations by outcome (ok, failed, cancelled)
	GainJobs = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "wavedeck_gain_jobs_total",
		Help: "Track gain calculations",
	}, []string{"result"})

	// CrossfadeJobs counts crossfade analyses by outcome (found, none, cancelled, failed)
	CrossfadeJobs = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "wavedeck_crossfade_jobs_total",
		Help: "Crossfade point analyses",
	}, []string{"result"})

	// DeviceRecoveries counts device reinitialisation attempts by outcome
	DeviceRecoveries = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "wavedeck_device_recoveries_total",
		Help: "Attempts to recover a lost audio device",
	}, []string{"result"})

	// EngineState reports the engine state (0 stopped, 1 playing, 2 paused)
	EngineState = factory.NewGauge(prometheus.GaugeOpts{
		Name: "wavedeck_engine_state",
		Help: "Playback state: 0 stopped, 1 playing, 2 paused",
	})
)

// Handler exposes the metrics endpoint
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve runs a metrics HTTP server until ctx is cancelled
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
