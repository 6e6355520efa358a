// ABOUTME: Main player application orchestration
// ABOUTME: Coordinates all components (library, engine, output, UI)
package app

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harperreed/wavedeck/internal/config"
	"github.com/harperreed/wavedeck/internal/engine"
	"github.com/harperreed/wavedeck/internal/gain"
	"github.com/harperreed/wavedeck/internal/library"
	"github.com/harperreed/wavedeck/internal/metrics"
	"github.com/harperreed/wavedeck/internal/playlist"
	"github.com/harperreed/wavedeck/internal/ui"
	"github.com/harperreed/wavedeck/pkg/audio/decode"
	"github.com/harperreed/wavedeck/pkg/audio/output"
)

// Config holds player configuration
type Config struct {
	Settings *config.Settings
	Paths    []string
	UseTUI   bool
	Logger   zerolog.Logger

	// Backend and Registry override the ones built from Settings
	Backend  output.Backend
	Registry *decode.Registry
}

// Player represents the main player application
type Player struct {
	config   Config
	logger   zerolog.Logger
	registry *decode.Registry
	library  *library.Library
	playlist *playlist.Playlist
	gain     *gain.Calculator
	engine   *engine.Engine
	backend  output.Backend

	controls *ui.Controls
	tuiProg  *tea.Program
	status   chan ui.StatusMsg

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	finished   chan struct{}
	finishOnce sync.Once
	stopOnce   sync.Once
}

// New creates a new player
func New(cfg Config) *Player {
	if cfg.Settings == nil {
		d := config.Default()
		cfg.Settings = &d
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Player{
		config:   cfg,
		logger:   cfg.Logger.With().Str("component", "app").Logger(),
		playlist: playlist.New(),
		status:   make(chan ui.StatusMsg, 64),
		ctx:      ctx,
		cancel:   cancel,
		finished: make(chan struct{}),
	}
}

// Start builds the playlist, opens the output and begins playback
func (p *Player) Start() error {
	s := p.config.Settings

	p.registry = p.config.Registry
	if p.registry == nil {
		p.registry = decode.NewDefaultRegistry()
	}

	if s.Library.Path != "" {
		lib, err := library.Open(s.Library.Path, p.config.Logger)
		if err != nil {
			return err
		}
		p.library = lib
	}

	files, err := Collect(p.registry, p.config.Paths)
	if err != nil {
		return err
	}
	var tags TagSource
	if p.library != nil {
		tags = p.library
	}
	p.playlist.Add(BuildItems(p.ctx, files, tags)...)
	p.logger.Info().Int("items", p.playlist.Len()).Msg("Playlist ready")

	p.backend = p.config.Backend
	if p.backend == nil {
		b, err := output.New(s.OutputMode(), s.OutputOptions(), p.config.Logger)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		p.backend = b
	}

	gainOpts := gain.Options{
		Registry:  p.registry,
		Reference: s.Normalization.ReferenceLUFS,
		Logger:    p.config.Logger,
	}
	engineOpts := engine.Options{
		Backend:  p.backend,
		Registry: p.registry,
		Playlist: p.playlist,
		Settings: s.Engine(),
		Logger:   p.config.Logger,
	}
	if p.library != nil {
		gainOpts.Library = p.library
		engineOpts.Library = p.library
	}
	p.gain = gain.New(gainOpts)
	p.gain.Start()
	engineOpts.Gain = p.gain

	eng, err := engine.New(engineOpts)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	p.engine = eng
	eng.Subscribe(p.onEvent)

	if s.Metrics.Addr != "" {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := metrics.Serve(p.ctx, s.Metrics.Addr, p.config.Logger); err != nil {
				p.logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	if p.config.UseTUI {
		p.controls = ui.NewControls()
		prog, err := ui.Run(p.controls)
		if err != nil {
			return fmt.Errorf("failed to start TUI: %w", err)
		}
		p.tuiProg = prog
		go p.tuiProg.Run()

		p.wg.Add(3)
		go p.forwardStatus()
		go p.handleControls()
		go p.statsUpdateLoop()
		p.sendStatus(ui.StatusMsg{Device: p.backend.Name()})
	}

	if err := eng.Play(uuid.Nil, 0); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}
	return nil
}

// Engine returns the playback engine; nil before Start
func (p *Player) Engine() *engine.Engine { return p.engine }

// Playlist returns the playlist
func (p *Player) Playlist() *playlist.Playlist { return p.playlist }

// Done is closed when playback reaches the end without the TUI, or the
// player is stopped
func (p *Player) Done() <-chan struct{} { return p.finished }

// Quit is signalled when the user leaves the TUI; nil without it
func (p *Player) Quit() <-chan ui.QuitMsg {
	if p.controls == nil {
		return nil
	}
	return p.controls.Quit
}

// ApplySettings hot-applies playback settings from a reloaded config file
func (p *Player) ApplySettings(s *config.Settings) {
	if p.engine == nil {
		return
	}
	p.engine.ApplySettings(s.Engine())
	p.logger.Info().Msg("Playback settings applied")
}

// onEvent runs on the engine's event path and must not block
func (p *Player) onEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventStateChanged:
		p.logger.Debug().Str("state", ev.State.String()).Msg("State changed")
		p.sendStatus(ui.StatusMsg{State: ev.State.String()})
		if ev.State == engine.Stopped && !p.config.UseTUI {
			p.finish()
		}
	case engine.EventItemChanged:
		p.logger.Info().Str("title", ev.Item.Title).Str("file", ev.Item.Filename).Msg("Now playing")
		pos := ev.Position
		gain := ev.GainDB
		msg := ui.StatusMsg{
			State:    ev.State.String(),
			Filename: ev.Item.Filename,
			Title:    ev.Item.Title,
			Artist:   ev.Item.Artist,
			Album:    ev.Item.Album,
			Position: &pos,
			Duration: ev.Duration,
			GainDB:   &gain,
		}
		if f, ok := p.engine.OutputFormat(); ok {
			msg.Codec, msg.SampleRate, msg.Channels, msg.BitDepth = f.Codec, f.SampleRate, f.Channels, f.BitDepth
		}
		p.sendStatus(msg)
	case engine.EventPosition:
		pos := ev.Position
		p.sendStatus(ui.StatusMsg{Position: &pos, Duration: ev.Duration})
	case engine.EventGainApplied:
		gain := ev.GainDB
		p.sendStatus(ui.StatusMsg{GainDB: &gain})
	case engine.EventCrossfadeStarted:
		p.sendStatus(ui.StatusMsg{Crossfade: true})
	case engine.EventItemMissing:
		p.logger.Warn().Str("file", ev.Item.Filename).Msg("File missing")
	case engine.EventError:
		p.logger.Error().Err(ev.Err).Msg("Playback error")
		if ev.Err != nil {
			p.sendStatus(ui.StatusMsg{Error: ev.Err.Error()})
		}
	}
}

func (p *Player) sendStatus(msg ui.StatusMsg) {
	if !p.config.UseTUI {
		return
	}
	select {
	case p.status <- msg:
	default:
	}
}

// forwardStatus feeds the TUI from its own goroutine since Send blocks
func (p *Player) forwardStatus() {
	defer p.wg.Done()
	for {
		select {
		case msg := <-p.status:
			p.tuiProg.Send(msg)
		case <-p.ctx.Done():
			return
		}
	}
}

// handleControls processes commands from the TUI
func (p *Player) handleControls() {
	defer p.wg.Done()
	for {
		select {
		case cmd := <-p.controls.Commands:
			p.handleCommand(cmd)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Player) handleCommand(cmd ui.Command) {
	var err error
	switch cmd.Type {
	case ui.CmdTogglePause:
		switch p.engine.State() {
		case engine.Playing:
			err = p.engine.Pause()
		case engine.Paused:
			err = p.engine.Resume()
		default:
			err = p.engine.Play(uuid.Nil, 0)
		}
	case ui.CmdNext:
		err = p.engine.Next()
	case ui.CmdPrevious:
		err = p.engine.Previous()
	case ui.CmdStop:
		err = p.engine.Stop()
	case ui.CmdSeek:
		if it, ok := p.engine.GetCurrentPlaying(); ok {
			err = p.engine.Seek(max(it.Position+cmd.Delta, 0))
		}
	case ui.CmdVolume:
		p.engine.SetVolume(cmd.Value)
	case ui.CmdPitch:
		applied := p.engine.SetPitch(cmd.Value)
		p.sendStatus(ui.StatusMsg{Pitch: applied})
	}
	if err != nil {
		p.logger.Warn().Err(err).Int("command", int(cmd.Type)).Msg("Command failed")
		p.sendStatus(ui.StatusMsg{Error: err.Error()})
	}
}

// statsUpdateLoop periodically updates TUI with playback statistics
func (p *Player) statsUpdateLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	// Use a slower ticker for expensive runtime stats to avoid GC pauses
	runtimeStatsTicker := time.NewTicker(2 * time.Second)
	defer runtimeStatsTicker.Stop()

	for {
		select {
		case <-runtimeStatsTicker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			p.sendStatus(ui.StatusMsg{
				Goroutines: runtime.NumGoroutine(),
				MemAlloc:   m.Alloc,
				MemSys:     m.Sys,
			})

		case <-ticker.C:
			p.sendStatus(ui.StatusMsg{
				Levels:    p.engine.Levels(),
				Underruns: p.engine.Underruns(),
			})

		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Player) finish() {
	p.finishOnce.Do(func() { close(p.finished) })
}

// Stop stops the player
func (p *Player) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()

		if p.tuiProg != nil {
			p.tuiProg.Quit()
		}
		if p.engine != nil {
			if err := p.engine.Close(); err != nil {
				p.logger.Warn().Err(err).Msg("Engine close failed")
			}
		}
		if p.gain != nil {
			p.gain.Close()
		}
		p.wg.Wait()
		if p.library != nil {
			p.library.Close()
		}
		p.finish()
	})
}
