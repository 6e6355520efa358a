// ABOUTME: Tests for player application orchestration
// ABOUTME: Tests playlist building, startup, commands and shutdown
package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/harperreed/wavedeck/internal/config"
	"github.com/harperreed/wavedeck/internal/engine"
	"github.com/harperreed/wavedeck/internal/library"
	"github.com/harperreed/wavedeck/internal/ui"
	"github.com/harperreed/wavedeck/pkg/audio"
	"github.com/harperreed/wavedeck/pkg/audio/decode"
	"github.com/harperreed/wavedeck/pkg/audio/output"
)

var testFormat = audio.Format{SampleRate: 8000, Channels: 2}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.gen", "a.gen", "notes.txt", "disc2/c.gen", ".hidden/d.gen"} {
		touch(t, filepath.Join(dir, name))
	}
	extra := filepath.Join(t.TempDir(), "single.gen")
	touch(t, extra)

	registry := decode.NewFixtures().Registry(".gen")
	files, err := Collect(registry, []string{dir, extra})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.gen"),
		filepath.Join(dir, "b.gen"),
		filepath.Join(dir, "disc2/c.gen"),
		extra,
	}
	if len(files) != len(want) {
		t.Fatalf("got %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}
}

func TestCollectErrors(t *testing.T) {
	registry := decode.NewFixtures().Registry(".gen")

	if _, err := Collect(registry, []string{filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("expected an error for a missing path")
	}

	dir := t.TempDir()
	touch(t, filepath.Join(dir, "cover.jpg"))
	if _, err := Collect(registry, []string{dir}); !errors.Is(err, ErrNothingToPlay) {
		t.Errorf("err = %v, want ErrNothingToPlay", err)
	}
}

func TestBuildItemsUsesLibraryTags(t *testing.T) {
	lib, err := library.Open(filepath.Join(t.TempDir(), "lib.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	defer lib.Close()

	ctx := context.Background()
	tagged := "/music/Blue Train/01 Blue Train.flac"
	if err := lib.UpdateMediaTags(ctx, library.MediaTags{Filename: tagged},
		library.MediaTags{Filename: tagged, Title: "Blue Train", Artist: "John Coltrane", Album: "Blue Train"}); err != nil {
		t.Fatalf("UpdateMediaTags: %v", err)
	}

	items := BuildItems(ctx, []string{tagged, "/music/Loose/track.mp3"}, lib)
	if items[0].Title != "Blue Train" || items[0].Artist != "John Coltrane" {
		t.Errorf("stored tags not used: %+v", items[0])
	}
	if items[1].Title != "track" || items[1].Album != "Loose" {
		t.Errorf("fallback tags wrong: %+v", items[1])
	}
}

type testPlayer struct {
	*Player
	out *output.Null
}

func newTestPlayer(t *testing.T, length time.Duration, names ...string) *testPlayer {
	t.Helper()
	dir := t.TempDir()
	fx := decode.NewFixtures()
	for _, name := range names {
		path := filepath.Join(dir, name)
		touch(t, path)
		fx.Add(path, func() decode.Decoder { return decode.NewTone(testFormat, length, 440, 0.3) })
	}

	settings := config.Default()
	settings.Output.Mode = string(output.ModeNull)
	settings.Library.Path = filepath.Join(dir, "lib.db")
	settings.Playback.Crossfade = false
	settings.Normalization.Mode = string(engine.NormalizeOff)

	out := output.NewNull(output.Options{BufferMS: 20, RealTime: true})
	p := New(Config{
		Settings: &settings,
		Paths:    []string{dir},
		Logger:   zerolog.Nop(),
		Backend:  out,
		Registry: fx.Registry(".gen"),
	})
	t.Cleanup(p.Stop)
	return &testPlayer{Player: p, out: out}
}

func TestNewPlayer(t *testing.T) {
	p := New(Config{Paths: []string{"."}, Logger: zerolog.Nop()})
	defer p.Stop()

	if p.config.Settings == nil {
		t.Fatal("expected default settings")
	}
	if p.playlist == nil || p.ctx == nil || p.cancel == nil {
		t.Error("player components should be initialized")
	}
	if p.Engine() != nil {
		t.Error("engine should not exist before Start")
	}
}

func TestPlayerStartsPlayback(t *testing.T) {
	p := newTestPlayer(t, time.Minute, "a.gen", "b.gen")
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.Playlist().Len() != 2 {
		t.Errorf("playlist has %d items", p.Playlist().Len())
	}
	if p.Engine().State() != engine.Playing {
		t.Fatalf("state = %v", p.Engine().State())
	}
	it, ok := p.Engine().GetCurrentPlaying()
	if !ok || filepath.Base(it.Item.Filename) != "a.gen" {
		t.Errorf("now playing %+v", it.Item)
	}
}

func TestPlayerFinishesAtEndOfPlaylist(t *testing.T) {
	p := newTestPlayer(t, 200*time.Millisecond, "a.gen", "b.gen")
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("player did not finish")
	}
	if p.Engine().State() != engine.Stopped {
		t.Errorf("state = %v", p.Engine().State())
	}
}

func TestPlayerCommands(t *testing.T) {
	p := newTestPlayer(t, time.Minute, "a.gen", "b.gen")
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e := p.Engine()

	p.handleCommand(ui.Command{Type: ui.CmdTogglePause})
	if e.State() != engine.Paused {
		t.Errorf("toggle from playing: %v", e.State())
	}
	p.handleCommand(ui.Command{Type: ui.CmdTogglePause})
	if e.State() != engine.Playing {
		t.Errorf("toggle from paused: %v", e.State())
	}

	p.handleCommand(ui.Command{Type: ui.CmdNext})
	if it, _ := e.GetCurrentPlaying(); filepath.Base(it.Item.Filename) != "b.gen" {
		t.Errorf("next played %s", it.Item.Filename)
	}

	p.handleCommand(ui.Command{Type: ui.CmdPitch, Value: 1.05})
	if e.Pitch() != 1.05 {
		t.Errorf("pitch = %v", e.Pitch())
	}

	p.handleCommand(ui.Command{Type: ui.CmdVolume, Value: 0.25})
	if e.GetVolume() != 0.25 || p.out.Volume() != 0.25 {
		t.Errorf("volume = %v / %v", e.GetVolume(), p.out.Volume())
	}

	p.handleCommand(ui.Command{Type: ui.CmdStop})
	if e.State() != engine.Stopped {
		t.Errorf("stop: %v", e.State())
	}
	p.handleCommand(ui.Command{Type: ui.CmdTogglePause})
	if e.State() != engine.Playing {
		t.Errorf("toggle from stopped should play: %v", e.State())
	}
}

func TestApplySettings(t *testing.T) {
	p := newTestPlayer(t, time.Minute, "a.gen")
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s := config.Default()
	s.Playback.PitchRange = 0.3
	p.ApplySettings(&s)
	if got := p.Engine().SetPitch(1.25); got != 1.25 {
		t.Errorf("pitch range not applied, got %v", got)
	}
}

func TestStartWithoutFiles(t *testing.T) {
	settings := config.Default()
	settings.Library.Path = ""
	p := New(Config{
		Settings: &settings,
		Paths:    []string{t.TempDir()},
		Logger:   zerolog.Nop(),
		Backend:  output.NewNull(output.Options{}),
		Registry: decode.NewFixtures().Registry(".gen"),
	})
	defer p.Stop()
	if err := p.Start(); !errors.Is(err, ErrNothingToPlay) {
		t.Errorf("err = %v, want ErrNothingToPlay", err)
	}
}
