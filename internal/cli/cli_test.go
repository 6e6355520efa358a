// ABOUTME: Tests for the command tree
// ABOUTME: Runs commands against temp config files and generated WAV input
package cli

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/harperreed/wavedeck/internal/library"
	"github.com/harperreed/wavedeck/internal/version"
)

type testEnv struct {
	dir    string
	config string
	lib    string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		dir:    dir,
		config: filepath.Join(dir, "wavedeck.toml"),
		lib:    filepath.Join(dir, "lib.db"),
	}
	body := fmt.Sprintf("[library]\npath = %q\n\n[log]\nlevel = \"error\"\nfile = %q\n",
		env.lib, filepath.Join(dir, "wavedeck.log"))
	if err := os.WriteFile(env.config, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return env
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// writeTone writes a 16-bit mono WAV sine of the given amplitude
func writeTone(t *testing.T, path string, amplitude float64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	const rate = 8000
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	data := make([]int, 3*rate)
	for i := range data {
		data[i] = int(amplitude * 32767 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}
	buf := &goaudio.IntBuffer{Data: data, Format: &goaudio.Format{NumChannels: 1, SampleRate: rate}}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("encoder close: %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if want := version.Product + " " + version.Version + "\n"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestDevicesCommand(t *testing.T) {
	env := newTestEnv(t)
	out, err := run(t, "devices", "--config", env.config, "--output", "null")
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	if !strings.Contains(out, "* Null output (null)") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestInvalidFlagValue(t *testing.T) {
	env := newTestEnv(t)
	if _, err := run(t, "devices", "--config", env.config, "--output", "surround"); err == nil {
		t.Error("expected an error for an unknown output mode")
	}
}

func TestGainSingle(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "music", "tone.wav")
	writeTone(t, path, 0.25)

	out, err := run(t, "gain", "--single", "--config", env.config, path)
	if err != nil {
		t.Fatalf("gain: %v", err)
	}
	if !strings.Contains(out, "tone.wav: track") || strings.Contains(out, "album") {
		t.Errorf("unexpected output %q", out)
	}
	if _, err := os.Stat(env.lib); err == nil {
		t.Error("--single should not create the library")
	}
}

func TestGainStoresResults(t *testing.T) {
	env := newTestEnv(t)
	album := filepath.Join(env.dir, "music", "album")
	writeTone(t, filepath.Join(album, "01.wav"), 0.5)
	writeTone(t, filepath.Join(album, "02.wav"), 0.1)

	out, err := run(t, "gain", "--config", env.config, album)
	if err != nil {
		t.Fatalf("gain: %v", err)
	}
	if !strings.Contains(out, "2 of 2 files measured") {
		t.Errorf("unexpected output %q", out)
	}

	lib, err := library.Open(env.lib, zerolog.Nop())
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	defer lib.Close()

	loud, ok, _ := lib.Get(context.Background(), filepath.Join(album, "01.wav"))
	quiet, ok2, _ := lib.Get(context.Background(), filepath.Join(album, "02.wav"))
	if !ok || !ok2 || loud.TrackGain == nil || quiet.TrackGain == nil {
		t.Fatalf("gains not stored: %+v %+v", loud, quiet)
	}
	if *loud.TrackGain >= *quiet.TrackGain {
		t.Errorf("louder track should get less gain: %v vs %v", *loud.TrackGain, *quiet.TrackGain)
	}
	if loud.AlbumGain == nil || quiet.AlbumGain == nil || *loud.AlbumGain != *quiet.AlbumGain {
		t.Errorf("album gain should be shared: %v %v", loud.AlbumGain, quiet.AlbumGain)
	}
}

func TestPlayRequiresPaths(t *testing.T) {
	if _, err := run(t, "play"); err == nil {
		t.Error("play without paths should fail")
	}
}
