// ABOUTME: Tests for the decoder registry
// ABOUTME: Tests extension lookup, duplicate fallback and cancellable reads
package decode

import (
	"errors"
	"testing"
	"time"

	"github.com/harperreed/wavedeck/pkg/audio"
)

var testFormat = audio.Format{SampleRate: 1000, Channels: 2}

func TestDefaultRegistrySupports(t *testing.T) {
	reg := NewDefaultRegistry()

	tests := []struct {
		path string
		want bool
	}{
		{"song.mp3", true},
		{"SONG.FLAC", true},
		{"a/b/c.opus", true},
		{"x.wav", true},
		{"x.aif", true},
		{"x.ogg", true},
		{"x.raw", true},
		{"x.txt", false},
		{"noext", false},
	}

	for _, tt := range tests {
		if got := reg.Supports(tt.path); got != tt.want {
			t.Errorf("Supports(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestRegistryOpenUnsupported(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Open("song.xyz")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestOpenFirstFallsBackToDuplicate(t *testing.T) {
	fx := NewFixtures()
	fx.Add("backup.gen", func() Decoder { return NewSilence(testFormat, time.Second) })
	reg := fx.Registry(".gen")

	dec, err := reg.OpenFirst("missing.gen", "backup.gen")
	if err != nil {
		t.Fatalf("OpenFirst failed: %v", err)
	}
	defer dec.Close()

	if fx.Opened("backup.gen") != 1 {
		t.Errorf("expected backup to be opened once, got %d", fx.Opened("backup.gen"))
	}
	if dec.Duration() != time.Second {
		t.Errorf("expected 1s duration, got %v", dec.Duration())
	}
}

func TestOpenFirstAllFail(t *testing.T) {
	reg := NewFixtures().Registry(".gen")
	_, err := reg.OpenFirst("a.gen", "b.gen")
	if !errors.Is(err, ErrNoDecoder) {
		t.Fatalf("expected ErrNoDecoder, got %v", err)
	}
}

func TestProbe(t *testing.T) {
	fx := NewFixtures()
	fx.Add("a.gen", func() Decoder { return NewSilence(testFormat, 3*time.Second) })

	format, dur, err := fx.Registry(".gen").Probe("a.gen")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if format.Channels != 2 || format.SampleRate != 1000 {
		t.Errorf("unexpected format %+v", format)
	}
	if dur != 3*time.Second {
		t.Errorf("expected 3s, got %v", dur)
	}
}

func TestReadCancellableReadsAll(t *testing.T) {
	dec := NewSilence(testFormat, 2*time.Second)
	buf := make([]float32, 300*2)

	var frames int
	err := ReadCancellable(dec, buf, func() bool { return true }, func(chunk []float32) error {
		frames += len(chunk) / 2
		return nil
	})
	if err != nil {
		t.Fatalf("ReadCancellable failed: %v", err)
	}
	if frames != 2000 {
		t.Errorf("expected 2000 frames, got %d", frames)
	}
}

func TestReadCancellableStops(t *testing.T) {
	dec := NewSilence(testFormat, 10*time.Second)
	buf := make([]float32, 100*2)

	chunks := 0
	err := ReadCancellable(dec, buf, func() bool { return chunks < 3 }, func([]float32) error {
		chunks++
		return nil
	})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if chunks != 3 {
		t.Errorf("expected 3 chunks before cancel, got %d", chunks)
	}
}

func TestReadCancellablePropagatesDecodeError(t *testing.T) {
	dec := NewScripted(testFormat, []Segment{{Duration: time.Second, Amplitude: 0.5, Frequency: 10}},
		GeneratorOptions{FailAfter: 250})
	buf := make([]float32, 100*2)

	err := ReadCancellable(dec, buf, nil, func([]float32) error { return nil })
	if !errors.Is(err, ErrGeneratorFailed) {
		t.Fatalf("expected ErrGeneratorFailed, got %v", err)
	}
}
