// ABOUTME: Audio output backend tests
// ABOUTME: Verifies ring buffer, null pumping, volume and the WAV file sink
package output

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/harperreed/wavedeck/pkg/audio"
)

var stereo = audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 16}

func TestBackendsImplementInterface(t *testing.T) {
	var _ Backend = (*Oto)(nil)
	var _ Backend = (*Malgo)(nil)
	var _ Backend = (*File)(nil)
	var _ Backend = (*Null)(nil)
	var _ Backend = NewPortAudio(Options{}, zerolog.Nop())
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"shared", ModeShared, false},
		{"exclusive", ModeExclusive, false},
		{"direct", ModeDirect, false},
		{"file", ModeFile, false},
		{"null", ModeNull, false},
		{"", ModeShared, false},
		{"wasapi", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewFileRequiresPath(t *testing.T) {
	if _, err := New(ModeFile, Options{}, zerolog.Nop()); err == nil {
		t.Error("expected error for file mode without path")
	}
}

func TestRingBufferWrapAround(t *testing.T) {
	rb := NewRingBuffer(4)

	if n := rb.Write([]float32{1, 2, 3}); n != 3 {
		t.Fatalf("expected 3 written, got %d", n)
	}
	out := make([]float32, 2)
	rb.Read(out)
	if out[0] != 1 || out[1] != 2 {
		t.Fatalf("unexpected read %v", out)
	}

	if n := rb.Write([]float32{4, 5, 6, 7}); n != 3 {
		t.Fatalf("expected 3 written into remaining space, got %d", n)
	}
	if rb.Free() != 0 {
		t.Errorf("expected full buffer, free=%d", rb.Free())
	}

	out = make([]float32, 6)
	if n := rb.Read(out); n != 4 {
		t.Fatalf("expected 4 read, got %d", n)
	}
	want := []float32{3, 4, 5, 6, 0, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("index %d: expected %f, got %f", i, want[i], out[i])
		}
	}
}

func TestNullPumpZeroFillsAndAppliesVolume(t *testing.T) {
	n := NewNull(Options{})
	err := n.Open(stereo, func(dst []float32) int {
		dst[0], dst[1] = 1, 1
		return 1
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got := n.Pump(4); got != 0 {
		t.Errorf("expected no rendering before Start, got %d", got)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	n.SetVolume(0.5)
	if got := n.Pump(4); got != 1 {
		t.Fatalf("expected 1 frame rendered, got %d", got)
	}
	last := n.Last()
	if last[0] != 0.5 || last[1] != 0.5 {
		t.Errorf("expected volume-scaled 0.5, got %v", last[:2])
	}
	for i := 2; i < len(last); i++ {
		if last[i] != 0 {
			t.Errorf("expected zero fill at %d, got %f", i, last[i])
		}
	}

	if err := n.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if n.IsOpen() {
		t.Error("expected closed")
	}
}

func TestVolumeClamped(t *testing.T) {
	n := NewNull(Options{})
	n.SetVolume(2)
	if n.Volume() != 1 {
		t.Errorf("expected volume clamped to 1, got %f", n.Volume())
	}
	n.SetVolume(-1)
	if n.Volume() != 0 {
		t.Errorf("expected volume clamped to 0, got %f", n.Volume())
	}
}

func TestNullInjectEvent(t *testing.T) {
	n := NewNull(Options{})
	n.Inject(Event{Type: DeviceLost})
	select {
	case e := <-n.Events():
		if e.Type != DeviceLost {
			t.Errorf("expected DeviceLost, got %v", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestFileSinkWritesWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f := NewFile(Options{FilePath: path, BufferMS: 10}, zerolog.Nop())

	rendered := 0
	err := f.Open(stereo, func(dst []float32) int {
		for i := range dst {
			dst[i] = 0.25
		}
		rendered++
		return len(dst) / 2
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := f.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.Frames() < 4800 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		t.Fatal("output is not a valid wav file")
	}
	if dec.SampleRate != 48000 || dec.NumChans != 2 {
		t.Errorf("unexpected header: %d Hz, %d ch", dec.SampleRate, dec.NumChans)
	}

	buf := &goaudio.IntBuffer{Data: make([]int, 16)}
	n, err := dec.PCMBuffer(buf)
	if err != nil || n == 0 {
		t.Fatalf("failed to read pcm: %d, %v", n, err)
	}
	want := int(audio.SampleToInt16(audio.FloatToSample(0.25)))
	if buf.Data[0] != want {
		t.Errorf("expected sample %d, got %d", want, buf.Data[0])
	}
}

func TestWrite24Bit(t *testing.T) {
	out := make([]byte, 6)
	write24Bit(out, []float32{1, -1})
	if got := audio.SampleFrom24Bit([3]byte{out[0], out[1], out[2]}); got != audio.Max24Bit {
		t.Errorf("expected max 24-bit, got %d", got)
	}
	if got := audio.SampleFrom24Bit([3]byte{out[3], out[4], out[5]}); got != -audio.Max24Bit {
		t.Errorf("expected -max 24-bit, got %d", got)
	}
}
