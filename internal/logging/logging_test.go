// ABOUTME: Tests for logger setup
// ABOUTME: Checks level parsing and that output reaches the writer
package logging

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{"WARN", zerolog.WarnLevel, false},
		{"loud", zerolog.NoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup("warn", &buf)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	logger.Info().Msg("hidden")
	logger.Warn().Str("file", "a.flac").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message passed a warn logger")
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "a.flac") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestOpenFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wavedeck.log")
	for i := 0; i < 2; i++ {
		f, err := OpenFile(path)
		if err != nil {
			t.Fatalf("OpenFile: %v", err)
		}
		f.WriteString("line\n")
		f.Close()
	}
	f, _ := OpenFile(path)
	defer f.Close()
	info, _ := f.Stat()
	if info.Size() != int64(len("line\n")*2) {
		t.Errorf("size = %d, want two lines", info.Size())
	}
}
