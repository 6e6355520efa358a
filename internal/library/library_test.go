// ABOUTME: Tests for the media library
// ABOUTME: Tests gain persistence, diffing, missing flags and change notifications
package library

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func openTestLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := Open(filepath.Join(t.TempDir(), "library.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	t.Cleanup(func() { lib.Close() })
	return lib
}

func TestGainRoundTrip(t *testing.T) {
	lib := openTestLibrary(t)
	ctx := context.Background()

	prev, found, err := lib.Get(ctx, "/music/a.flac")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatal("expected no record yet")
	}

	updated := prev
	updated.TrackGain = Float(-3.25)
	updated.TrackPeak = Float(0.98)
	if err := lib.UpdateMediaTags(ctx, prev, updated); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, found, err := lib.Get(ctx, "/music/a.flac")
	if err != nil || !found {
		t.Fatalf("expected stored record, found=%v err=%v", found, err)
	}
	if got.TrackGain == nil || *got.TrackGain != -3.25 {
		t.Errorf("expected track gain -3.25, got %v", got.TrackGain)
	}
	if got.AlbumGain != nil {
		t.Errorf("expected no album gain, got %v", *got.AlbumGain)
	}
}

func TestUpdateOverwritesExisting(t *testing.T) {
	lib := openTestLibrary(t)
	ctx := context.Background()

	first := MediaTags{Filename: "a.mp3", TrackGain: Float(1)}
	if err := lib.UpdateMediaTags(ctx, MediaTags{Filename: "a.mp3"}, first); err != nil {
		t.Fatalf("update: %v", err)
	}
	second := first
	second.TrackGain = Float(-2)
	second.AlbumGain = Float(-1.5)
	if err := lib.UpdateMediaTags(ctx, first, second); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _, _ := lib.Get(ctx, "a.mp3")
	if *got.TrackGain != -2 || *got.AlbumGain != -1.5 {
		t.Errorf("unexpected gains %v / %v", *got.TrackGain, *got.AlbumGain)
	}
}

func TestSubscribeReceivesDiff(t *testing.T) {
	lib := openTestLibrary(t)
	ctx := context.Background()

	var changes []Change
	unsubscribe := lib.Subscribe(func(c Change) { changes = append(changes, c) })

	prev := MediaTags{Filename: "b.ogg"}
	upd := MediaTags{Filename: "b.ogg", AlbumGain: Float(-6)}
	if err := lib.UpdateMediaTags(ctx, prev, upd); err != nil {
		t.Fatalf("update: %v", err)
	}
	// Same values again: no write, no notification
	if err := lib.UpdateMediaTags(ctx, upd, upd); err != nil {
		t.Fatalf("update: %v", err)
	}

	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if len(changes[0].Fields) != 1 || changes[0].Fields[0] != "album_gain" {
		t.Errorf("unexpected fields %v", changes[0].Fields)
	}

	unsubscribe()
	if err := lib.MarkMissing(ctx, "b.ogg"); err != nil {
		t.Fatalf("mark missing: %v", err)
	}
	if len(changes) != 1 {
		t.Errorf("expected no notification after unsubscribe, got %d", len(changes))
	}

	got, _, _ := lib.Get(ctx, "b.ogg")
	if !got.Missing {
		t.Error("expected missing flag")
	}
	if got.AlbumGain == nil || *got.AlbumGain != -6 {
		t.Error("MarkMissing should keep existing tags")
	}
}

func TestDiff(t *testing.T) {
	a := MediaTags{Filename: "x", Title: "t", TrackGain: Float(1)}
	b := a
	if len(Diff(a, b)) != 0 {
		t.Error("expected no diff for copies")
	}
	b.TrackGain = Float(1)
	if len(Diff(a, b)) != 0 {
		t.Error("equal values behind different pointers should not differ")
	}
	b.TrackGain = nil
	b.Artist = "someone"
	got := Diff(a, b)
	if len(got) != 2 || got[0] != "artist" || got[1] != "track_gain" {
		t.Errorf("unexpected diff %v", got)
	}
}
