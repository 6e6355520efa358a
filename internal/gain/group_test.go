// ABOUTME: Tests for album grouping
// ABOUTME: Tests key partitioning, duplicate suppression and unreadable items
package gain

import (
	"testing"

	"github.com/harperreed/wavedeck/internal/playlist"
	"github.com/harperreed/wavedeck/pkg/audio"
)

func TestGroupItems(t *testing.T) {
	formats := map[string]audio.Format{
		"a1.flac":  {SampleRate: 44100, Channels: 2},
		"a2.flac":  {SampleRate: 44100, Channels: 2},
		"a3.flac":  {SampleRate: 44100, Channels: 2},
		"hi.flac":  {SampleRate: 96000, Channels: 2},
		"mono.wav": {SampleRate: 44100, Channels: 1},
		"b1.mp3":   {SampleRate: 44100, Channels: 2},
	}
	probe := func(item playlist.Item) (audio.Format, bool) {
		f, ok := formats[item.Filename]
		return f, ok
	}

	items := []playlist.Item{
		{Filename: "a1.flac", Album: "A"},
		{Filename: "a2.flac", Album: "A"},
		{Filename: "a1.flac", Album: "A"}, // duplicate
		{Filename: "hi.flac", Album: "A"},
		{Filename: "mono.wav", Album: "A"},
		{Filename: "b1.mp3", Album: "B"},
		{Filename: "a3.flac", Album: "A"},
		{Filename: "gone.flac", Album: "A"}, // unreadable
	}

	groups := GroupItems(items, probe)
	if len(groups) != 4 {
		t.Fatalf("expected 4 groups, got %d", len(groups))
	}

	album := groups[0]
	if album.Key != (GroupKey{Channels: 2, SampleRate: 44100, Album: "A"}) {
		t.Errorf("unexpected first key %+v", album.Key)
	}
	if len(album.Items) != 3 {
		t.Fatalf("expected 3 items in album A group, got %d", len(album.Items))
	}
	want := []string{"a1.flac", "a2.flac", "a3.flac"}
	for i, it := range album.Items {
		if it.Filename != want[i] {
			t.Errorf("item %d: expected %s, got %s", i, want[i], it.Filename)
		}
	}

	for _, g := range groups[1:] {
		if len(g.Items) != 1 {
			t.Errorf("group %+v should hold one item, got %d", g.Key, len(g.Items))
		}
	}
}

func TestGroupItemsSameFileDifferentAlbums(t *testing.T) {
	probe := func(playlist.Item) (audio.Format, bool) {
		return audio.Format{SampleRate: 48000, Channels: 2}, true
	}
	groups := GroupItems([]playlist.Item{
		{Filename: "x.flac", Album: "One"},
		{Filename: "x.flac", Album: "Two"},
	}, probe)
	if len(groups) != 2 {
		t.Errorf("dedupe is per group; expected 2 groups, got %d", len(groups))
	}
}
