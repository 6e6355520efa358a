// ABOUTME: Album grouping for gain calculation
// ABOUTME: Groups items by channel count, sample rate and album, dropping duplicate files
package gain

import (
	"github.com/harperreed/wavedeck/internal/playlist"
	"github.com/harperreed/wavedeck/pkg/audio"
)

// GroupKey identifies an album group
type GroupKey struct {
	Channels   int
	SampleRate int
	Album      string
}

// Group is a set of items measured together for album gain
type Group struct {
	Key   GroupKey
	Items []playlist.Item
}

// ProbeFunc returns the format of an item, or false if it can't be opened
type ProbeFunc func(item playlist.Item) (audio.Format, bool)

// GroupItems partitions items into album groups in first-seen order.
// Items that fail to probe are skipped; a filename appears at most once per group.
func GroupItems(items []playlist.Item, probe ProbeFunc) []Group {
	var groups []Group
	index := make(map[GroupKey]int)
	seen := make(map[GroupKey]map[string]struct{})

	for _, item := range items {
		format, ok := probe(item)
		if !ok {
			continue
		}
		key := GroupKey{
			Channels:   format.Channels,
			SampleRate: format.SampleRate,
			Album:      item.Album,
		}

		idx, exists := index[key]
		if !exists {
			idx = len(groups)
			index[key] = idx
			groups = append(groups, Group{Key: key})
			seen[key] = make(map[string]struct{})
		}
		if _, dup := seen[key][item.Filename]; dup {
			continue
		}
		seen[key][item.Filename] = struct{}{}
		groups[idx].Items = append(groups[idx].Items, item)
	}
	return groups
}
