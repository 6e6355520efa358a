// ABOUTME: Builds playlists from files and directories on disk
// ABOUTME: Keeps only extensions the decoder registry can open
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/harperreed/wavedeck/internal/library"
	"github.com/harperreed/wavedeck/internal/playlist"
	"github.com/harperreed/wavedeck/pkg/audio/decode"
)

// ErrNothingToPlay is returned when no playable files were found
var ErrNothingToPlay = errors.New("no playable files found")

// TagSource supplies stored tags for a file
type TagSource interface {
	Get(ctx context.Context, filename string) (library.MediaTags, bool, error)
}

// Collect expands paths into playable files. Directories are walked in name
// order; explicit files are kept in the order given.
func Collect(registry *decode.Registry, paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			if registry.Supports(p) {
				files = append(files, p)
			}
			continue
		}

		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && path != p && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if !d.IsDir() && registry.Supports(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, ErrNothingToPlay
	}
	return files, nil
}

// BuildItems turns files into playlist items. Stored tags win; otherwise the
// title is the file name and the album is the containing directory.
func BuildItems(ctx context.Context, files []string, tags TagSource) []playlist.Item {
	items := make([]playlist.Item, 0, len(files))
	for _, f := range files {
		item := playlist.Item{
			Filename: f,
			Title:    strings.TrimSuffix(filepath.Base(f), filepath.Ext(f)),
			Album:    filepath.Base(filepath.Dir(f)),
		}
		if tags != nil {
			if t, ok, err := tags.Get(ctx, f); err == nil && ok {
				if t.Title != "" {
					item.Title = t.Title
				}
				if t.Album != "" {
					item.Album = t.Album
				}
				item.Artist = t.Artist
			}
		}
		items = append(items, item)
	}
	return items
}
