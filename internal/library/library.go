// ABOUTME: Media library persisting derived tags in SQLite via gorm
// ABOUTME: Stores ReplayGain values and missing flags, notifies subscribers on change
package library

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// MediaTags holds the tags the player derives for a file
type MediaTags struct {
	Filename  string `gorm:"primaryKey"`
	Title     string
	Artist    string
	Album     string
	TrackGain *float64 // dB
	TrackPeak *float64 // linear
	AlbumGain *float64 // dB
	AlbumPeak *float64 // linear
	Missing   bool
	UpdatedAt time.Time
}

// TableName pins the table name
func (MediaTags) TableName() string { return "media_tags" }

// Change describes one tag update
type Change struct {
	Previous MediaTags
	Updated  MediaTags
	Fields   []string
}

// Library persists media tags
type Library struct {
	db     *gorm.DB
	logger zerolog.Logger

	mu        sync.Mutex
	listeners map[int]func(Change)
	nextID    int
}

// Open opens (or creates) a SQLite library at path. ":memory:" is allowed.
func Open(path string, log zerolog.Logger) (*Library, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open library %s: %w", path, err)
	}
	return New(db, log)
}

// New wraps an existing gorm handle and migrates the schema
func New(db *gorm.DB, log zerolog.Logger) (*Library, error) {
	if err := db.AutoMigrate(&MediaTags{}); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return &Library{
		db:        db,
		logger:    log.With().Str("component", "library").Logger(),
		listeners: make(map[int]func(Change)),
	}, nil
}

// Close closes the database
func (l *Library) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get returns the stored tags for filename
func (l *Library) Get(ctx context.Context, filename string) (MediaTags, bool, error) {
	var tags MediaTags
	err := l.db.WithContext(ctx).First(&tags, "filename = ?", filename).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return MediaTags{Filename: filename}, false, nil
	}
	if err != nil {
		return MediaTags{}, false, fmt.Errorf("get tags %s: %w", filename, err)
	}
	return tags, true, nil
}

// UpdateMediaTags writes updated if it differs from previous and notifies
// subscribers with the diff.
func (l *Library) UpdateMediaTags(ctx context.Context, previous, updated MediaTags) error {
	if updated.Filename == "" {
		return errors.New("update tags: empty filename")
	}
	fields := Diff(previous, updated)
	if len(fields) == 0 {
		return nil
	}

	updated.UpdatedAt = time.Now().UTC()
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "filename"}},
		UpdateAll: true,
	}).Create(&updated).Error
	if err != nil {
		return fmt.Errorf("update tags %s: %w", updated.Filename, err)
	}

	l.logger.Debug().Str("file", updated.Filename).Strs("fields", fields).Msg("Tags updated")
	l.notify(Change{Previous: previous, Updated: updated, Fields: fields})
	return nil
}

// MarkMissing flags a file that could not be opened
func (l *Library) MarkMissing(ctx context.Context, filename string) error {
	prev, _, err := l.Get(ctx, filename)
	if err != nil {
		return err
	}
	updated := prev
	updated.Missing = true
	return l.UpdateMediaTags(ctx, prev, updated)
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (l *Library) Subscribe(fn func(Change)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.listeners, id)
	}
}

func (l *Library) notify(c Change) {
	l.mu.Lock()
	fns := make([]func(Change), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Diff lists the tag fields that differ between two records
func Diff(a, b MediaTags) []string {
	var fields []string
	if a.Title != b.Title {
		fields = append(fields, "title")
	}
	if a.Artist != b.Artist {
		fields = append(fields, "artist")
	}
	if a.Album != b.Album {
		fields = append(fields, "album")
	}
	if !sameFloat(a.TrackGain, b.TrackGain) {
		fields = append(fields, "track_gain")
	}
	if !sameFloat(a.TrackPeak, b.TrackPeak) {
		fields = append(fields, "track_peak")
	}
	if !sameFloat(a.AlbumGain, b.AlbumGain) {
		fields = append(fields, "album_gain")
	}
	if !sameFloat(a.AlbumPeak, b.AlbumPeak) {
		fields = append(fields, "album_peak")
	}
	if a.Missing != b.Missing {
		fields = append(fields, "missing")
	}
	return fields
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Float returns a pointer to v, for building tag values
func Float(v float64) *float64 { return &v }
