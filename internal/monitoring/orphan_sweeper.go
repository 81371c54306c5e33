package monitoring

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/otobox/otobox-be/internal/storage"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// OrphanSweeper periodically removes stored files no metadata row references.
// It is the backstop for compensating deletes that failed after a persist
// error. Only meaningful for the local storage variant.
type OrphanSweeper struct {
	db    *sql.DB
	root  string
	grace time.Duration
	cron  *cron.Cron
}

// NewOrphanSweeper creates a sweeper over a local storage root.
func NewOrphanSweeper(db *sql.DB, root string) *OrphanSweeper {
	return &OrphanSweeper{
		db:    db,
		root:  root,
		grace: time.Hour,
		cron:  cron.New(),
	}
}

// Run starts the hourly sweep schedule.
func (s *OrphanSweeper) Run() {
	log.Info().Str("root", s.root).Msg("Starting orphan sweeper")
	s.cron.AddFunc("@hourly", s.Sweep)
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *OrphanSweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("Stopped orphan sweeper")
}

// Sweep scans both class directories and deletes files older than the grace
// period that no sounds row points at. The grace period keeps it from racing
// an upload whose row is still being written.
func (s *OrphanSweeper) Sweep() {
	for _, class := range []storage.Class{storage.ClassUpload, storage.ClassThumbnail} {
		dir := filepath.Join(s.root, class.Dir())
		entries, err := os.ReadDir(dir)
		if err != nil {
			log.Error().Err(err).Str("dir", dir).Msg("Sweeper: failed to read storage directory")
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil || time.Since(info.ModTime()) < s.grace {
				continue
			}

			referenced, err := s.isReferenced(entry.Name())
			if err != nil {
				log.Error().Err(err).Str("file", entry.Name()).Msg("Sweeper: reference query failed")
				continue
			}
			if referenced {
				continue
			}

			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil {
				log.Error().Err(err).Str("path", path).Msg("Sweeper: failed to remove orphan")
				continue
			}
			log.Info().Str("path", path).Msg("Sweeper: removed orphaned object")
		}
	}
}

// isReferenced reports whether any row's locator ends in this filename. The
// LIKE wildcards in a filename can only over-match, so a false positive keeps
// a file rather than deleting a referenced one.
func (s *OrphanSweeper) isReferenced(name string) (bool, error) {
	pattern := "%/" + name
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sounds WHERE blob_url LIKE ? OR thumbnail_blob_url LIKE ?",
		pattern, pattern,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
