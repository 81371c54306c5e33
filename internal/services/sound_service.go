package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/otobox/otobox-be/internal/models"
	"github.com/otobox/otobox-be/internal/storage"
	"github.com/rs/zerolog/log"
)

// NewUpload is a parsed multipart upload ready for the store/persist steps.
type NewUpload struct {
	Title       string
	Description string
	Tags        []string
	IsPublic    bool
	Filename    string
	File        io.Reader
}

// SoundMetadata describes an object a client already uploaded out of band
// (remote-variant flow): the locator exists before the metadata row does.
type SoundMetadata struct {
	Title            string
	Description      string
	Tags             []string
	DurationSeconds  *float64
	BitrateKbps      *int
	BlobURL          string
	ThumbnailBlobURL string
	IsPublic         bool
}

// ListFilter selects a page of the public catalog.
type ListFilter struct {
	AuthorID string
	Limit    int
	Offset   int
}

// Download points a caller at the stored bytes of one sound.
type Download struct {
	URL      string
	Filename string
}

// SoundServiceProvider defines the interface for sound services.
type SoundServiceProvider interface {
	Create(ctx context.Context, authorID string, upload NewUpload) (models.Sound, error)
	CreateFromLocator(ctx context.Context, authorID string, meta SoundMetadata) (models.Sound, error)
	List(ctx context.Context, filter ListFilter) ([]models.Sound, error)
	GetPublic(ctx context.Context, id string) (models.Sound, error)
	GetDownload(ctx context.Context, id string) (Download, error)
	UploadTarget(ctx context.Context, filename, contentType string) (storage.UploadTarget, error)
}

// SoundService runs the upload pipeline and the catalog read path.
type SoundService struct {
	db      *sql.DB
	backend storage.Backend
}

// NewSoundService creates a new SoundService.
func NewSoundService(db *sql.DB, backend storage.Backend) *SoundService {
	return &SoundService{db: db, backend: backend}
}

// Create stores the payload and then persists the metadata row, in that
// order: a row pointing at a missing object would break readers, while the
// inverse failure only leaks an orphan. If the insert fails after a
// successful store, the stored object is deleted best-effort; a failed
// compensation is logged and left to the orphan sweeper.
func (s *SoundService) Create(ctx context.Context, authorID string, upload NewUpload) (models.Sound, error) {
	locator, err := s.backend.Store(ctx, storage.ClassUpload, upload.Filename, upload.File)
	if err != nil {
		return models.Sound{}, fmt.Errorf("failed to store audio: %w", err)
	}

	sound := models.Sound{
		ID:          uuid.New().String(),
		Title:       upload.Title,
		Description: upload.Description,
		Tags:        upload.Tags,
		BlobURL:     locator,
		IsPublic:    upload.IsPublic,
		AuthorID:    authorID,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.insert(ctx, sound); err != nil {
		if derr := s.backend.Delete(ctx, locator); derr != nil {
			log.Warn().Err(derr).Str("locator", locator).Msg("Compensating delete failed, object orphaned")
		}
		return models.Sound{}, fmt.Errorf("failed to persist sound: %w", err)
	}

	return sound, nil
}

// CreateFromLocator persists a metadata row for an already-uploaded object.
func (s *SoundService) CreateFromLocator(ctx context.Context, authorID string, meta SoundMetadata) (models.Sound, error) {
	sound := models.Sound{
		ID:               uuid.New().String(),
		Title:            meta.Title,
		Description:      meta.Description,
		Tags:             meta.Tags,
		DurationSeconds:  meta.DurationSeconds,
		BitrateKbps:      meta.BitrateKbps,
		BlobURL:          meta.BlobURL,
		ThumbnailBlobURL: meta.ThumbnailBlobURL,
		IsPublic:         meta.IsPublic,
		AuthorID:         authorID,
		CreatedAt:        time.Now().UTC(),
	}

	if err := s.insert(ctx, sound); err != nil {
		return models.Sound{}, fmt.Errorf("failed to persist sound: %w", err)
	}
	return sound, nil
}

func (s *SoundService) insert(ctx context.Context, sound models.Sound) error {
	tags := sound.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO sounds
		(id, title, description, tags, duration_seconds, bitrate_kbps, blob_url, thumbnail_blob_url, is_public, author_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sound.ID, sound.Title, nullString(sound.Description), string(tagsJSON),
		nullFloat(sound.DurationSeconds), nullInt(sound.BitrateKbps),
		sound.BlobURL, nullString(sound.ThumbnailBlobURL),
		sound.IsPublic, sound.AuthorID, sound.CreatedAt)
	return err
}

// List returns public sounds, newest first, with the author identity joined.
func (s *SoundService) List(ctx context.Context, filter ListFilter) ([]models.Sound, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	query := `SELECT s.id, s.title, s.description, s.tags, s.duration_seconds, s.bitrate_kbps,
		s.blob_url, s.thumbnail_blob_url, s.is_public, s.author_id, s.created_at,
		a.email, a.display_name
		FROM sounds s
		LEFT JOIN accounts a ON s.author_id = a.id
		WHERE s.is_public = 1`
	args := []interface{}{}

	if filter.AuthorID != "" {
		query += " AND s.author_id = ?"
		args = append(args, filter.AuthorID)
	}
	query += " ORDER BY s.created_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sounds := []models.Sound{}
	for rows.Next() {
		var (
			sound       models.Sound
			description sql.NullString
			tagsJSON    string
			duration    sql.NullFloat64
			bitrate     sql.NullInt64
			thumbnail   sql.NullString
			authorEmail sql.NullString
			authorName  sql.NullString
		)
		err := rows.Scan(&sound.ID, &sound.Title, &description, &tagsJSON, &duration, &bitrate,
			&sound.BlobURL, &thumbnail, &sound.IsPublic, &sound.AuthorID, &sound.CreatedAt,
			&authorEmail, &authorName)
		if err != nil {
			return nil, err
		}
		fillOptional(&sound, description, tagsJSON, duration, bitrate, thumbnail)
		if authorEmail.Valid {
			sound.Author = &models.Author{Email: authorEmail.String, DisplayName: authorName.String}
		}
		sounds = append(sounds, sound)
	}
	return sounds, rows.Err()
}

// GetPublic retrieves one public sound by id.
func (s *SoundService) GetPublic(ctx context.Context, id string) (models.Sound, error) {
	var (
		sound       models.Sound
		description sql.NullString
		tagsJSON    string
		duration    sql.NullFloat64
		bitrate     sql.NullInt64
		thumbnail   sql.NullString
	)
	row := s.db.QueryRowContext(ctx, `SELECT id, title, description, tags, duration_seconds, bitrate_kbps,
		blob_url, thumbnail_blob_url, is_public, author_id, created_at
		FROM sounds WHERE id = ? AND is_public = 1`, id)
	err := row.Scan(&sound.ID, &sound.Title, &description, &tagsJSON, &duration, &bitrate,
		&sound.BlobURL, &thumbnail, &sound.IsPublic, &sound.AuthorID, &sound.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Sound{}, ErrSoundNotFound
		}
		return models.Sound{}, err
	}
	fillOptional(&sound, description, tagsJSON, duration, bitrate, thumbnail)
	return sound, nil
}

// GetDownload returns the locator of any sound by id, with a download
// filename derived from the title and the locator's extension.
func (s *SoundService) GetDownload(ctx context.Context, id string) (Download, error) {
	var title, blobURL string
	row := s.db.QueryRowContext(ctx, "SELECT title, blob_url FROM sounds WHERE id = ?", id)
	if err := row.Scan(&title, &blobURL); err != nil {
		if err == sql.ErrNoRows {
			return Download{}, ErrSoundNotFound
		}
		return Download{}, err
	}

	ext := ".mp3"
	if u, err := url.Parse(blobURL); err == nil {
		if e := path.Ext(u.Path); e != "" {
			ext = e
		}
	}
	return Download{URL: blobURL, Filename: title + ext}, nil
}

// UploadTarget issues a pre-authorized client upload target on backends that
// support it.
func (s *SoundService) UploadTarget(ctx context.Context, filename, contentType string) (storage.UploadTarget, error) {
	return s.backend.UploadURL(ctx, filename, contentType)
}

// SplitTags turns a comma-separated tag string into an ordered sequence,
// trimming whitespace and dropping empty entries. Duplicates are kept.
func SplitTags(raw string) []string {
	tags := []string{}
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func fillOptional(sound *models.Sound, description sql.NullString, tagsJSON string, duration sql.NullFloat64, bitrate sql.NullInt64, thumbnail sql.NullString) {
	sound.Description = description.String
	sound.ThumbnailBlobURL = thumbnail.String
	if duration.Valid {
		v := duration.Float64
		sound.DurationSeconds = &v
	}
	if bitrate.Valid {
		v := int(bitrate.Int64)
		sound.BitrateKbps = &v
	}
	sound.Tags = []string{}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &sound.Tags); err != nil {
			log.Warn().Str("sound_id", sound.ID).Msg("Malformed tags column, returning empty list")
			sound.Tags = []string{}
		}
	}
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int) interface{} {
	if i == nil {
		return nil
	}
	return *i
}
