package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/otobox/otobox-be/internal/auth"
	"github.com/otobox/otobox-be/internal/models"
	"github.com/otobox/otobox-be/internal/services"
	"github.com/otobox/otobox-be/internal/storage"
	"github.com/rs/zerolog/log"
)

// maxUploadBytes caps the in-memory portion of multipart parsing; larger
// payloads spill to temp files.
const maxUploadBytes = 64 << 20

// SoundHandler handles upload and catalog requests.
type SoundHandler struct {
	sounds services.SoundServiceProvider
}

// NewSoundHandler creates a new SoundHandler.
func NewSoundHandler(sounds services.SoundServiceProvider) *SoundHandler {
	return &SoundHandler{sounds: sounds}
}

// Upload runs the multipart upload pipeline. Validation rejects before any
// storage or database side effect.
func (h *SoundHandler) Upload(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		log.Error().Msg("Could not retrieve user claims from context")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form data")
		return
	}

	file, header, err := r.FormFile("audioFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Audio file and title are required")
		return
	}
	defer file.Close()

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		writeError(w, http.StatusBadRequest, "Audio file and title are required")
		return
	}

	upload := services.NewUpload{
		Title:       title,
		Description: r.FormValue("description"),
		Tags:        services.SplitTags(r.FormValue("tags")),
		// Public unless explicitly opted out.
		IsPublic: r.FormValue("isPublic") != "false",
		Filename: header.Filename,
		File:     file,
	}

	sound, err := h.sounds.Create(r.Context(), claims.UserID, upload)
	if err != nil {
		log.Error().Err(err).Str("user_id", claims.UserID).Str("title", title).Msg("Upload failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"sound": models.SoundSummary{
			ID:        sound.ID,
			Title:     sound.Title,
			CreatedAt: sound.CreatedAt,
			BlobURL:   sound.BlobURL,
		},
	})
}

// List returns a page of the public catalog, newest first.
func (h *SoundHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	offset, err := strconv.Atoi(q.Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}

	sounds, err := h.sounds.List(r.Context(), services.ListFilter{
		AuthorID: q.Get("authorId"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to list sounds")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"sounds":  sounds,
		"pagination": map[string]int{
			"limit":  limit,
			"offset": offset,
			"total":  len(sounds),
		},
	})
}

// Stream returns the full projection of one public sound.
func (h *SoundHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sound, err := h.sounds.GetPublic(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrSoundNotFound) {
			writeError(w, http.StatusNotFound, "Sound not found or not public")
			return
		}
		log.Error().Err(err).Str("sound_id", id).Msg("Failed to get sound")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"sound":   sound,
	})
}

// Download returns the locator and a suggested filename for any sound.
func (h *SoundHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	download, err := h.sounds.GetDownload(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrSoundNotFound) {
			writeError(w, http.StatusNotFound, "Sound not found")
			return
		}
		log.Error().Err(err).Str("sound_id", id).Msg("Failed to resolve download")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"downloadUrl": download.URL,
		"filename":    download.Filename,
	})
}

// UploadURLPayload is the request body for pre-authorized upload targets.
type UploadURLPayload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

// UploadURL issues a pre-authorized client upload target (remote variant).
func (h *SoundHandler) UploadURL(w http.ResponseWriter, r *http.Request) {
	var payload UploadURLPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if payload.Filename == "" || payload.ContentType == "" {
		writeError(w, http.StatusBadRequest, "Filename and content type are required")
		return
	}

	target, err := h.sounds.UploadTarget(r.Context(), payload.Filename, payload.ContentType)
	if err != nil {
		if errors.Is(err, storage.ErrDirectUploadOnly) {
			writeError(w, http.StatusBadRequest, "Direct upload required, use /sounds/upload")
			return
		}
		log.Error().Err(err).Str("filename", payload.Filename).Msg("Failed to issue upload URL")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"uploadUrl": target.UploadURL,
		"url":       target.PublicURL,
	})
}

// MetadataPayload describes an object already uploaded through a
// pre-authorized target.
type MetadataPayload struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Tags             []string `json:"tags"`
	DurationSeconds  *float64 `json:"durationSeconds"`
	BitrateKbps      *int     `json:"bitrateKbps"`
	BlobURL          string   `json:"blobUrl"`
	ThumbnailBlobURL string   `json:"thumbnailBlobUrl"`
	IsPublic         *bool    `json:"isPublic"`
}

// Metadata persists the row for an already-uploaded object.
func (h *SoundHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		log.Error().Msg("Could not retrieve user claims from context")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	var payload MetadataPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(payload.Title) == "" || payload.BlobURL == "" {
		writeError(w, http.StatusBadRequest, "Title and blob URL are required")
		return
	}

	isPublic := true
	if payload.IsPublic != nil {
		isPublic = *payload.IsPublic
	}

	sound, err := h.sounds.CreateFromLocator(r.Context(), claims.UserID, services.SoundMetadata{
		Title:            strings.TrimSpace(payload.Title),
		Description:      payload.Description,
		Tags:             payload.Tags,
		DurationSeconds:  payload.DurationSeconds,
		BitrateKbps:      payload.BitrateKbps,
		BlobURL:          payload.BlobURL,
		ThumbnailBlobURL: payload.ThumbnailBlobURL,
		IsPublic:         isPublic,
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to persist sound metadata")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"sound": map[string]interface{}{
			"id":        sound.ID,
			"title":     sound.Title,
			"createdAt": sound.CreatedAt,
		},
	})
}
