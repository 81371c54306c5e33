package models

import "time"

// Sound represents one uploaded audio asset. BlobURL and AuthorID are set
// once at creation and never change afterwards.
type Sound struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	Tags             []string  `json:"tags"`
	DurationSeconds  *float64  `json:"durationSeconds,omitempty"`
	BitrateKbps      *int      `json:"bitrateKbps,omitempty"`
	BlobURL          string    `json:"blobUrl"`
	ThumbnailBlobURL string    `json:"thumbnailBlobUrl,omitempty"`
	IsPublic         bool      `json:"isPublic"`
	AuthorID         string    `json:"authorId"`
	CreatedAt        time.Time `json:"createdAt"`
	Author           *Author   `json:"author,omitempty"`
}

// Author is the slice of account identity joined into sound listings.
type Author struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// SoundSummary is the minimal projection returned right after an upload.
type SoundSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	BlobURL   string    `json:"blobUrl"`
}
