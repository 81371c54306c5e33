package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Class partitions stored objects by purpose.
type Class int

const (
	ClassUpload Class = iota
	ClassThumbnail
)

// Dir is the path segment objects of this class live under.
func (c Class) Dir() string {
	if c == ClassThumbnail {
		return "thumbnails"
	}
	return "uploads"
}

// ErrDirectUploadOnly is returned by UploadURL on variants that only accept
// bytes through Store.
var ErrDirectUploadOnly = errors.New("storage: backend requires direct upload")

// UploadTarget is a pre-authorized write target plus the URL the object will
// be retrievable at once the client has written it.
type UploadTarget struct {
	UploadURL string
	PublicURL string
}

// Backend persists binary content and hands back stable locators. A
// successful Store means the object is immediately retrievable at the
// returned locator; Delete of a missing object is not an error.
type Backend interface {
	Store(ctx context.Context, class Class, suggestedName string, r io.Reader) (string, error)
	Delete(ctx context.Context, locator string) error
	UploadURL(ctx context.Context, filename, contentType string) (UploadTarget, error)
}

// UniqueName derives a collision-resistant object name from an uploaded
// filename, keeping the original base name and extension.
func UniqueName(original string) string {
	base := filepath.Base(original)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	if name == "" || name == "." {
		name = "file"
	}
	return fmt.Sprintf("%s_%s%s", name, uuid.New().String(), ext)
}
