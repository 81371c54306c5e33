package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Local stores objects under a root directory on the serving host. Locators
// are HTTP URLs under baseURL, of the form
// <baseURL>/storage/{uploads,thumbnails}/<name>.
type Local struct {
	root    string
	baseURL string
	// Locator path prefix up to and including "/storage/". Includes the base
	// URL's own path when it has one (e.g. "/app/storage/").
	pathPrefix string
}

// NewLocal creates the storage root and its class subdirectories once,
// idempotently. Writes never create directories again.
func NewLocal(root, baseURL string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	base := strings.TrimRight(baseURL, "/")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	for _, class := range []Class{ClassUpload, ClassThumbnail} {
		if err := os.MkdirAll(filepath.Join(root, class.Dir()), 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return &Local{
		root:       root,
		baseURL:    base,
		pathPrefix: strings.TrimRight(u.Path, "/") + "/storage/",
	}, nil
}

// Store writes the payload under a fresh collision-resistant name and
// returns the URL it is served at.
func (l *Local) Store(ctx context.Context, class Class, suggestedName string, r io.Reader) (string, error) {
	name := UniqueName(suggestedName)
	dst := filepath.Join(l.root, class.Dir(), name)

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return fmt.Sprintf("%s/storage/%s/%s", l.baseURL, class.Dir(), name), nil
}

// Delete removes the object a locator points at. Deleting an unknown or
// already-removed object is not an error.
func (l *Local) Delete(ctx context.Context, locator string) error {
	rel, err := l.relPath(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(l.root, rel)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", rel, err)
	}
	return nil
}

// UploadURL is unsupported: the local variant only takes bytes via Store.
func (l *Local) UploadURL(ctx context.Context, filename, contentType string) (UploadTarget, error) {
	return UploadTarget{}, ErrDirectUploadOnly
}

// relPath maps a locator back to a path under the root, refusing anything
// that does not match the layout this backend produces.
func (l *Local) relPath(locator string) (string, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("invalid locator %q", locator)
	}
	p, ok := strings.CutPrefix(u.Path, l.pathPrefix)
	if !ok {
		return "", fmt.Errorf("invalid locator %q", locator)
	}
	dir, name := path.Split(p)
	dir = strings.Trim(dir, "/")
	if (dir != ClassUpload.Dir() && dir != ClassThumbnail.Dir()) || name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid locator %q", locator)
	}
	return filepath.Join(dir, name), nil
}
