package handlers_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/otobox/otobox-be/internal/api"
	"github.com/otobox/otobox-be/internal/auth"
	"github.com/otobox/otobox-be/internal/models"
	"github.com/otobox/otobox-be/internal/services"
	"github.com/otobox/otobox-be/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) sessionCookie(t *testing.T) (*http.Cookie, models.Account) {
	t.Helper()
	account, err := e.accounts.Register("uploader@example.com", "pw123456", "Uploader")
	require.NoError(t, err)
	token, err := e.tokens.Issue(account)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.CookieName, Value: "Bearer " + token}, account
}

func multipartBody(t *testing.T, fields map[string]string, fileField, filename string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range fields {
		require.NoError(t, w.WriteField(name, value))
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = fw.Write(payload)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t)
	cookie, _ := env.sessionCookie(t)

	payload := make([]byte, 1024)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	body, contentType := multipartBody(t, map[string]string{
		"title": "demo",
		"tags":  "a, b, a",
	}, "audioFile", "demo.mp3", payload)

	req := httptest.NewRequest(http.MethodPost, "/sounds/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody(t, rec)
	assert.Equal(t, true, resp["success"])
	sound := resp["sound"].(map[string]interface{})
	assert.Equal(t, "demo", sound["title"])
	require.NotEmpty(t, sound["id"])
	blobURL := sound["blobUrl"].(string)
	require.NotEmpty(t, blobURL)

	// The locator resolves, through the static mount, to identical bytes.
	u, err := url.Parse(blobURL)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, u.Path, nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, rec.Body.Bytes())

	// Full projection: tag order and duplicates kept, public by default.
	req = httptest.NewRequest(http.MethodGet, "/sounds/"+sound["id"].(string)+"/stream", nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	full := decodeBody(t, rec)["sound"].(map[string]interface{})
	assert.Equal(t, []interface{}{"a", "b", "a"}, full["tags"])
	assert.Equal(t, true, full["isPublic"])
}

func TestUpload_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartBody(t, map[string]string{"title": "demo"}, "audioFile", "demo.mp3", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/sounds/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// stubSoundService records calls; every method fails loudly so tests can
// assert a handler rejected before reaching the service.
type stubSoundService struct {
	createCalls   int
	downloadCalls int
}

func (s *stubSoundService) Create(ctx context.Context, authorID string, upload services.NewUpload) (models.Sound, error) {
	s.createCalls++
	return models.Sound{}, nil
}
func (s *stubSoundService) CreateFromLocator(ctx context.Context, authorID string, meta services.SoundMetadata) (models.Sound, error) {
	return models.Sound{}, nil
}
func (s *stubSoundService) List(ctx context.Context, filter services.ListFilter) ([]models.Sound, error) {
	return nil, nil
}
func (s *stubSoundService) GetPublic(ctx context.Context, id string) (models.Sound, error) {
	return models.Sound{}, services.ErrSoundNotFound
}
func (s *stubSoundService) GetDownload(ctx context.Context, id string) (services.Download, error) {
	s.downloadCalls++
	return services.Download{}, services.ErrSoundNotFound
}
func (s *stubSoundService) UploadTarget(ctx context.Context, filename, contentType string) (storage.UploadTarget, error) {
	return storage.UploadTarget{}, storage.ErrDirectUploadOnly
}

func TestUpload_EmptyTitle_DoesNotReachPipeline(t *testing.T) {
	env := newTestEnv(t)
	cookie, _ := env.sessionCookie(t)

	stub := &stubSoundService{}
	router := api.NewRouter(env.tokens, env.accounts, stub, api.Options{})

	body, contentType := multipartBody(t, map[string]string{"title": "  "}, "audioFile", "demo.mp3", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/sounds/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, stub.createCalls, "validation failures must not reach storage")
}

func TestUpload_MissingFile_DoesNotReachPipeline(t *testing.T) {
	env := newTestEnv(t)
	cookie, _ := env.sessionCookie(t)

	stub := &stubSoundService{}
	router := api.NewRouter(env.tokens, env.accounts, stub, api.Options{})

	body, contentType := multipartBody(t, map[string]string{"title": "demo"}, "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/sounds/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, stub.createCalls)
}

func TestDownload_Unauthenticated_NoQuery(t *testing.T) {
	env := newTestEnv(t)
	stub := &stubSoundService{}
	router := api.NewRouter(env.tokens, env.accounts, stub, api.Options{})

	req := httptest.NewRequest(http.MethodGet, "/sounds/any-id/download", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, stub.downloadCalls, "auth must fail before the sound is queried")
}

func TestDownload(t *testing.T) {
	env := newTestEnv(t)
	cookie, account := env.sessionCookie(t)

	sound, err := env.sounds.Create(context.Background(), account.ID, services.NewUpload{
		Title: "track", IsPublic: true, Filename: "track.flac", File: bytes.NewReader([]byte("flac")),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/sounds/"+sound.ID+"/download", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, sound.BlobURL, body["downloadUrl"])
	assert.Equal(t, "track.flac", body["filename"])
}

func TestDownload_NotFound(t *testing.T) {
	env := newTestEnv(t)
	cookie, _ := env.sessionCookie(t)

	req := httptest.NewRequest(http.MethodGet, "/sounds/missing/download", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStream_PrivateIsHidden(t *testing.T) {
	env := newTestEnv(t)
	_, account := env.sessionCookie(t)

	sound, err := env.sounds.Create(context.Background(), account.ID, services.NewUpload{
		Title: "secret", IsPublic: false, Filename: "s.mp3", File: bytes.NewReader([]byte("s")),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/sounds/"+sound.ID+"/stream", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestList(t *testing.T) {
	env := newTestEnv(t)
	_, account := env.sessionCookie(t)

	for _, title := range []string{"one", "two"} {
		_, err := env.sounds.Create(context.Background(), account.ID, services.NewUpload{
			Title: title, IsPublic: true, Filename: title + ".mp3", File: bytes.NewReader([]byte(title)),
		})
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/sounds?limit=10", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["sounds"], 2)
	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(10), pagination["limit"])
	assert.Equal(t, float64(0), pagination["offset"])
	assert.Equal(t, float64(2), pagination["total"])
}

func TestUploadURL_LocalBackend(t *testing.T) {
	env := newTestEnv(t)
	cookie, _ := env.sessionCookie(t)

	raw, err := json.Marshal(map[string]string{"filename": "a.mp3", "contentType": "audio/mpeg"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/sounds/upload-url", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetadata(t *testing.T) {
	env := newTestEnv(t)
	cookie, _ := env.sessionCookie(t)

	raw, err := json.Marshal(map[string]interface{}{
		"title":   "remote upload",
		"blobUrl": "https://bucket.s3.us-east-1.amazonaws.com/uploads/x_1.mp3",
		"tags":    []string{"a"},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/sounds/metadata", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sound := decodeBody(t, rec)["sound"].(map[string]interface{})
	assert.Equal(t, "remote upload", sound["title"])
	require.NotEmpty(t, sound["id"])
}

func TestMetadata_MissingBlobURL(t *testing.T) {
	env := newTestEnv(t)
	cookie, _ := env.sessionCookie(t)

	raw, err := json.Marshal(map[string]string{"title": "no locator"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/sounds/metadata", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
