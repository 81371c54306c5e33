package handlers_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/otobox/otobox-be/internal/api"
	"github.com/otobox/otobox-be/internal/auth"
	"github.com/otobox/otobox-be/internal/database"
	"github.com/otobox/otobox-be/internal/services"
	"github.com/otobox/otobox-be/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv wires the real router over a throwaway database and local storage.
type testEnv struct {
	router   http.Handler
	tokens   *auth.TokenService
	accounts *services.AccountService
	sounds   *services.SoundService
	db       *sql.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	root := t.TempDir()
	backend, err := storage.NewLocal(root, "http://localhost:8080")
	require.NoError(t, err)

	tokens := auth.NewTokenService([]byte("test-secret"))
	accounts := services.NewAccountService(db)
	sounds := services.NewSoundService(db, backend)

	return &testEnv{
		router:   api.NewRouter(tokens, accounts, sounds, api.Options{StorageRoot: root}),
		tokens:   tokens,
		accounts: accounts,
		sounds:   sounds,
		db:       db,
	}
}

func (e *testEnv) postJSON(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRegisterLoginMe(t *testing.T) {
	env := newTestEnv(t)

	// Register.
	rec := env.postJSON(t, "/auth/register", map[string]string{
		"email":       "alice@example.com",
		"password":    "pw123456",
		"displayName": "Alice",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "alice@example.com", user["email"])
	assert.Equal(t, "Alice", user["displayName"])
	assert.NotEmpty(t, user["id"])

	// Login sets the session cookie and echoes the account.
	rec = env.postJSON(t, "/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "pw123456",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "alice@example.com", body["user"].(map[string]interface{})["email"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, auth.CookieName, cookies[0].Name)

	// Me with the cookie.
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, "alice@example.com", body["user"].(map[string]interface{})["email"])
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postJSON(t, "/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "pw123456",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.postJSON(t, "/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["success"])
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postJSON(t, "/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "pw123456",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.postJSON(t, "/auth/register", map[string]string{
		"email":    "Alice@Example.com",
		"password": "pw123456",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegister_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postJSON(t, "/auth/register", map[string]string{"email": "alice@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMe_DeletedAccount(t *testing.T) {
	env := newTestEnv(t)

	account, err := env.accounts.Register("alice@example.com", "pw123456", "Alice")
	require.NoError(t, err)
	token, err := env.tokens.Issue(account)
	require.NoError(t, err)

	// The token outlives the account.
	_, err = env.db.Exec("DELETE FROM accounts WHERE id = ?", account.ID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "Bearer " + token})
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["success"])
}

func TestMe_LookupFailure(t *testing.T) {
	env := newTestEnv(t)

	account, err := env.accounts.Register("alice@example.com", "pw123456", "Alice")
	require.NoError(t, err)
	token, err := env.tokens.Issue(account)
	require.NoError(t, err)

	// A broken database is a server fault, not a bad session.
	_, err = env.db.Exec("DROP TABLE accounts")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "Bearer " + token})
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMe_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
