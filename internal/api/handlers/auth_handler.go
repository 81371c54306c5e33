package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/otobox/otobox-be/internal/auth"
	"github.com/otobox/otobox-be/internal/services"
	"github.com/rs/zerolog/log"
)

// AuthHandler handles registration, login and session introspection.
type AuthHandler struct {
	accounts      services.AccountServiceProvider
	tokens        *auth.TokenService
	secureCookies bool
}

// NewAuthHandler creates a new AuthHandler. secureCookies should be true in
// production so session cookies only travel over TLS.
func NewAuthHandler(accounts services.AccountServiceProvider, tokens *auth.TokenService, secureCookies bool) *AuthHandler {
	return &AuthHandler{accounts: accounts, tokens: tokens, secureCookies: secureCookies}
}

// RegisterPayload defines the structure for registration requests.
type RegisterPayload struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// LoginPayload defines the structure for login requests.
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles new account registration.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload RegisterPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if payload.Email == "" || payload.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	account, err := h.accounts.Register(payload.Email, payload.Password, payload.DisplayName)
	if err != nil {
		if errors.Is(err, services.ErrDuplicateAccount) {
			writeError(w, http.StatusConflict, "Email already exists")
			return
		}
		log.Error().Err(err).Str("email", payload.Email).Msg("Failed to register account")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"user":    account,
	})
}

// Login verifies credentials, issues a session token and sets the cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload LoginPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if payload.Email == "" || payload.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	account, err := h.accounts.Authenticate(payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			log.Warn().Str("email", payload.Email).Msg("Failed authentication attempt")
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		log.Error().Err(err).Str("email", payload.Email).Msg("Authentication lookup failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	token, err := h.tokens.Issue(account)
	if err != nil {
		log.Error().Err(err).Str("user_id", account.ID).Msg("Failed to issue session token")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	auth.SetSessionCookie(w, token, h.secureCookies)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    account,
	})
}

// Me returns the account embedded in the verified session token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		log.Error().Msg("Could not retrieve user claims from context")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	account, err := h.accounts.GetByID(claims.UserID)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			log.Warn().Str("user_id", claims.UserID).Msg("Account from token no longer exists")
			writeError(w, http.StatusUnauthorized, "User not found")
			return
		}
		log.Error().Err(err).Str("user_id", claims.UserID).Msg("Account lookup failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    account,
	})
}
