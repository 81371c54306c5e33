package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/otobox/otobox-be/internal/models"
)

// Sessions are stateless: a token is valid until its embedded expiry and
// there is no server-side revocation. Logout is client-side cookie deletion.
const TokenTTL = 7 * 24 * time.Hour

// CookieName is the session cookie; its value is "Bearer <token>".
const CookieName = "Authorization"

const bearerPrefix = "Bearer "

var (
	// ErrTokenExpired means the signature checked out but the expiry passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed covers bad signatures, garbage input and missing claims.
	ErrTokenMalformed = errors.New("token malformed")
)

// Claims defines the JWT claims structure.
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// UserClaimsKey is the context key for user claims.
type contextKey string

const UserClaimsKey = contextKey("userClaims")

// TokenService issues and verifies session tokens. The signing secret is
// injected once at startup and never leaves this struct.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the standard 7-day validity.
func NewTokenService(secret []byte) *TokenService {
	return &TokenService{secret: secret, ttl: TokenTTL}
}

// Issue creates a signed session token for an account.
func (s *TokenService) Issue(account models.Account) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: account.ID,
		Email:  account.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a token string. No database round trip: the
// returned identity is taken entirely from the embedded claims. A correctly
// signed token missing any required claim (subject, email, expiry) is
// malformed: without the expiry requirement a stray token would be valid
// forever.
func (s *TokenService) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenMalformed
		}
		return s.secret, nil
	}, jwt.WithExpirationRequired(), jwt.WithIssuedAt())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}
	if !token.Valid || claims.UserID == "" || claims.Email == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// TokenFromRequest extracts the raw token from the session cookie.
func TokenFromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || !strings.HasPrefix(cookie.Value, bearerPrefix) {
		return "", false
	}
	return strings.TrimPrefix(cookie.Value, bearerPrefix), true
}

// SetSessionCookie writes the session cookie for a freshly issued token.
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    bearerPrefix + token,
		MaxAge:   int(TokenTTL / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	})
}

// Middleware creates a middleware for protecting routes. Missing, malformed
// and expired tokens all short-circuit with 401 before any handler runs.
func (s *TokenService) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := TokenFromRequest(r)
			if !ok {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			claims, err := s.Verify(tokenStr)
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext retrieves the verified claims stored by Middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserClaimsKey).(*Claims)
	return claims, ok
}
