package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/libris/libris/internal/platform/httpx"
	"github.com/libris/libris/internal/shared"
)

// Middleware authenticates bearer tokens for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAuth rejects requests without a valid bearer token and stores the
// principal in the request context otherwise.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="libris"`)
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required")
			return
		}
		claims, err := m.Service.Authenticate(r.Context(), token)
		if err != nil {
			if IsTokenError(err) || errors.Is(err, ErrSessionRevoked) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="libris", error="invalid_token"`)
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
				return
			}
			if m.Logger != nil {
				m.Logger.Error("authenticate", slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		principal := &shared.Principal{
			UserID:   claims.UserID,
			Email:    claims.Email,
			Username: claims.UsernameOrEmpty(),
			Token:    token,
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

// BearerToken extracts the raw token from an Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
