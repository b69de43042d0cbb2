package rbac

import (
	"log/slog"
	"net/http"

	"github.com/libris/libris/internal/platform/httpx"
	"github.com/libris/libris/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers. Resolver
// errors deny the request.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.guard("rbac require any", normalized, func(r *http.Request, userID int64) (bool, error) {
		return m.Resolver.HasAnyPermission(r.Context(), userID, normalized...)
	})
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.guard("rbac require all", normalized, func(r *http.Request, userID int64) (bool, error) {
		return m.Resolver.HasAllPermissions(r.Context(), userID, normalized...)
	})
}

// RequireAdmin ensures the current user is an administrator.
func (m Middleware) RequireAdmin() func(http.Handler) http.Handler {
	return m.guard("rbac require admin", shared.AdminScopes(), func(r *http.Request, userID int64) (bool, error) {
		return m.Resolver.IsAdmin(r.Context(), userID)
	})
}

func (m Middleware) guard(op string, required []string, check func(*http.Request, int64) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := shared.UserIDFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			allowed, err := check(r, userID)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error(op, slog.Int64("user_id", userID), slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !allowed {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalizePermissions(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = NormalizeName(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
