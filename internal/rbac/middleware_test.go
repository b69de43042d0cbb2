package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/libris/libris/internal/shared"
)

func withUser(req *http.Request, userID int64) *http.Request {
	ctx := shared.ContextWithPrincipal(req.Context(), &shared.Principal{UserID: userID})
	return req.WithContext(ctx)
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusTeapot)
})

func serve(h http.Handler, req *http.Request) int {
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res.Code
}

func TestMiddlewareRequireAny(t *testing.T) {
	resolver, repo, _, _ := newTestResolver(t)
	grantRole(t, repo, 1, RoleUser)
	mw := Middleware{Resolver: resolver}
	h := mw.RequireAny("books.write", " Books.Read ")(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(h, req))
	assert.Equal(t, http.StatusTeapot, serve(h, withUser(req, 1)))
	assert.Equal(t, http.StatusForbidden, serve(h, withUser(req, 2)))
}

func TestMiddlewareRequireAll(t *testing.T) {
	resolver, repo, _, _ := newTestResolver(t)
	grantRole(t, repo, 1, RoleUser)
	grantRole(t, repo, 2, RoleLibrarian)
	h := Middleware{Resolver: resolver}.RequireAll("books.read", "books.write")(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusForbidden, serve(h, withUser(req, 1)))
	assert.Equal(t, http.StatusTeapot, serve(h, withUser(req, 2)))
}

func TestMiddlewareRequireAdmin(t *testing.T) {
	resolver, repo, _, _ := newTestResolver(t)
	grantRole(t, repo, 1, RoleAdmin)
	grantRole(t, repo, 2, RoleLibrarian)
	h := Middleware{Resolver: resolver}.RequireAdmin()(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusTeapot, serve(h, withUser(req, 1)))
	assert.Equal(t, http.StatusForbidden, serve(h, withUser(req, 2)))
}

func TestMiddlewareEmptyRequirementPasses(t *testing.T) {
	resolver, _, _, _ := newTestResolver(t)
	h := Middleware{Resolver: resolver}.RequireAny("", "  ")(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusTeapot, serve(h, req))
}

func TestMiddlewareResolverErrorDenies(t *testing.T) {
	resolver, repo, _, _ := newTestResolver(t)
	repo.permErr = errors.New("db down")
	h := Middleware{Resolver: resolver}.RequireAny("books.read")(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusInternalServerError, serve(h, withUser(req.WithContext(context.Background()), 1)))
}

func TestNormalizePermissions(t *testing.T) {
	got := normalizePermissions([]string{"Books.Read", "books.read", "", "admin.full"})
	assert.Equal(t, []string{"books.read", "admin.full"}, got)
}
