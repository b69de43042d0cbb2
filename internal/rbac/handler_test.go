package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	router   http.Handler
	resolver *Resolver
	repo     *memRepo
}

func newHandlerFixture(t *testing.T) handlerFixture {
	t.Helper()
	resolver, repo, _, _ := newTestResolver(t)
	svc := NewService(repo, resolver, nil, nil)
	r := chi.NewRouter()
	r.Route("/rbac", NewHandler(nil, svc, Middleware{Resolver: resolver}).MountRoutes)
	grantRole(t, repo, 1, RoleAdmin)
	grantRole(t, repo, 2, RoleUser)
	return handlerFixture{router: r, resolver: resolver, repo: repo}
}

func (f handlerFixture) do(t *testing.T, userID int64, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = withUser(req, userID)
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func TestHandlerListRoles(t *testing.T) {
	f := newHandlerFixture(t)

	res := f.do(t, 1, http.MethodGet, "/rbac/roles", "")
	require.Equal(t, http.StatusOK, res.Code)
	var roles []roleView
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &roles))
	require.Len(t, roles, 4)
	assert.Equal(t, "admin", roles[0].Name)

	assert.Equal(t, http.StatusForbidden, f.do(t, 2, http.MethodGet, "/rbac/roles", "").Code)
}

func TestHandlerAssignRoleRefreshesPermissions(t *testing.T) {
	f := newHandlerFixture(t)

	res := f.do(t, 1, http.MethodGet, "/rbac/users/5/permissions", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"permissions":[]`)

	res = f.do(t, 1, http.MethodPost, "/rbac/users/5/roles", `{"role":"librarian"}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"name":"librarian"`)

	res = f.do(t, 1, http.MethodGet, "/rbac/users/5/permissions", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"content.nsfw"`)

	res = f.do(t, 1, http.MethodDelete, "/rbac/users/5/roles/2", "")
	assert.Equal(t, http.StatusNoContent, res.Code)
	ok, err := f.resolver.HasPermission(t.Context(), 5, "content.nsfw")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	f := newHandlerFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do(t, 1, http.MethodPost, "/rbac/users/5/roles", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, 1, http.MethodPost, "/rbac/users/5/roles", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, 1, http.MethodPost, "/rbac/users/abc/roles", `{"role":"user"}`).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, 1, http.MethodPost, "/rbac/users/5/roles", `{"role":"emperor"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, 1, http.MethodPost, "/rbac/permissions", `{"name":"nodot"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, 1, http.MethodDelete, "/rbac/users/5/grants/content.nsfw?resource_id=x", "").Code)
}

func TestHandlerGrantAndRevoke(t *testing.T) {
	f := newHandlerFixture(t)

	res := f.do(t, 1, http.MethodPost, "/rbac/users/6/grants", `{"permission":"content.restricted"}`)
	require.Equal(t, http.StatusNoContent, res.Code)

	res = f.do(t, 1, http.MethodGet, "/rbac/users/6/grants", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"permission":"content.restricted"`)

	ok, err := f.resolver.HasPermission(t.Context(), 6, "content.restricted")
	require.NoError(t, err)
	assert.True(t, ok)

	res = f.do(t, 1, http.MethodDelete, "/rbac/users/6/grants/content.restricted", "")
	require.Equal(t, http.StatusNoContent, res.Code)
	ok, err = f.resolver.HasPermission(t.Context(), 6, "content.restricted")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHandlerAdminOnlyRoutes(t *testing.T) {
	f := newHandlerFixture(t)

	assert.Equal(t, http.StatusForbidden, f.do(t, 2, http.MethodPost, "/rbac/permissions", `{"name":"genres.merge"}`).Code)

	res := f.do(t, 1, http.MethodPost, "/rbac/permissions", `{"name":"genres.merge","description":"merge"}`)
	require.Equal(t, http.StatusCreated, res.Code)
	var perm permissionView
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &perm))
	assert.Equal(t, "genre", perm.Resource)

	assert.Equal(t, http.StatusConflict, f.do(t, 1, http.MethodPost, "/rbac/permissions", `{"name":"genres.merge"}`).Code)

	body := `{"permission_id":` + jsonInt(perm.ID) + `}`
	require.Equal(t, http.StatusNoContent, f.do(t, 1, http.MethodPost, "/rbac/roles/3/permissions", body).Code)
	ok, err := f.resolver.HasPermission(t.Context(), 2, "genres.merge")
	require.NoError(t, err)
	assert.True(t, ok)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
