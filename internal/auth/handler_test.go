package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libris/libris/internal/auth"
)

type staticPerms []string

func (s staticPerms) Permissions(ctx context.Context, userID int64) ([]string, error) {
	return s, nil
}

func newRouter(t *testing.T, svc *auth.Service) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/auth", auth.NewHandler(nil, svc, staticPerms{"books.read"}).MountRoutes)
	return r
}

func login(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func TestLoginEndpoint(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	router := newRouter(t, svc)

	res := login(t, router, `{"email":"a@b.com","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		Token     string `json:"token"`
		TokenType string `json:"token_type"`
		UserID    int64  `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "Bearer", body.TokenType)
	assert.Equal(t, int64(42), body.UserID)
	assert.Len(t, strings.Split(body.Token, "."), 3)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	me := httptest.NewRecorder()
	router.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"username":"alice"`)
	assert.Contains(t, me.Body.String(), `"books.read"`)

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	out := httptest.NewRecorder()
	router.ServeHTTP(out, req)
	assert.Equal(t, http.StatusNoContent, out.Code)

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	again := httptest.NewRecorder()
	router.ServeHTTP(again, req)
	assert.Equal(t, http.StatusUnauthorized, again.Code)
}

func TestLoginEndpointRejects(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	router := newRouter(t, svc)

	assert.Equal(t, http.StatusBadRequest, login(t, router, `{`).Code)
	assert.Equal(t, http.StatusBadRequest, login(t, router, `{"email":"not-an-email","password":"correct horse"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, login(t, router, `{"email":"a@b.com","password":"wrong horse"}`).Code)
}

func TestRequireAuthRejectsMissingOrBadTokens(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	router := newRouter(t, svc)

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer a.b", "Bearer x.y.z"} {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		res := httptest.NewRecorder()
		router.ServeHTTP(res, req)
		assert.Equal(t, http.StatusUnauthorized, res.Code, "header %q", header)
		assert.NotEmpty(t, res.Header().Get("WWW-Authenticate"))
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer   abc.def.ghi ")
	token, ok := auth.BearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", token)
}
