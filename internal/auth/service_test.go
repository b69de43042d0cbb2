package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/libris/libris/internal/auth"
	"github.com/libris/libris/internal/shared"
	_ "github.com/libris/libris/testing"
)

type stubRepo struct {
	mu       sync.Mutex
	user     *auth.User
	sessions map[string]auth.Session
	findErr  error
	purged   time.Time
}

func newStubRepo(user *auth.User) *stubRepo {
	return &stubRepo{user: user, sessions: make(map[string]auth.Session)}
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, sess auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Token] = sess
	return nil
}

func (s *stubRepo) SessionExists(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[token]
	return ok, nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *stubRepo) PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purged = before
	var n int64
	for k, v := range s.sessions {
		if v.ExpiresAt.Before(before) {
			delete(s.sessions, k)
			n++
		}
	}
	return n, nil
}

type failureCounter struct {
	reasons []string
}

func (f *failureCounter) AuthFailure(reason string) { f.reasons = append(f.reasons, reason) }

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newTestService(t *testing.T, requireSession bool) (*auth.Service, *stubRepo, *failureCounter) {
	t.Helper()
	name := "alice"
	repo := newStubRepo(&auth.User{ID: 42, Email: "a@b.com", Username: &name, PasswordHash: hashed(t, "correct horse"), IsActive: true})
	failures := &failureCounter{}
	tokens := auth.NewTokenService([]byte("0123456789abcdef0123456789abcdef"), nil)
	svc := auth.NewService(repo, tokens, auth.ServiceConfig{RequireSession: requireSession, Failures: failures})
	return svc, repo, failures
}

func TestLoginIssuesTokenAndSession(t *testing.T) {
	svc, repo, _ := newTestService(t, true)
	ctx := context.Background()

	res, err := svc.Login(ctx, "a@b.com", "correct horse", "10.0.0.1", "test")
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.Claims.UserID)
	assert.Equal(t, "alice", res.Claims.UsernameOrEmpty())

	sess, ok := repo.sessions[res.Token]
	require.True(t, ok)
	assert.Equal(t, res.Claims.Expiry(), sess.ExpiresAt)

	claims, err := svc.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Claims, claims)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, repo, failures := newTestService(t, true)
	ctx := context.Background()

	_, err := svc.Login(ctx, "a@b.com", "wrong password", "", "")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@b.com", "correct horse", "", "")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	repo.user.IsActive = false
	_, err = svc.Login(ctx, "a@b.com", "correct horse", "", "")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	assert.Equal(t, []string{"bad_password", "unknown_user", "inactive_user"}, failures.reasons)
	assert.Empty(t, repo.sessions)
}

func TestLoginPropagatesStoreErrors(t *testing.T) {
	svc, repo, _ := newTestService(t, true)
	boom := errors.New("db down")
	repo.findErr = boom

	_, err := svc.Login(context.Background(), "a@b.com", "correct horse", "", "")
	assert.ErrorIs(t, err, boom)
}

func TestLogoutRevokesWhenSessionRequired(t *testing.T) {
	svc, _, failures := newTestService(t, true)
	ctx := context.Background()
	res, err := svc.Login(ctx, "a@b.com", "correct horse", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, res.Token))
	_, err = svc.Authenticate(ctx, res.Token)
	assert.ErrorIs(t, err, auth.ErrSessionRevoked)
	assert.Contains(t, failures.reasons, "revoked")
}

func TestLogoutWithoutSessionCheckKeepsTokenValid(t *testing.T) {
	svc, _, _ := newTestService(t, false)
	ctx := context.Background()
	res, err := svc.Login(ctx, "a@b.com", "correct horse", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, res.Token))
	_, err = svc.Authenticate(ctx, res.Token)
	assert.NoError(t, err)
}

func TestAuthenticateRecordsTokenFailures(t *testing.T) {
	svc, _, failures := newTestService(t, true)
	_, err := svc.Authenticate(context.Background(), "a.b")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	assert.Equal(t, []string{"invalid_token"}, failures.reasons)
}

func TestPurgeExpired(t *testing.T) {
	svc, repo, _ := newTestService(t, true)
	ctx := context.Background()
	now := time.Now()
	repo.sessions["old"] = auth.Session{Token: "old", ExpiresAt: now.Add(-time.Hour)}
	repo.sessions["new"] = auth.Session{Token: "new", ExpiresAt: now.Add(time.Hour)}

	n, err := svc.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Contains(t, repo.sessions, "new")
}
