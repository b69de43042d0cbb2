package auth

import (
	"context"
	"errors"
	"time"

	"github.com/libris/libris/internal/shared"
)

// ErrSessionRevoked reports a valid token whose session record was deleted.
var ErrSessionRevoked = errors.New("auth: session revoked")

// LoginResult is returned on successful login.
type LoginResult struct {
	Token  string
	Claims Claims
	User   *User
}

// FailureRecorder receives authentication failures by reason.
type FailureRecorder interface {
	AuthFailure(reason string)
}

// ServiceConfig tunes the auth service.
type ServiceConfig struct {
	// RequireSession makes Authenticate reject tokens without a session row.
	RequireSession bool
	Failures       FailureRecorder
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenService
	cfg    ServiceConfig
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenService, cfg ServiceConfig) *Service {
	return &Service{repo: repo, tokens: tokens, cfg: cfg}
}

// Login validates email/password credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password, ip, ua string) (*LoginResult, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			burnPasswordCheck(password)
			s.recordFailure("unknown_user")
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		burnPasswordCheck(password)
		s.recordFailure("inactive_user")
		return nil, shared.ErrInvalidCredentials
	}
	if err := checkPassword(user.PasswordHash, password); err != nil {
		s.recordFailure("bad_password")
		return nil, shared.ErrInvalidCredentials
	}
	token, claims, err := s.tokens.Issue(user.ID, user.Email, user.Username)
	if err != nil {
		return nil, err
	}
	session := Session{
		Token:     token,
		UserID:    user.ID,
		CreatedAt: time.Unix(claims.IssuedAt, 0),
		ExpiresAt: claims.Expiry(),
		IP:        ip,
		UserAgent: ua,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, Claims: claims, User: user}, nil
}

// Authenticate validates the token and, when configured, its session record.
func (s *Service) Authenticate(ctx context.Context, token string) (Claims, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		s.recordFailure(failureReason(err))
		return Claims{}, err
	}
	if !s.cfg.RequireSession {
		return claims, nil
	}
	ok, err := s.repo.SessionExists(ctx, token)
	if err != nil {
		return Claims{}, err
	}
	if !ok {
		s.recordFailure("revoked")
		return Claims{}, ErrSessionRevoked
	}
	return claims, nil
}

// Logout deletes the session record for the token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.repo.DeleteSession(ctx, token)
}

// PurgeExpired removes session rows that expired before now.
func (s *Service) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.PurgeExpiredSessions(ctx, now)
}

func (s *Service) recordFailure(reason string) {
	if s.cfg.Failures != nil {
		s.cfg.Failures.AuthFailure(reason)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrInvalidSignature):
		return "bad_signature"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed_payload"
	default:
		return "invalid_token"
	}
}
