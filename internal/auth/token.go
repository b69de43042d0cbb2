package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// TokenTTL is the fixed validity window of an issued token.
const TokenTTL = 24 * time.Hour

// headerSegment is base64url({"alg":"HS256","typ":"JWT"}).
const headerSegment = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9"

var (
	// ErrInvalidToken reports a token that is not three non-empty segments.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrInvalidSignature reports a signature that does not match the payload.
	ErrInvalidSignature = errors.New("auth: invalid signature")
	// ErrMalformedPayload reports a payload that is not a complete claims object.
	ErrMalformedPayload = errors.New("auth: malformed payload")
	// ErrTokenExpired reports a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")
)

// Claims identifies a user and the token's validity window.
type Claims struct {
	UserID    int64   `json:"user_id"`
	Email     string  `json:"email"`
	Username  *string `json:"username,omitempty"`
	ExpiresAt int64   `json:"exp"`
	IssuedAt  int64   `json:"iat"`
}

// NewClaims builds claims issued at now and expiring TokenTTL later.
func NewClaims(userID int64, email string, username *string, now time.Time) Claims {
	iat := now.Unix()
	c := Claims{
		UserID:    userID,
		Email:     email,
		IssuedAt:  iat,
		ExpiresAt: iat + int64(TokenTTL/time.Second),
	}
	if username != nil {
		name := *username
		c.Username = &name
	}
	return c
}

// UsernameOrEmpty returns the username, or "" when absent.
func (c Claims) UsernameOrEmpty() string {
	if c.Username == nil {
		return ""
	}
	return *c.Username
}

// Expiry returns the expiry as a time.
func (c Claims) Expiry() time.Time {
	return time.Unix(c.ExpiresAt, 0).UTC()
}

type wireClaims struct {
	UserID    *int64  `json:"user_id"`
	Email     *string `json:"email"`
	Username  *string `json:"username"`
	ExpiresAt *int64  `json:"exp"`
	IssuedAt  *int64  `json:"iat"`
}

// TokenService signs and verifies HS256 session tokens with one shared secret.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService constructs a TokenService. A nil clock defaults to time.Now.
func NewTokenService(secret []byte, now func() time.Time) *TokenService {
	if now == nil {
		now = time.Now
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &TokenService{secret: key, now: now}
}

// Issue creates claims for the user at the service clock and signs them.
func (s *TokenService) Issue(userID int64, email string, username *string) (string, Claims, error) {
	claims := NewClaims(userID, email, username, s.now())
	token, err := s.Create(claims)
	if err != nil {
		return "", Claims{}, err
	}
	return token, claims, nil
}

// Create serialises and signs claims as header.payload.signature.
func (s *TokenService) Create(claims Claims) (string, error) {
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	signingInput := headerSegment + "." + EncodeSegment(raw)
	return signingInput + "." + s.sign(signingInput), nil
}

// Validate verifies structure, signature, payload and expiry, in that order.
func (s *TokenService) Validate(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Claims{}, ErrInvalidToken
	}
	signingInput := parts[0] + "." + parts[1]
	expected := s.sign(signingInput)
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return Claims{}, ErrInvalidSignature
	}

	payload, err := DecodeSegment(parts[1])
	if err != nil {
		return Claims{}, ErrMalformedPayload
	}
	claims, err := decodeClaims(payload)
	if err != nil {
		return Claims{}, err
	}
	if claims.ExpiresAt < s.now().Unix() {
		return Claims{}, ErrTokenExpired
	}
	return claims, nil
}

func (s *TokenService) sign(signingInput string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(signingInput))
	return EncodeSegment(mac.Sum(nil))
}

func decodeClaims(payload []byte) (Claims, error) {
	var wire wireClaims
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&wire); err != nil {
		return Claims{}, ErrMalformedPayload
	}
	if wire.UserID == nil || wire.Email == nil || wire.ExpiresAt == nil || wire.IssuedAt == nil {
		return Claims{}, ErrMalformedPayload
	}
	claims := Claims{
		UserID:    *wire.UserID,
		Email:     *wire.Email,
		ExpiresAt: *wire.ExpiresAt,
		IssuedAt:  *wire.IssuedAt,
	}
	if wire.Username != nil {
		name := *wire.Username
		claims.Username = &name
	}
	return claims, nil
}

// IsTokenError reports whether err is one of the client-caused token failures.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrMalformedEncoding)
}
