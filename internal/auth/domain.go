package auth

import "time"

// User represents an account that can log in.
type User struct {
	ID           int64
	Email        string
	Username     *string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is the server-side record of an issued token, keyed by the raw token.
type Session struct {
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
	IP        string
	UserAgent string
}
