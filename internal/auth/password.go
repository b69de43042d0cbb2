package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted when provisioning users.
const MinPasswordLength = 8

// ErrWeakPassword reports a password rejected by HashPassword.
var ErrWeakPassword = errors.New("auth: password too short")

// HashPassword derives the bcrypt hash stored in users.password_hash.
func HashPassword(password string) (string, error) {
	if len(strings.TrimSpace(password)) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// comparePassword is swapped in tests.
var comparePassword = bcrypt.CompareHashAndPassword

// dummyHash is compared against when no stored hash exists, so a login for an
// unknown or inactive account costs the same bcrypt work as a wrong password.
var dummyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("libris-dummy-password"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("auth: dummy hash: %v", err))
	}
	return hash
})

func checkPassword(hash, password string) error {
	return comparePassword([]byte(hash), []byte(password))
}

func burnPasswordCheck(password string) {
	_ = comparePassword(dummyHash(), []byte(password))
}
