package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	MaxPasswordLen = 72 // bcrypt ignores input past this length
)

// ErrPasswordMismatch is returned when a password does not match its hash
var ErrPasswordMismatch = errors.New("password does not match")

// dummyHash is compared against when the account is unknown so that a miss
// costs the same as a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("guardrail-timing-equaliser"), bcrypt.MinCost)

func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, BcryptCost)
}

// HashPasswordWithCost hashes with an explicit bcrypt cost; tests use bcrypt.MinCost
func HashPasswordWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	if len(password) > MaxPasswordLen {
		return "", fmt.Errorf("password longer than %d bytes", MaxPasswordLen)
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// ComparePassword returns ErrPasswordMismatch on a wrong password and a
// wrapped error when the hash itself is malformed.
func ComparePassword(hashedPassword, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		return fmt.Errorf("compare password: %w", err)
	}
}

// CompareDummy burns one bcrypt comparison without a real hash
func CompareDummy(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
