// Package password wraps bcrypt hashing and basic complexity checks.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinLength is the minimum accepted password length
const MinLength = 8

// Hash hashes a plaintext password with bcrypt
func Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify compares a plaintext password against a bcrypt hash
func Verify(hashed, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext)) == nil
}

// Validate checks basic complexity requirements
func Validate(plaintext string) error {
	if len(plaintext) < MinLength {
		return fmt.Errorf("password must be at least %d characters", MinLength)
	}
	return nil
}
