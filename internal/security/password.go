package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword derives the stored credential from a plaintext password. The
// hash is opaque to the rest of the system and never leaves it.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func VerifyPassword(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
