package utils

import (
	"crypto/rand"
	"fmt"
)

// GenerateSecret returns n random bytes, used as a signing key when none is configured.
func GenerateSecret(n int) ([]byte, error) {
	secret := make([]byte, n)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return secret, nil
}
