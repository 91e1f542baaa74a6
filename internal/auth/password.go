package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrUnknownHasher = errors.New("unknown password hasher")

// PasswordHasher turns plaintext passwords into stored digests and checks them.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

// Hasher names accepted by NewPasswordHasher.
const (
	HasherSHA256 = "sha256"
	HasherBcrypt = "bcrypt"
)

// NewPasswordHasher selects a hasher by name.
func NewPasswordHasher(name string) (PasswordHasher, error) {
	switch name {
	case "", HasherSHA256:
		return SHA256Hasher{}, nil
	case HasherBcrypt:
		return BcryptHasher{Cost: bcrypt.DefaultCost}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHasher, name)
	}
}

// SHA256Hasher produces the legacy unsalted hex digest. The same password
// always maps to the same digest, which keeps existing rows verifiable but
// offers no protection against precomputed tables.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(plain string) (string, error) {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:]), nil
}

func (h SHA256Hasher) Verify(plain, digest string) bool {
	computed, _ := h.Hash(plain)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}

// BcryptHasher is the salted alternative.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(plain string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func (BcryptHasher) Verify(plain, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}
