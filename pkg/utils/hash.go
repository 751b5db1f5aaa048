package utils

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashEmail returns the hex keyed BLAKE2b-256 digest of the normalised email.
// The same key must be used everywhere a hashed email is looked up.
// key may be empty (unkeyed) or up to 64 bytes.
func HashEmail(key []byte, email string) (string, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return "", err
	}
	h.Write([]byte(NormalizeEmail(email)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// EmailHasher binds a key to HashEmail.
type EmailHasher struct {
	key []byte
}

// NewEmailHasher validates the key once so Hash cannot fail later.
func NewEmailHasher(key string) (*EmailHasher, error) {
	if _, err := blake2b.New256([]byte(key)); err != nil {
		return nil, err
	}
	return &EmailHasher{key: []byte(key)}, nil
}

// Hash returns the redaction hash for email.
func (h *EmailHasher) Hash(email string) string {
	sum, _ := HashEmail(h.key, email)
	return sum
}
