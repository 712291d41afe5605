// Package cryptox holds the small cryptographic helpers shared by the server:
// password hashing and refresh-token fingerprints.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when the caller passes 0.
const DefaultCost = 10

// ErrPasswordTooLong is returned for inputs bcrypt would silently truncate.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// HashPassword derives a salted, one-way bcrypt hash of password.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	if len(password) > 72 {
		return "", ErrPasswordTooLong
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
// Malformed hashes compare as a mismatch.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Fingerprint returns the hex SHA-256 digest of a bearer token. Only
// fingerprints are persisted, never the token itself.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// FingerprintMatches compares a presented token against a stored fingerprint
// in constant time. An empty stored value never matches.
func FingerprintMatches(stored, token string) bool {
	if stored == "" {
		return false
	}
	got := Fingerprint(token)
	return subtle.ConstantTimeCompare([]byte(stored), []byte(got)) == 1
}
