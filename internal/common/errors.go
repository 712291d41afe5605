// Package common defines shared constants and sentinel errors used across
// the erpkeeper server and CLI. Callers should use errors.Is to match these
// values; services wrap them with a human readable detail.
package common

import "errors"

var (
	// Input errors.
	ErrValidation = errors.New("validation error")

	// Repository-level errors.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")

	// Credential errors.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnverified         = errors.New("account is not verified")
	ErrInvalidOrExpired   = errors.New("invalid or expired code")

	// Token errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenReuse   = errors.New("refresh token is expired or used")

	// Collaborator errors.
	ErrUpload      = errors.New("upload failed")
	ErrRateLimited = errors.New("too many attempts")

	ErrInternal = errors.New("internal error")
)

var taxonomy = []error{
	ErrValidation, ErrNotFound, ErrConflict,
	ErrInvalidCredentials, ErrUnverified, ErrInvalidOrExpired,
	ErrUnauthorized, ErrInvalidToken, ErrTokenExpired, ErrTokenReuse,
	ErrUpload, ErrRateLimited, ErrInternal,
}

// Known reports whether err wraps one of the sentinels above.
func Known(err error) bool {
	for _, e := range taxonomy {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
