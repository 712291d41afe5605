// Package codes generates the one-time codes mailed to account holders:
// email verification, password reset and email-change confirmation.
package codes

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"
)

// Purpose decides the shape of a code.
type Purpose int

const (
	PurposeVerifyEmail Purpose = iota
	PurposeResetPassword
	PurposeChangeEmail
)

const (
	Length       = 6
	digits       = "0123456789"
	alphanumeric = "qwertyuiopasdfghjklzxcvbnmQWERTYUIOPASDFGHJKLZXCVBNM1234567890"
	maxAttempts  = 5
)

// ErrExhausted is returned when no free code was found within the retry budget.
var ErrExhausted = errors.New("could not generate an unused code")

// Code is a generated value with its absolute expiry.
type Code struct {
	Value     string
	ExpiresAt time.Time
}

// Generator draws codes from crypto/rand and stamps them with a fixed TTL.
type Generator struct {
	ttl  time.Duration
	now  func() time.Time
	rand io.Reader
}

func NewGenerator(ttl time.Duration) *Generator {
	return &Generator{ttl: ttl, now: time.Now, rand: rand.Reader}
}

// Generate returns a random string of length runes drawn from alphabet.
func (g *Generator) Generate(length int, alphabet string) (string, error) {
	if length <= 0 || alphabet == "" {
		return "", fmt.Errorf("invalid code shape: length=%d alphabet=%d", length, len(alphabet))
	}

	limit := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(g.rand, limit)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}

// Numeric returns a six digit code without a leading zero (100000-999999).
func (g *Generator) Numeric() (string, error) {
	n, err := rand.Int(g.rand, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return fmt.Sprintf("%d", 100000+n.Int64()), nil
}

// Issue generates a code for purpose. Password reset codes are
// alphanumeric; the email flows use numeric codes.
func (g *Generator) Issue(purpose Purpose) (Code, error) {
	var (
		value string
		err   error
	)
	if purpose == PurposeResetPassword {
		value, err = g.Generate(Length, alphanumeric)
	} else {
		value, err = g.Numeric()
	}
	if err != nil {
		return Code{}, err
	}
	return Code{Value: value, ExpiresAt: g.now().Add(g.ttl)}, nil
}

// InUse reports whether a code value is currently held by some account.
type InUse func(ctx context.Context, value string) (bool, error)

// IssueUnique keeps drawing until inUse reports a free value, giving up
// after a few attempts.
func (g *Generator) IssueUnique(ctx context.Context, purpose Purpose, inUse InUse) (Code, error) {
	for range maxAttempts {
		code, err := g.Issue(purpose)
		if err != nil {
			return Code{}, err
		}
		taken, err := inUse(ctx, code.Value)
		if err != nil {
			return Code{}, err
		}
		if !taken {
			return code, nil
		}
	}
	return Code{}, ErrExhausted
}
