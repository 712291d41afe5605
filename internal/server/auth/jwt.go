// Package auth issues and verifies the signed tokens that carry an account
// id: short-lived access tokens and longer-lived refresh tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind tells access and refresh tokens apart inside the claims.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

const issuer = "erpkeeper"

// Claims is the JWT payload. The account id travels as the subject.
type Claims struct {
	jwt.RegisteredClaims
	Kind TokenKind `json:"kind"`
}

// TokenService signs tokens with HS256. Access and refresh tokens use
// separate secrets, so one can never be replayed as the other.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenService signs access and refresh tokens with separate HMAC secrets.
func NewTokenService(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// Pair is an access token together with its refresh token.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (s *TokenService) IssueAccessToken(accountID string) (string, error) {
	return s.issue(accountID, KindAccess)
}

func (s *TokenService) IssueRefreshToken(accountID string) (string, error) {
	return s.issue(accountID, KindRefresh)
}

// IssuePair issues a fresh access and refresh token for accountID.
func (s *TokenService) IssuePair(accountID string) (Pair, error) {
	access, err := s.IssueAccessToken(accountID)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := s.IssueRefreshToken(accountID)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *TokenService) issue(accountID string, kind TokenKind) (string, error) {
	secret, ttl := s.keyFor(kind)
	now := s.now()

	// A unique ID keeps two refresh tokens issued within the same second distinct.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   accountID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind: kind,
	})

	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// VerifyAndDecode checks the signature, expiry and kind of token and returns
// the account id it was issued for. Every failure wraps common.ErrInvalidToken;
// expiry additionally wraps common.ErrTokenExpired.
func (s *TokenService) VerifyAndDecode(kind TokenKind, tokenString string) (string, error) {
	secret, _ := s.keyFor(kind)
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: %w", common.ErrInvalidToken, common.ErrTokenExpired)
		}
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Kind != kind || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Subject, nil
}

func (s *TokenService) keyFor(kind TokenKind) ([]byte, time.Duration) {
	if kind == KindRefresh {
		return s.refreshSecret, s.refreshTTL
	}
	return s.accessSecret, s.accessTTL
}
