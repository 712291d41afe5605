package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"github.com/dmitrijs2005/erpkeeper/internal/cryptox"
	"github.com/dmitrijs2005/erpkeeper/internal/server/auth"
	"github.com/dmitrijs2005/erpkeeper/internal/server/ratelimit"
)

// Login checks credentials and starts the only live session of the account:
// the stored refresh fingerprint is overwritten, so any older refresh token
// stops working.
func (s *SessionService) Login(ctx context.Context, email, password string) (res *LoginResult, err error) {
	defer s.finish(ctx, "login", time.Now(), &err)

	email = normalizeEmail(email)
	if err := required("email", email, "password", password); err != nil {
		return nil, err
	}
	if err := s.allow(ctx, ratelimit.ScopeLogin, email); err != nil {
		return nil, err
	}

	a, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !a.IsVerified {
		return nil, common.ErrUnverified
	}
	if !cryptox.CheckPassword(a.PasswordHash, password) {
		return nil, common.ErrInvalidCredentials
	}
	s.resetAttempts(ctx, ratelimit.ScopeLogin, email)

	pair, err := s.tokens.IssuePair(a.ID)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.SetRefreshToken(ctx, a.ID, cryptox.Fingerprint(pair.RefreshToken)); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "login succeeded", "account_id", a.ID)
	return &LoginResult{Account: a.Public(), Tokens: pair}, nil
}

// Logout forgets the refresh token of accountID. Logging out twice is fine.
func (s *SessionService) Logout(ctx context.Context, accountID string) (err error) {
	defer s.finish(ctx, "logout", time.Now(), &err)

	if err := s.accounts.ClearRefreshToken(ctx, accountID); err != nil {
		return err
	}
	s.log.Info(ctx, "logged out", "account_id", accountID)
	return nil
}

// RefreshAccessToken exchanges the current refresh token for a new pair.
// The stored fingerprint is swapped with compare-and-swap, so of two
// concurrent refreshes with the same token only one succeeds.
func (s *SessionService) RefreshAccessToken(ctx context.Context, refreshToken string) (pair auth.Pair, err error) {
	defer s.finish(ctx, "refresh", time.Now(), &err)

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return auth.Pair{}, fmt.Errorf("%w: refresh token is missing", common.ErrUnauthorized)
	}

	accountID, err := s.tokens.VerifyAndDecode(auth.KindRefresh, refreshToken)
	if err != nil {
		return auth.Pair{}, err
	}

	a, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return auth.Pair{}, notFoundAs(err, common.ErrInvalidToken)
	}

	presented := cryptox.Fingerprint(refreshToken)
	if !cryptox.FingerprintMatches(a.RefreshTokenHash, refreshToken) {
		s.log.Warn(ctx, "refresh token reuse", "account_id", a.ID)
		return auth.Pair{}, common.ErrTokenReuse
	}

	pair, err = s.tokens.IssuePair(a.ID)
	if err != nil {
		return auth.Pair{}, err
	}

	swapped, err := s.accounts.RotateRefreshToken(ctx, a.ID, presented, cryptox.Fingerprint(pair.RefreshToken))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return auth.Pair{}, common.ErrInvalidToken
		}
		return auth.Pair{}, err
	}
	if !swapped {
		s.log.Warn(ctx, "refresh token reuse", "account_id", a.ID)
		return auth.Pair{}, common.ErrTokenReuse
	}
	return pair, nil
}

// Authenticate resolves the account id carried by an access token.
func (s *SessionService) Authenticate(accessToken string) (string, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return "", common.ErrUnauthorized
	}
	return s.tokens.VerifyAndDecode(auth.KindAccess, accessToken)
}
