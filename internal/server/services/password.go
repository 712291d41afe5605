package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"github.com/dmitrijs2005/erpkeeper/internal/cryptox"
	"github.com/dmitrijs2005/erpkeeper/internal/server/codes"
	"github.com/dmitrijs2005/erpkeeper/internal/server/models"
	"github.com/dmitrijs2005/erpkeeper/internal/server/notify"
	"github.com/dmitrijs2005/erpkeeper/internal/server/ratelimit"
)

type passwordChange struct {
	OldPassword     string `json:"oldPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

type passwordReset struct {
	Code            string `json:"code" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

// ChangePassword replaces the password of a signed-in account. The current
// session stays valid.
func (s *SessionService) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword, confirmPassword string) (err error) {
	defer s.finish(ctx, "change_password", time.Now(), &err)

	if err := required("oldPassword", oldPassword, "newPassword", newPassword, "confirmPassword", confirmPassword); err != nil {
		return err
	}
	if err := s.check(passwordChange{oldPassword, newPassword, confirmPassword}); err != nil {
		return err
	}

	a, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !cryptox.CheckPassword(a.PasswordHash, oldPassword) {
		return common.ErrInvalidCredentials
	}

	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}
	if _, err := s.accounts.UpdateFields(ctx, a.ID, models.AccountPatch{PasswordHash: &hash}); err != nil {
		return err
	}
	s.log.Info(ctx, "password changed", "account_id", a.ID)
	return nil
}

// RequestPasswordReset mails a reset code. Unknown emails fail with
// common.ErrNotFound unless account existence is concealed.
func (s *SessionService) RequestPasswordReset(ctx context.Context, email string) (res *Result, err error) {
	defer s.finish(ctx, "request_password_reset", time.Now(), &err)

	email = normalizeEmail(email)
	if err := s.checkEmail("email", email); err != nil {
		return nil, err
	}

	a, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) && s.opts.ConcealAccountExistence {
			return &Result{}, nil
		}
		return nil, err
	}

	code, err := s.issueCode(ctx, codes.PurposeResetPassword)
	if err != nil {
		return nil, err
	}
	a, err = s.accounts.UpdateFields(ctx, a.ID, models.AccountPatch{
		ResetPasswordToken:          &code.Value,
		ResetPasswordTokenExpiresAt: &code.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}

	warning := s.send(ctx, a.Email, notify.KindPasswordResetCode, notify.Payload{Name: a.FullName, Code: code.Value})
	if s.opts.ConcealAccountExistence {
		return &Result{}, nil
	}
	return &Result{Account: public(a), Warning: warning}, nil
}

// ResetPassword sets a new password for the holder of a live reset code and
// consumes the code in the same update.
func (s *SessionService) ResetPassword(ctx context.Context, code, newPassword, confirmPassword, client string) (res *Result, err error) {
	defer s.finish(ctx, "reset_password", time.Now(), &err)

	code = strings.TrimSpace(code)
	if err := required("code", code, "newPassword", newPassword, "confirmPassword", confirmPassword); err != nil {
		return nil, err
	}
	if err := s.check(passwordReset{code, newPassword, confirmPassword}); err != nil {
		return nil, err
	}
	if err := s.allow(ctx, ratelimit.ScopeResetPassword, client); err != nil {
		return nil, err
	}

	hash, err := s.hash(newPassword)
	if err != nil {
		return nil, err
	}

	a, err := s.accounts.ConsumeResetToken(ctx, code, hash, s.now())
	if err != nil {
		return nil, notFoundAs(err, common.ErrInvalidOrExpired)
	}

	s.log.Info(ctx, "password reset", "account_id", a.ID)
	warning := s.send(ctx, a.Email, notify.KindPasswordResetSuccess, notify.Payload{Name: a.FullName})
	return &Result{Account: public(a), Warning: warning}, nil
}
