package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"github.com/dmitrijs2005/erpkeeper/internal/server/codes"
	"github.com/dmitrijs2005/erpkeeper/internal/server/models"
	"github.com/dmitrijs2005/erpkeeper/internal/server/notify"
	"github.com/dmitrijs2005/erpkeeper/internal/server/ratelimit"
)

// Registration is the input of Register.
type Registration struct {
	FullName        string         `json:"fullName" validate:"required"`
	Username        string         `json:"username" validate:"required"`
	Email           string         `json:"email" validate:"required,email"`
	Phone           string         `json:"phone" validate:"required"`
	CompanyName     string         `json:"companyName" validate:"required"`
	Password        string         `json:"password" validate:"required"`
	ConfirmPassword string         `json:"confirmPassword" validate:"required,eqfield=Password"`
	Avatar          *models.Avatar `json:"-"`
}

// Register creates an unverified account and mails it a verification code.
func (s *SessionService) Register(ctx context.Context, in Registration) (res *Result, err error) {
	defer s.finish(ctx, "register", time.Now(), &err)

	trimAll(&in.FullName, &in.Username, &in.Email, &in.Phone, &in.CompanyName)
	in.Email = normalizeEmail(in.Email)
	if err := required("password", in.Password, "confirmPassword", in.ConfirmPassword); err != nil {
		return nil, err
	}
	if err := s.check(in); err != nil {
		return nil, err
	}
	if in.Avatar == nil || in.Avatar.Body == nil {
		return nil, fmt.Errorf("%w: avatar is required", common.ErrValidation)
	}

	existing, err := lookup(s.accounts.FindByEmail(ctx, in.Email))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: email is already registered", common.ErrConflict)
	}
	existing, err = lookup(s.accounts.FindByUsername(ctx, in.Username))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: username is already taken", common.ErrConflict)
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}

	code, err := s.issueCode(ctx, codes.PurposeVerifyEmail)
	if err != nil {
		return nil, err
	}

	// last side effect before the insert
	avatarURL, err := s.assets.Upload(ctx, *in.Avatar)
	if err != nil {
		return nil, err
	}

	a, err := s.accounts.Insert(ctx, &models.Account{
		FullName:                   in.FullName,
		Username:                   in.Username,
		Email:                      in.Email,
		Phone:                      in.Phone,
		CompanyName:                in.CompanyName,
		AvatarURL:                  avatarURL,
		PasswordHash:               hash,
		VerificationToken:          code.Value,
		VerificationTokenExpiresAt: &code.ExpiresAt,
	})
	if err != nil {
		s.log.Warn(ctx, "orphaned avatar", "avatar_url", avatarURL, "error", err)
		return nil, err
	}

	s.log.Info(ctx, "account registered", "account_id", a.ID)
	warning := s.send(ctx, a.Email, notify.KindVerificationCode, notify.Payload{Name: a.FullName, Code: code.Value})
	return &Result{Account: public(a), Warning: warning}, nil
}

// VerifyEmail consumes a verification code. client identifies the caller
// for attempt limiting.
func (s *SessionService) VerifyEmail(ctx context.Context, code, client string) (res *Result, err error) {
	defer s.finish(ctx, "verify_email", time.Now(), &err)

	code = strings.TrimSpace(code)
	if err := required("code", code); err != nil {
		return nil, err
	}
	if err := s.allow(ctx, ratelimit.ScopeVerifyEmail, client); err != nil {
		return nil, err
	}

	a, err := s.accounts.ConsumeVerificationToken(ctx, code, s.now(), false)
	if err != nil {
		return nil, notFoundAs(err, common.ErrInvalidOrExpired)
	}

	s.log.Info(ctx, "email verified", "account_id", a.ID)
	warning := s.send(ctx, a.Email, notify.KindWelcome, notify.Payload{Name: a.FullName})
	return &Result{Account: public(a), Warning: warning}, nil
}

// ResendVerification replaces the verification code of an unverified
// account and sends it again. A pending email change receives the code at
// the new address.
func (s *SessionService) ResendVerification(ctx context.Context, email string) (res *Result, err error) {
	defer s.finish(ctx, "resend_verification", time.Now(), &err)

	email = normalizeEmail(email)
	if err := s.checkEmail("email", email); err != nil {
		return nil, err
	}

	a, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if a.IsVerified {
		return nil, fmt.Errorf("%w: email is already verified", common.ErrValidation)
	}

	code, err := s.issueCode(ctx, codes.PurposeVerifyEmail)
	if err != nil {
		return nil, err
	}
	a, err = s.accounts.UpdateFields(ctx, a.ID, models.AccountPatch{
		VerificationToken:          &code.Value,
		VerificationTokenExpiresAt: &code.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}

	kind, to := notify.KindVerificationCode, a.Email
	if a.PendingEmail != "" {
		kind, to = notify.KindEmailChangeCode, a.PendingEmail
	}
	warning := s.send(ctx, to, kind, notify.Payload{Name: a.FullName, Code: code.Value})
	return &Result{Account: public(a), Warning: warning}, nil
}
