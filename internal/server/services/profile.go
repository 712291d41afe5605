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

// ProfileUpdate is the input of UpdateProfile. A nil Description leaves it
// unchanged.
type ProfileUpdate struct {
	FullName    string  `json:"fullName" validate:"required"`
	Username    string  `json:"username" validate:"required"`
	Phone       string  `json:"phone" validate:"required"`
	CompanyName string  `json:"companyName" validate:"required"`
	Description *string `json:"description"`
}

// RequestEmailChange parks newEmail as pending, marks the account unverified
// and mails a confirmation code to the new address.
func (s *SessionService) RequestEmailChange(ctx context.Context, accountID, newEmail string) (res *Result, err error) {
	defer s.finish(ctx, "request_email_change", time.Now(), &err)

	newEmail = normalizeEmail(newEmail)
	if err := s.checkEmail("newEmail", newEmail); err != nil {
		return nil, err
	}

	a, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a.Email == newEmail {
		return nil, fmt.Errorf("%w: newEmail matches the current email", common.ErrValidation)
	}

	owner, err := lookup(s.accounts.FindByEmail(ctx, newEmail))
	if err != nil {
		return nil, err
	}
	if owner != nil {
		return nil, fmt.Errorf("%w: email is already registered", common.ErrConflict)
	}

	code, err := s.issueCode(ctx, codes.PurposeChangeEmail)
	if err != nil {
		return nil, err
	}
	unverified := false
	a, err = s.accounts.UpdateFields(ctx, a.ID, models.AccountPatch{
		PendingEmail:               &newEmail,
		IsVerified:                 &unverified,
		VerificationToken:          &code.Value,
		VerificationTokenExpiresAt: &code.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "email change requested", "account_id", a.ID)
	warning := s.send(ctx, newEmail, notify.KindEmailChangeCode, notify.Payload{Name: a.FullName, Code: code.Value})
	return &Result{Account: public(a), Warning: warning}, nil
}

// ConfirmEmailChange consumes an email-change code, promoting the pending
// address and re-verifying the account in one update.
func (s *SessionService) ConfirmEmailChange(ctx context.Context, code, client string) (res *Result, err error) {
	defer s.finish(ctx, "confirm_email_change", time.Now(), &err)

	code = strings.TrimSpace(code)
	if err := required("code", code); err != nil {
		return nil, err
	}
	if err := s.allow(ctx, ratelimit.ScopeConfirmEmail, client); err != nil {
		return nil, err
	}

	a, err := s.accounts.ConsumeVerificationToken(ctx, code, s.now(), true)
	if err != nil {
		return nil, notFoundAs(err, common.ErrInvalidOrExpired)
	}

	s.log.Info(ctx, "email changed", "account_id", a.ID)
	warning := s.send(ctx, a.Email, notify.KindEmailChanged, notify.Payload{Name: a.FullName})
	return &Result{Account: public(a), Warning: warning}, nil
}

// CurrentAccount returns the account behind an authenticated request.
func (s *SessionService) CurrentAccount(ctx context.Context, accountID string) (a *models.Account, err error) {
	defer s.finish(ctx, "current_account", time.Now(), &err)

	a, err = s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return public(a), nil
}

// UpdateProfile replaces the editable profile fields; the username must stay unique.
func (s *SessionService) UpdateProfile(ctx context.Context, accountID string, in ProfileUpdate) (a *models.Account, err error) {
	defer s.finish(ctx, "update_profile", time.Now(), &err)

	trimAll(&in.FullName, &in.Username, &in.Phone, &in.CompanyName)
	if err := s.check(in); err != nil {
		return nil, err
	}

	owner, err := lookup(s.accounts.FindByUsername(ctx, in.Username))
	if err != nil {
		return nil, err
	}
	if owner != nil && owner.ID != accountID {
		return nil, fmt.Errorf("%w: username is already taken", common.ErrConflict)
	}

	a, err = s.accounts.UpdateFields(ctx, accountID, models.AccountPatch{
		FullName:    &in.FullName,
		Username:    &in.Username,
		Phone:       &in.Phone,
		CompanyName: &in.CompanyName,
		Description: in.Description,
	})
	if err != nil {
		return nil, err
	}
	return public(a), nil
}

// UpdateAvatar uploads a new profile picture and points the account at it.
func (s *SessionService) UpdateAvatar(ctx context.Context, accountID string, avatar *models.Avatar) (a *models.Account, err error) {
	defer s.finish(ctx, "update_avatar", time.Now(), &err)

	if avatar == nil || avatar.Body == nil {
		return nil, fmt.Errorf("%w: avatar is required", common.ErrValidation)
	}
	if _, err := s.accounts.FindByID(ctx, accountID); err != nil {
		return nil, err
	}

	url, err := s.assets.Upload(ctx, *avatar)
	if err != nil {
		return nil, err
	}
	a, err = s.accounts.UpdateFields(ctx, accountID, models.AccountPatch{AvatarURL: &url})
	if err != nil {
		return nil, err
	}
	return public(a), nil
}

// ListOtherAccounts returns every account except the caller's.
func (s *SessionService) ListOtherAccounts(ctx context.Context, accountID string) (list []models.Account, err error) {
	defer s.finish(ctx, "list_other_accounts", time.Now(), &err)

	all, err := s.accounts.ListOthers(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: no other users", common.ErrNotFound)
	}

	list = make([]models.Account, 0, len(all))
	for _, a := range all {
		list = append(list, a.Public())
	}
	return list, nil
}
