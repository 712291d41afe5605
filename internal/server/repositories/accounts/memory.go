package accounts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"github.com/dmitrijs2005/erpkeeper/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps accounts in a map guarded by one mutex, which
// makes every method atomic. It enforces the same uniqueness rules as the
// database backends and is used for local runs and tests.
type MemoryRepository struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: make(map[string]*models.Account), now: time.Now}
}

func clone(a *models.Account) *models.Account {
	c := *a
	if a.VerificationTokenExpiresAt != nil {
		t := *a.VerificationTokenExpiresAt
		c.VerificationTokenExpiresAt = &t
	}
	if a.ResetPasswordTokenExpiresAt != nil {
		t := *a.ResetPasswordTokenExpiresAt
		c.ResetPasswordTokenExpiresAt = &t
	}
	return &c
}

// conflict reports whether candidate would collide with another account.
// Callers hold mu.
func (r *MemoryRepository) conflict(candidate *models.Account) error {
	for id, a := range r.accounts {
		if id == candidate.ID {
			continue
		}
		switch {
		case a.Email == candidate.Email:
			return fmt.Errorf("%w: email", common.ErrConflict)
		case a.Username == candidate.Username:
			return fmt.Errorf("%w: username", common.ErrConflict)
		case candidate.VerificationToken != "" && a.VerificationToken == candidate.VerificationToken:
			return fmt.Errorf("%w: verification_token", common.ErrConflict)
		case candidate.ResetPasswordToken != "" && a.ResetPasswordToken == candidate.ResetPasswordToken:
			return fmt.Errorf("%w: reset_password_token", common.ErrConflict)
		}
	}
	return nil
}

func (r *MemoryRepository) Insert(ctx context.Context, a *models.Account) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, ok := r.accounts[a.ID]; ok {
		return nil, fmt.Errorf("%w: id", common.ErrConflict)
	}
	if err := r.conflict(a); err != nil {
		return nil, err
	}

	now := r.now()
	a.CreatedAt, a.UpdatedAt = now, now
	r.accounts[a.ID] = clone(a)
	return a, nil
}

func (r *MemoryRepository) find(match func(*models.Account) bool) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accounts {
		if match(a) {
			return clone(a), nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.ID == id })
}

func (r *MemoryRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.Email == email })
}

func (r *MemoryRepository) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.Username == username })
}

func live(token string, expires *time.Time, code string, now time.Time) bool {
	return token != "" && token == code && expires != nil && expires.After(now)
}

func (r *MemoryRepository) FindByVerificationToken(ctx context.Context, code string, now time.Time) (*models.Account, error) {
	return r.find(func(a *models.Account) bool {
		return live(a.VerificationToken, a.VerificationTokenExpiresAt, code, now)
	})
}

func (r *MemoryRepository) FindByResetToken(ctx context.Context, code string, now time.Time) (*models.Account, error) {
	return r.find(func(a *models.Account) bool {
		return live(a.ResetPasswordToken, a.ResetPasswordTokenExpiresAt, code, now)
	})
}

// update applies fn to a copy of the first matching account and stores it
// only when the result passes the uniqueness checks.
func (r *MemoryRepository) update(match func(*models.Account) bool, fn func(*models.Account)) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, a := range r.accounts {
		if !match(a) {
			continue
		}
		next := clone(a)
		fn(next)
		next.UpdatedAt = r.now()
		if err := r.conflict(next); err != nil {
			return nil, err
		}
		r.accounts[id] = next
		return clone(next), nil
	}
	return nil, common.ErrNotFound
}

func (r *MemoryRepository) byID(id string) func(*models.Account) bool {
	return func(a *models.Account) bool { return a.ID == id }
}

func (r *MemoryRepository) UpdateFields(ctx context.Context, id string, patch models.AccountPatch) (*models.Account, error) {
	return r.update(r.byID(id), func(a *models.Account) { applyPatch(a, patch) })
}

func applyPatch(a *models.Account, p models.AccountPatch) {
	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setTime := func(dst **time.Time, v *time.Time) {
		if v == nil {
			return
		}
		if v.IsZero() {
			*dst = nil
			return
		}
		t := *v
		*dst = &t
	}

	setStr(&a.FullName, p.FullName)
	setStr(&a.Username, p.Username)
	setStr(&a.Email, p.Email)
	setStr(&a.Phone, p.Phone)
	setStr(&a.CompanyName, p.CompanyName)
	setStr(&a.Description, p.Description)
	setStr(&a.AvatarURL, p.AvatarURL)
	if p.IsVerified != nil {
		a.IsVerified = *p.IsVerified
	}
	setStr(&a.PendingEmail, p.PendingEmail)
	setStr(&a.PasswordHash, p.PasswordHash)
	setStr(&a.VerificationToken, p.VerificationToken)
	setTime(&a.VerificationTokenExpiresAt, p.VerificationTokenExpiresAt)
	setStr(&a.ResetPasswordToken, p.ResetPasswordToken)
	setTime(&a.ResetPasswordTokenExpiresAt, p.ResetPasswordTokenExpiresAt)
}

func (r *MemoryRepository) ConsumeVerificationToken(ctx context.Context, code string, now time.Time, requirePending bool) (*models.Account, error) {
	match := func(a *models.Account) bool {
		if requirePending && a.PendingEmail == "" {
			return false
		}
		return live(a.VerificationToken, a.VerificationTokenExpiresAt, code, now)
	}
	return r.update(match, func(a *models.Account) {
		a.IsVerified = true
		if a.PendingEmail != "" {
			a.Email = a.PendingEmail
			a.PendingEmail = ""
		}
		a.VerificationToken = ""
		a.VerificationTokenExpiresAt = nil
	})
}

func (r *MemoryRepository) ConsumeResetToken(ctx context.Context, code, passwordHash string, now time.Time) (*models.Account, error) {
	match := func(a *models.Account) bool {
		return live(a.ResetPasswordToken, a.ResetPasswordTokenExpiresAt, code, now)
	}
	return r.update(match, func(a *models.Account) {
		a.PasswordHash = passwordHash
		a.ResetPasswordToken = ""
		a.ResetPasswordTokenExpiresAt = nil
	})
}

func (r *MemoryRepository) CodeInUse(ctx context.Context, code string) (bool, error) {
	_, err := r.find(func(a *models.Account) bool {
		return a.VerificationToken == code || a.ResetPasswordToken == code
	})
	if err == common.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r *MemoryRepository) SetRefreshToken(ctx context.Context, id, hash string) error {
	_, err := r.update(r.byID(id), func(a *models.Account) { a.RefreshTokenHash = hash })
	return err
}

func (r *MemoryRepository) RotateRefreshToken(ctx context.Context, id, expected, next string) (bool, error) {
	match := func(a *models.Account) bool {
		return a.ID == id && a.RefreshTokenHash != "" && a.RefreshTokenHash == expected
	}
	_, err := r.update(match, func(a *models.Account) { a.RefreshTokenHash = next })
	if err == common.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r *MemoryRepository) ClearRefreshToken(ctx context.Context, id string) error {
	_, err := r.update(r.byID(id), func(a *models.Account) { a.RefreshTokenHash = "" })
	return err
}

func (r *MemoryRepository) ListOthers(ctx context.Context, id string) ([]models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		if a.ID != id {
			out = append(out, *clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
