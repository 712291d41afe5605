// Package accounts is the credential store: persistence for Account records
// with single-statement conditional updates for every token transition.
//
// Lookups that match nothing return common.ErrNotFound; writes that would
// break email or username uniqueness return common.ErrConflict.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/server/models"
)

type Repository interface {
	// Insert stores a new account, assigning an id when a.ID is empty.
	Insert(ctx context.Context, a *models.Account) (*models.Account, error)

	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByUsername(ctx context.Context, username string) (*models.Account, error)

	// FindByVerificationToken and FindByResetToken only match codes whose
	// expiry is after now.
	FindByVerificationToken(ctx context.Context, code string, now time.Time) (*models.Account, error)
	FindByResetToken(ctx context.Context, code string, now time.Time) (*models.Account, error)

	// UpdateFields applies patch atomically and returns the updated account.
	UpdateFields(ctx context.Context, id string, patch models.AccountPatch) (*models.Account, error)

	// ConsumeVerificationToken marks the holder of an unexpired code as
	// verified, promotes a pending email and clears the code, all at once.
	// With requirePending only accounts with a pending email change match.
	ConsumeVerificationToken(ctx context.Context, code string, now time.Time, requirePending bool) (*models.Account, error)

	// ConsumeResetToken replaces the password hash of the holder of an
	// unexpired reset code and clears the code.
	ConsumeResetToken(ctx context.Context, code, passwordHash string, now time.Time) (*models.Account, error)

	// CodeInUse reports whether any account currently holds code as a
	// verification or reset token.
	CodeInUse(ctx context.Context, code string) (bool, error)

	// SetRefreshToken overwrites the stored refresh fingerprint.
	SetRefreshToken(ctx context.Context, id, hash string) error

	// RotateRefreshToken swaps expected for next only if expected is still
	// the stored fingerprint. It reports false when another rotation or a
	// logout got there first.
	RotateRefreshToken(ctx context.Context, id, expected, next string) (bool, error)

	// ClearRefreshToken removes the stored fingerprint. Clearing an already
	// cleared token is not an error.
	ClearRefreshToken(ctx context.Context, id string) error

	// ListOthers returns every account except id, oldest first.
	ListOthers(ctx context.Context, id string) ([]models.Account, error)
}

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*MongoRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
