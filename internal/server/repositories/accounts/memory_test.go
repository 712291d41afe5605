package accounts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"github.com/dmitrijs2005/erpkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seeded(t *testing.T) (*MemoryRepository, *models.Account) {
	t.Helper()
	r := NewMemoryRepository()
	r.now = func() time.Time { return t0 }

	exp := t0.Add(24 * time.Hour)
	a, err := r.Insert(context.Background(), &models.Account{
		FullName: "Jane Doe", Username: "jdoe", Email: "jane@x.com", PasswordHash: "h",
		VerificationToken: "123456", VerificationTokenExpiresAt: &exp,
	})
	require.NoError(t, err)
	return r, a
}

func TestMemory_InsertUniqueness(t *testing.T) {
	r, _ := seeded(t)
	ctx := context.Background()

	_, err := r.Insert(ctx, &models.Account{Username: "other", Email: "jane@x.com"})
	assert.ErrorIs(t, err, common.ErrConflict)

	_, err = r.Insert(ctx, &models.Account{Username: "jdoe", Email: "other@x.com"})
	assert.ErrorIs(t, err, common.ErrConflict)

	_, err = r.Insert(ctx, &models.Account{Username: "bob", Email: "bob@x.com"})
	assert.NoError(t, err)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	r, a := seeded(t)

	got, err := r.FindByID(context.Background(), a.ID)
	require.NoError(t, err)
	got.PasswordHash = "mutated"
	*got.VerificationTokenExpiresAt = time.Time{}

	again, err := r.FindByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "h", again.PasswordHash)
	assert.False(t, again.VerificationTokenExpiresAt.IsZero())
}

func TestMemory_FindByVerificationToken_Expiry(t *testing.T) {
	r, _ := seeded(t)
	ctx := context.Background()

	_, err := r.FindByVerificationToken(ctx, "123456", t0.Add(time.Hour))
	assert.NoError(t, err)

	_, err = r.FindByVerificationToken(ctx, "123456", t0.Add(25*time.Hour))
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = r.FindByVerificationToken(ctx, "", t0)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMemory_ConsumeVerificationToken_Once(t *testing.T) {
	r, _ := seeded(t)
	ctx := context.Background()

	got, err := r.ConsumeVerificationToken(ctx, "123456", t0, false)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)
	assert.Empty(t, got.VerificationToken)
	assert.Nil(t, got.VerificationTokenExpiresAt)

	_, err = r.ConsumeVerificationToken(ctx, "123456", t0, false)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMemory_ConsumeVerificationToken_PromotesPending(t *testing.T) {
	r, a := seeded(t)
	ctx := context.Background()

	_, err := r.ConsumeVerificationToken(ctx, "123456", t0, true)
	assert.ErrorIs(t, err, common.ErrNotFound, "no pending email yet")

	pending, code := "jane@new.com", "654321"
	exp := t0.Add(time.Hour)
	verified := false
	_, err = r.UpdateFields(ctx, a.ID, models.AccountPatch{
		PendingEmail: &pending, IsVerified: &verified,
		VerificationToken: &code, VerificationTokenExpiresAt: &exp,
	})
	require.NoError(t, err)

	got, err := r.ConsumeVerificationToken(ctx, code, t0, true)
	require.NoError(t, err)
	assert.Equal(t, "jane@new.com", got.Email)
	assert.Empty(t, got.PendingEmail)
	assert.True(t, got.IsVerified)
}

func TestMemory_ConsumeVerificationToken_PromotionConflict(t *testing.T) {
	r, a := seeded(t)
	ctx := context.Background()

	_, err := r.Insert(ctx, &models.Account{Username: "bob", Email: "bob@x.com"})
	require.NoError(t, err)

	taken := "bob@x.com"
	_, err = r.UpdateFields(ctx, a.ID, models.AccountPatch{PendingEmail: &taken})
	require.NoError(t, err)

	_, err = r.ConsumeVerificationToken(ctx, "123456", t0, true)
	assert.ErrorIs(t, err, common.ErrConflict)

	still, err := r.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "123456", still.VerificationToken, "failed update must not half-apply")
}

func TestMemory_ConsumeResetToken(t *testing.T) {
	r, a := seeded(t)
	ctx := context.Background()

	code := "aB3dE5"
	exp := t0.Add(time.Hour)
	_, err := r.UpdateFields(ctx, a.ID, models.AccountPatch{ResetPasswordToken: &code, ResetPasswordTokenExpiresAt: &exp})
	require.NoError(t, err)

	_, err = r.ConsumeResetToken(ctx, code, "new-hash", t0.Add(2*time.Hour))
	assert.ErrorIs(t, err, common.ErrNotFound, "expired")

	got, err := r.ConsumeResetToken(ctx, code, "new-hash", t0)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.Empty(t, got.ResetPasswordToken)

	_, err = r.ConsumeResetToken(ctx, code, "again", t0)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMemory_CodeInUse(t *testing.T) {
	r, _ := seeded(t)

	inUse, err := r.CodeInUse(context.Background(), "123456")
	require.NoError(t, err)
	assert.True(t, inUse)

	inUse, err = r.CodeInUse(context.Background(), "000000")
	require.NoError(t, err)
	assert.False(t, inUse)
}

func TestMemory_RefreshRotation(t *testing.T) {
	r, a := seeded(t)
	ctx := context.Background()

	ok, err := r.RotateRefreshToken(ctx, a.ID, "", "fp1")
	require.NoError(t, err)
	assert.False(t, ok, "nothing stored yet")

	require.NoError(t, r.SetRefreshToken(ctx, a.ID, "fp1"))

	ok, err = r.RotateRefreshToken(ctx, a.ID, "fp1", "fp2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.RotateRefreshToken(ctx, a.ID, "fp1", "fp3")
	require.NoError(t, err)
	assert.False(t, ok, "superseded token")

	require.NoError(t, r.ClearRefreshToken(ctx, a.ID))
	require.NoError(t, r.ClearRefreshToken(ctx, a.ID))

	ok, err = r.RotateRefreshToken(ctx, a.ID, "fp2", "fp4")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, r.SetRefreshToken(ctx, "ghost", "x"), common.ErrNotFound)
}

func TestMemory_RotateRefreshToken_Concurrent(t *testing.T) {
	r, a := seeded(t)
	ctx := context.Background()
	require.NoError(t, r.SetRefreshToken(ctx, a.ID, "fp0"))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.RotateRefreshToken(ctx, a.ID, "fp0", "next")
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestMemory_UpdateFields(t *testing.T) {
	r, a := seeded(t)
	ctx := context.Background()

	name, empty := "Jane Q", ""
	got, err := r.UpdateFields(ctx, a.ID, models.AccountPatch{
		FullName: &name, VerificationToken: &empty, VerificationTokenExpiresAt: &time.Time{},
	})
	require.NoError(t, err)
	assert.Equal(t, "Jane Q", got.FullName)
	assert.Empty(t, got.VerificationToken)
	assert.Nil(t, got.VerificationTokenExpiresAt)

	_, err = r.UpdateFields(ctx, "ghost", models.AccountPatch{FullName: &name})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMemory_ListOthers(t *testing.T) {
	r, a := seeded(t)
	ctx := context.Background()

	others, err := r.ListOthers(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, others)

	r.now = func() time.Time { return t0.Add(time.Minute) }
	_, err = r.Insert(ctx, &models.Account{Username: "bob", Email: "bob@x.com"})
	require.NoError(t, err)

	others, err = r.ListOthers(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, "bob", others[0].Username)
}
