package accounts

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"github.com/dmitrijs2005/erpkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountCols = []string{
	"id", "full_name", "username", "email", "phone", "company_name", "description", "avatar_url",
	"password_hash", "is_verified", "pending_email",
	"verification_token", "verification_token_expires_at",
	"reset_password_token", "reset_password_token_expires_at",
	"refresh_token_hash", "created_at", "updated_at",
}

var created = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func janeRow(verToken any, verExpires any, pending any) *sqlmock.Rows {
	return sqlmock.NewRows(accountCols).AddRow(
		"a-1", "Jane Doe", "jdoe", "jane@x.com", "+1555", "Acme", "", "https://cdn/a.png",
		"$2a$10$hash", false, pending,
		verToken, verExpires,
		nil, nil,
		nil, created, created,
	)
}

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	exp := created.Add(24 * time.Hour)
	q := `(?s)^INSERT\s+INTO\s+accounts\s*\(id,.*verification_token_expires_at\)\s*VALUES\s*\(\$1,.*\$13\)\s*RETURNING\s+created_at,\s*updated_at`

	mock.ExpectQuery(q).
		WithArgs("a-1", "Jane Doe", "jdoe", "jane@x.com", "+1555", "Acme", "", "https://cdn/a.png",
			"$2a$10$hash", false, nil, "123456", exp).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, created))

	a := &models.Account{
		ID: "a-1", FullName: "Jane Doe", Username: "jdoe", Email: "jane@x.com", Phone: "+1555",
		CompanyName: "Acme", AvatarURL: "https://cdn/a.png", PasswordHash: "$2a$10$hash",
		VerificationToken: "123456", VerificationTokenExpiresAt: &exp,
	}
	got, err := repo.Insert(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, created, got.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_AssignsID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+accounts`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, created))

	got, err := repo.Insert(context.Background(), &models.Account{Email: "x@y.z"})
	require.NoError(t, err)
	assert.Len(t, got.ID, 36)
}

func TestInsert_UniqueViolation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+accounts`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"})

	_, err := repo.Insert(context.Background(), &models.Account{ID: "a-1"})
	assert.ErrorIs(t, err, common.ErrConflict)
	assert.ErrorContains(t, err, "accounts_email_key")
}

func TestInsert_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+accounts`).WillReturnError(errors.New("db down"))

	_, err := repo.Insert(context.Background(), &models.Account{ID: "a-1"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindByEmail_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	exp := created.Add(time.Hour)
	mock.ExpectQuery(`(?s)SELECT\s+id,.*FROM\s+accounts\s+WHERE\s+email\s*=\s*\$1`).
		WithArgs("jane@x.com").
		WillReturnRows(janeRow("123456", exp, nil))

	got, err := repo.FindByEmail(context.Background(), "jane@x.com")
	require.NoError(t, err)
	assert.Equal(t, "a-1", got.ID)
	assert.Equal(t, "123456", got.VerificationToken)
	require.NotNil(t, got.VerificationTokenExpiresAt)
	assert.Equal(t, exp, *got.VerificationTokenExpiresAt)
	assert.Nil(t, got.ResetPasswordTokenExpiresAt)
	assert.Empty(t, got.PendingEmail)
}

func TestFindByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestFindByUsername_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`WHERE\s+username\s*=\s*\$1`).
		WithArgs("jdoe").
		WillReturnError(errors.New("db err"))

	_, err := repo.FindByUsername(context.Background(), "jdoe")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindByVerificationToken_ChecksExpiry(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := created.Add(time.Minute)
	mock.ExpectQuery(`WHERE\s+verification_token\s*=\s*\$1\s+AND\s+verification_token_expires_at\s*>\s*\$2`).
		WithArgs("123456", now).
		WillReturnRows(janeRow("123456", created.Add(time.Hour), nil))

	got, err := repo.FindByVerificationToken(context.Background(), "123456", now)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", got.Username)
}

func TestFindByResetToken_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := created
	mock.ExpectQuery(`WHERE\s+reset_password_token\s*=\s*\$1\s+AND\s+reset_password_token_expires_at\s*>\s*\$2`).
		WithArgs("abc123", now).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByResetToken(context.Background(), "abc123", now)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateFields_BuildsSet(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	name, pending, token := "Jane Q", "new@x.com", ""
	verified := false
	patch := models.AccountPatch{FullName: &name, IsVerified: &verified, PendingEmail: &pending, VerificationToken: &token}

	q := `(?s)UPDATE\s+accounts\s+SET\s+full_name\s*=\s*\$1,\s*is_verified\s*=\s*\$2,\s*pending_email\s*=\s*\$3,\s*verification_token\s*=\s*\$4,\s*updated_at\s*=\s*now\(\)\s+WHERE\s+id\s*=\s*\$5\s+RETURNING\s+id,`
	mock.ExpectQuery(q).
		WithArgs("Jane Q", false, "new@x.com", nil, "a-1").
		WillReturnRows(janeRow(nil, nil, "new@x.com"))

	got, err := repo.UpdateFields(context.Background(), "a-1", patch)
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", got.PendingEmail)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateFields_EmptyPatchReads(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`WHERE\s+id\s*=\s*\$1`).WithArgs("a-1").WillReturnRows(janeRow(nil, nil, nil))

	_, err := repo.UpdateFields(context.Background(), "a-1", models.AccountPatch{})
	require.NoError(t, err)
}

func TestUpdateFields_Conflict(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	username := "taken"
	mock.ExpectQuery(`UPDATE\s+accounts\s+SET\s+username`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_username_key"})

	_, err := repo.UpdateFields(context.Background(), "a-1", models.AccountPatch{Username: &username})
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestConsumeVerificationToken(t *testing.T) {
	now := created

	t.Run("any holder", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		q := `(?s)UPDATE\s+accounts\s+SET\s+is_verified\s*=\s*TRUE,\s*email\s*=\s*COALESCE\(pending_email,\s*email\).*WHERE\s+verification_token\s*=\s*\$1\s+AND\s+verification_token_expires_at\s*>\s*\$2\s+RETURNING`
		mock.ExpectQuery(q).WithArgs("123456", now).WillReturnRows(janeRow(nil, nil, nil))

		_, err := repo.ConsumeVerificationToken(context.Background(), "123456", now, false)
		require.NoError(t, err)
	})

	t.Run("pending only", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(`AND\s+pending_email\s+IS\s+NOT\s+NULL\s+RETURNING`).
			WithArgs("123456", now).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.ConsumeVerificationToken(context.Background(), "123456", now, true)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestConsumeResetToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := created
	q := `(?s)UPDATE\s+accounts\s+SET\s+password_hash\s*=\s*\$3,\s*reset_password_token\s*=\s*NULL.*WHERE\s+reset_password_token\s*=\s*\$1`
	mock.ExpectQuery(q).WithArgs("abc123", now, "$2a$10$new").WillReturnRows(janeRow(nil, nil, nil))

	_, err := repo.ConsumeResetToken(context.Background(), "abc123", "$2a$10$new", now)
	require.NoError(t, err)
}

func TestCodeInUse(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+EXISTS`).WithArgs("123456").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	inUse, err := repo.CodeInUse(context.Background(), "123456")
	require.NoError(t, err)
	assert.True(t, inUse)
}

func TestSetRefreshToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `UPDATE\s+accounts\s+SET\s+refresh_token_hash\s*=\s*\$2,\s*updated_at\s*=\s*now\(\)\s+WHERE\s+id\s*=\s*\$1`
	mock.ExpectExec(q).WithArgs("a-1", "fp").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("ghost", "fp").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SetRefreshToken(context.Background(), "a-1", "fp"))
	assert.ErrorIs(t, repo.SetRefreshToken(context.Background(), "ghost", "fp"), common.ErrNotFound)
}

func TestRotateRefreshToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)UPDATE\s+accounts\s+SET\s+refresh_token_hash\s*=\s*\$3.*WHERE\s+id\s*=\s*\$1\s+AND\s+refresh_token_hash\s*=\s*\$2`
	mock.ExpectExec(q).WithArgs("a-1", "old", "new").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("a-1", "old", "newer").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WithArgs("a-1", "new", "x").WillReturnError(errors.New("db down"))

	ok, err := repo.RotateRefreshToken(context.Background(), "a-1", "old", "new")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.RotateRefreshToken(context.Background(), "a-1", "old", "newer")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.RotateRefreshToken(context.Background(), "a-1", "new", "x")
	assert.ErrorContains(t, err, "db error")
}

func TestClearRefreshToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `UPDATE\s+accounts\s+SET\s+refresh_token_hash\s*=\s*NULL`
	mock.ExpectExec(q).WithArgs("a-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("a-1").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ClearRefreshToken(context.Background(), "a-1"))
	require.NoError(t, repo.ClearRefreshToken(context.Background(), "a-1"))
}

func TestListOthers(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(accountCols).
		AddRow("a-2", "Bob", "bob", "bob@x.com", "", "", "", "", "h", true, nil, nil, nil, nil, nil, "fp", created, created).
		AddRow("a-3", "Eve", "eve", "eve@x.com", "", "", "", "", "h", true, nil, nil, nil, nil, nil, nil, created, created)
	mock.ExpectQuery(`WHERE\s+id\s*<>\s*\$1\s+ORDER\s+BY\s+created_at`).WithArgs("a-1").WillReturnRows(rows)

	got, err := repo.ListOthers(context.Background(), "a-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[0].Username)
	assert.Equal(t, "fp", got[0].RefreshTokenHash)
	assert.Equal(t, "eve", got[1].Username)
}

func TestListOthers_QueryError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`WHERE\s+id\s*<>`).WillReturnError(errors.New("boom"))

	_, err := repo.ListOthers(context.Background(), "a-1")
	assert.ErrorContains(t, err, "db error")
}
