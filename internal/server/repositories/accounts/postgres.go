package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"github.com/dmitrijs2005/erpkeeper/internal/dbx"
	"github.com/dmitrijs2005/erpkeeper/internal/server/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const columns = `id, full_name, username, email, phone, company_name, description, avatar_url,
		 password_hash, is_verified, pending_email,
		 verification_token, verification_token_expires_at,
		 reset_password_token, reset_password_token_expires_at,
		 refresh_token_hash, created_at, updated_at`

// PostgresRepository stores accounts in the accounts table.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository works on a pool or a transaction.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*models.Account, error) {
	var (
		a                                   models.Account
		pending, verToken, resetToken, hash sql.NullString
		verExpires, resetExpires            sql.NullTime
	)

	err := row.Scan(&a.ID, &a.FullName, &a.Username, &a.Email, &a.Phone, &a.CompanyName, &a.Description, &a.AvatarURL,
		&a.PasswordHash, &a.IsVerified, &pending,
		&verToken, &verExpires,
		&resetToken, &resetExpires,
		&hash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.PendingEmail = pending.String
	a.VerificationToken = verToken.String
	a.ResetPasswordToken = resetToken.String
	a.RefreshTokenHash = hash.String
	if verExpires.Valid {
		a.VerificationTokenExpiresAt = &verExpires.Time
	}
	if resetExpires.Valid {
		a.ResetPasswordTokenExpiresAt = &resetExpires.Time
	}
	return &a, nil
}

// mapError converts driver errors into the package's sentinel errors.
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", common.ErrConflict, pgErr.ConstraintName)
	}
	return fmt.Errorf("db error: %w", err)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, args ...any) (*models.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, a *models.Account) (*models.Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO accounts (id, full_name, username, email, phone, company_name, description, avatar_url,
		 password_hash, is_verified, pending_email, verification_token, verification_token_expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		a.ID, a.FullName, a.Username, a.Email, a.Phone, a.CompanyName, a.Description, a.AvatarURL,
		a.PasswordHash, a.IsVerified, nullString(a.PendingEmail),
		nullString(a.VerificationToken), nullTime(a.VerificationTokenExpiresAt),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}

	return a, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return r.queryOne(ctx, `SELECT `+columns+` FROM accounts WHERE id = $1`, id)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.queryOne(ctx, `SELECT `+columns+` FROM accounts WHERE email = $1`, email)
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.queryOne(ctx, `SELECT `+columns+` FROM accounts WHERE username = $1`, username)
}

func (r *PostgresRepository) FindByVerificationToken(ctx context.Context, code string, now time.Time) (*models.Account, error) {
	return r.queryOne(ctx,
		`SELECT `+columns+` FROM accounts
		 WHERE verification_token = $1 AND verification_token_expires_at > $2`, code, now)
}

func (r *PostgresRepository) FindByResetToken(ctx context.Context, code string, now time.Time) (*models.Account, error) {
	return r.queryOne(ctx,
		`SELECT `+columns+` FROM accounts
		 WHERE reset_password_token = $1 AND reset_password_token_expires_at > $2`, code, now)
}

func (r *PostgresRepository) UpdateFields(ctx context.Context, id string, patch models.AccountPatch) (*models.Account, error) {
	sets, args := patchAssignments(patch)
	if len(sets) == 0 {
		return r.FindByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE accounts SET %s, updated_at = now() WHERE id = $%d RETURNING `+columns,
		strings.Join(sets, ", "), len(args))

	return r.queryOne(ctx, query, args...)
}

// patchAssignments renders the non-nil fields of patch as "col = $n"
// fragments in a fixed column order.
func patchAssignments(p models.AccountPatch) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.FullName != nil {
		add("full_name", *p.FullName)
	}
	if p.Username != nil {
		add("username", *p.Username)
	}
	if p.Email != nil {
		add("email", *p.Email)
	}
	if p.Phone != nil {
		add("phone", *p.Phone)
	}
	if p.CompanyName != nil {
		add("company_name", *p.CompanyName)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.AvatarURL != nil {
		add("avatar_url", *p.AvatarURL)
	}
	if p.IsVerified != nil {
		add("is_verified", *p.IsVerified)
	}
	if p.PendingEmail != nil {
		add("pending_email", nullString(*p.PendingEmail))
	}
	if p.PasswordHash != nil {
		add("password_hash", *p.PasswordHash)
	}
	if p.VerificationToken != nil {
		add("verification_token", nullString(*p.VerificationToken))
	}
	if p.VerificationTokenExpiresAt != nil {
		add("verification_token_expires_at", nullTime(p.VerificationTokenExpiresAt))
	}
	if p.ResetPasswordToken != nil {
		add("reset_password_token", nullString(*p.ResetPasswordToken))
	}
	if p.ResetPasswordTokenExpiresAt != nil {
		add("reset_password_token_expires_at", nullTime(p.ResetPasswordTokenExpiresAt))
	}
	return sets, args
}

func (r *PostgresRepository) ConsumeVerificationToken(ctx context.Context, code string, now time.Time, requirePending bool) (*models.Account, error) {
	query :=
		`UPDATE accounts
		 SET is_verified = TRUE,
		     email = COALESCE(pending_email, email),
		     pending_email = NULL,
		     verification_token = NULL,
		     verification_token_expires_at = NULL,
		     updated_at = now()
		 WHERE verification_token = $1 AND verification_token_expires_at > $2`
	if requirePending {
		query += ` AND pending_email IS NOT NULL`
	}
	query += ` RETURNING ` + columns

	return r.queryOne(ctx, query, code, now)
}

func (r *PostgresRepository) ConsumeResetToken(ctx context.Context, code, passwordHash string, now time.Time) (*models.Account, error) {
	query :=
		`UPDATE accounts
		 SET password_hash = $3,
		     reset_password_token = NULL,
		     reset_password_token_expires_at = NULL,
		     updated_at = now()
		 WHERE reset_password_token = $1 AND reset_password_token_expires_at > $2
		 RETURNING ` + columns

	return r.queryOne(ctx, query, code, now, passwordHash)
}

func (r *PostgresRepository) CodeInUse(ctx context.Context, code string) (bool, error) {
	query :=
		`SELECT EXISTS (
		   SELECT 1 FROM accounts WHERE verification_token = $1 OR reset_password_token = $1
		 )`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) SetRefreshToken(ctx context.Context, id, hash string) error {
	n, err := dbx.ExecAffected(ctx, r.db,
		`UPDATE accounts SET refresh_token_hash = $2, updated_at = now() WHERE id = $1`, id, nullString(hash))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) RotateRefreshToken(ctx context.Context, id, expected, next string) (bool, error) {
	n, err := dbx.ExecAffected(ctx, r.db,
		`UPDATE accounts SET refresh_token_hash = $3, updated_at = now()
		 WHERE id = $1 AND refresh_token_hash = $2`, id, expected, next)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) ClearRefreshToken(ctx context.Context, id string) error {
	n, err := dbx.ExecAffected(ctx, r.db,
		`UPDATE accounts SET refresh_token_hash = NULL, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ListOthers(ctx context.Context, id string) ([]models.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM accounts WHERE id <> $1 ORDER BY created_at`, id)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
