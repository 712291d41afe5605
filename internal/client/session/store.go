// Package session persists the CLI's token pair in a local SQLite file so
// consecutive commands share one login.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/erpkeeper/internal/client/migrations"
	"github.com/dmitrijs2005/erpkeeper/internal/dbx"
	"github.com/dmitrijs2005/erpkeeper/internal/filex"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyEmail        = "email"
)

// Tokens is the cached credential pair plus the email it belongs to.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	Email        string
}

// Empty reports whether no refresh token is cached.
func (t Tokens) Empty() bool {
	return t.RefreshToken == ""
}

// SQLiteStore is a key/value table in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// runMigrations is a seam for tests.
var runMigrations = func(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Open creates (if needed) and migrates the database at dsn. A file path's
// parent directory is created as well.
func Open(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if err := filex.EnsureParentDir(dsn); err != nil {
		return nil, fmt.Errorf("session dir: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// one connection keeps ":memory:" databases alive across calls
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session db migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns nil without error when key is absent.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	return get(ctx, s.db, key)
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	return set(ctx, s.db, key, value)
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete metadata[%s]: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM metadata`)
	if err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}
	return nil
}

// Tokens loads the cached pair. Missing keys come back as empty strings.
func (s *SQLiteStore) Tokens(ctx context.Context) (Tokens, error) {
	var t Tokens
	for key, dst := range map[string]*string{
		keyAccessToken:  &t.AccessToken,
		keyRefreshToken: &t.RefreshToken,
		keyEmail:        &t.Email,
	} {
		v, err := s.Get(ctx, key)
		if err != nil {
			return Tokens{}, err
		}
		*dst = string(v)
	}
	return t, nil
}

// SaveTokens replaces the cached pair in one transaction. An empty Email
// keeps the previously stored one.
func (s *SQLiteStore) SaveTokens(ctx context.Context, t Tokens) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := put(ctx, tx, keyAccessToken, t.AccessToken); err != nil {
			return err
		}
		if err := put(ctx, tx, keyRefreshToken, t.RefreshToken); err != nil {
			return err
		}
		if t.Email == "" {
			return nil
		}
		return put(ctx, tx, keyEmail, t.Email)
	})
}

// ClearTokens forgets the pair but keeps the remembered email.
func (s *SQLiteStore) ClearTokens(ctx context.Context) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM metadata WHERE key IN (?, ?)`, keyAccessToken, keyRefreshToken)
		if err != nil {
			return fmt.Errorf("failed to clear tokens: %w", err)
		}
		return nil
	})
}

func get(ctx context.Context, db dbx.DBTX, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return value, nil
}

// put stores a string value; an empty one removes the key.
func put(ctx context.Context, db dbx.DBTX, key, value string) error {
	if value == "" {
		_, err := db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("failed to delete metadata[%s]: %w", key, err)
		}
		return nil
	}
	return set(ctx, db, key, []byte(value))
}

func set(ctx context.Context, db dbx.DBTX, key string, value []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}
