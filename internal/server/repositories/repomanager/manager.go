// Package repomanager opens the configured credential-store backend and
// hands out its repositories.
package repomanager

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/erpkeeper/internal/server/config"
	"github.com/dmitrijs2005/erpkeeper/internal/server/repositories/accounts"
)

type RepositoryManager interface {
	Accounts() accounts.Repository
	// Ping reports whether the backend is reachable; used by /readyz.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// New connects to the backend selected by cfg.DatabaseDriver and prepares
// its schema (migrations or indexes).
func New(ctx context.Context, cfg *config.Config) (RepositoryManager, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		db, err := sqlOpen("pgx", cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		m, err := NewPostgresRepositoryManager(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if err := m.Ping(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := m.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return m, nil
	case "mongo":
		return NewMongoRepositoryManager(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case "memory":
		return NewMemoryRepositoryManager(), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
}
