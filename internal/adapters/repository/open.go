package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/poyrazK/licensegate/internal/core/ports"
)

const (
	KindPostgres = "postgres"
	KindMemory   = "memory"
)

// Open returns the store named by kind together with a func releasing it.
// The postgres store is pinged and migrated before it is returned.
func Open(ctx context.Context, kind, dsn string) (ports.LicenseRepository, func() error, error) {
	switch kind {
	case KindMemory:
		return NewMemoryRepository(), func() error { return nil }, nil
	case KindPostgres:
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		repo := NewPostgresRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate schema: %w", err)
		}
		return repo, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", kind)
	}
}
