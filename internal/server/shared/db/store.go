// Package db opens the storage backend selected by the configured DSN and
// bundles it with the matching transactor and repository manager.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/pwkeeper/internal/dbx"
	"github.com/dmitrijs2005/pwkeeper/internal/server/config"
	"github.com/dmitrijs2005/pwkeeper/internal/server/repositories/repomanager"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// MemoryDSN selects the in-memory store.
const MemoryDSN = config.MemoryDSN

// Store is an opened backend. DB is nil for the in-memory store.
type Store struct {
	DB    *sql.DB
	Tx    dbx.Transactor
	Repos repomanager.RepositoryManager
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// Open connects to PostgreSQL, or builds an empty in-memory store when dsn
// is MemoryDSN. The connection is verified with a ping.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == MemoryDSN {
		return &Store{
			Tx:    dbx.NopTransactor{},
			Repos: repomanager.NewInMemoryRepositoryManager(),
		}, nil
	}

	db, err := openDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	return &Store{
		DB:    db,
		Tx:    dbx.NewSQLTransactor(db, nil),
		Repos: repomanager.NewPostgresRepositoryManager(),
	}, nil
}

// Migrate brings the schema up to date. It is a no-op in memory.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.Repos.RunMigrations(ctx, s.DB); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
