package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/pwkeeper/internal/dbx"
	"github.com/dmitrijs2005/pwkeeper/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/pwkeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/pwkeeper/internal/server/repositories/users"
)

// InMemoryRepositoryManager serves every repository from one memory.Store.
// The DB handle is ignored; pair it with dbx.NopTransactor.
type InMemoryRepositoryManager struct {
	store *memory.Store
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{store: memory.NewStore()}
}

// RunMigrations is a no-op: the store has no schema.
func (m *InMemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *InMemoryRepositoryManager) Users(dbx.DBTX) users.Repository {
	return m.store.Users()
}

func (m *InMemoryRepositoryManager) Credentials(dbx.DBTX) credentials.Repository {
	return m.store.Credentials()
}
