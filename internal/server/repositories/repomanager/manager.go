package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/pwkeeper/internal/dbx"
	"github.com/dmitrijs2005/pwkeeper/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/pwkeeper/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DB handle (the pool or a
// transaction) and owns schema migrations.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Credentials(db dbx.DBTX) credentials.Repository
}
