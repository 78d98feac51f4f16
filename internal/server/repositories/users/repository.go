package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/pwkeeper/internal/server/models"
)

// Repository stores accounts. Writes touch only the columns they name, so
// concurrent writers of different columns never overwrite each other.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetByIDForUpdate reads the row and holds it locked until the surrounding
	// transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context, skip, limit int) ([]*models.User, error)
	Count(ctx context.Context) (int, error)
	// Update writes the profile columns: username, email and the active and
	// superuser flags.
	Update(ctx context.Context, user *models.User) (*models.User, error)
	SetPassword(ctx context.Context, id, hash string) error
	SetOTP(ctx context.Context, id, secret string, enabled bool) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}
