package credentials

import (
	"context"

	"github.com/dmitrijs2005/pwkeeper/internal/server/models"
)

// Repository stores credential rows. An empty userID in List and Count means
// every owner.
type Repository interface {
	Create(ctx context.Context, c *models.Credential) (*models.Credential, error)
	GetByID(ctx context.Context, id string) (*models.Credential, error)
	GetForUser(ctx context.Context, id, userID string) (*models.Credential, error)
	List(ctx context.Context, userID string, skip, limit int) ([]*models.Credential, error)
	Count(ctx context.Context, userID string) (int, error)
	Update(ctx context.Context, c *models.Credential) (*models.Credential, error)
	Delete(ctx context.Context, id string) error
}
