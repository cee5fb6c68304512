package accesses

import (
	"context"

	"github.com/dmitrijs2005/notekeeper/internal/server/models"
)

type Repository interface {
	// Upsert creates the grant or replaces permission and wrapped key of an
	// existing one.
	Upsert(ctx context.Context, grant *models.AccessGrant) error
	Get(ctx context.Context, noteID, userID string) (*models.AccessGrant, error)
	// UpdatePermission changes only the permission column.
	UpdatePermission(ctx context.Context, noteID, userID string, p models.Permission) error
	Delete(ctx context.Context, noteID, userID string) error
	DeleteByNote(ctx context.Context, noteID string) error
	DeleteByUser(ctx context.Context, userID string) error
}
