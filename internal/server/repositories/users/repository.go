package users

import (
	"context"

	"github.com/dmitrijs2005/notekeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// SetRefreshHash overwrites the stored digest; an empty hash clears it.
	SetRefreshHash(ctx context.Context, id, hash string) error
	// SwapRefreshHash replaces oldHash with newHash only if oldHash is still
	// current. It reports whether the swap happened.
	SwapRefreshHash(ctx context.Context, id, oldHash, newHash string) (bool, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
	ListNonAdminIDs(ctx context.Context) ([]string, error)
}
