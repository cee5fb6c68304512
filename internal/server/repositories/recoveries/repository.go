package recoveries

import (
	"context"
	"time"

	"github.com/dmitrijs2005/notekeeper/internal/server/models"
)

// Repository keeps at most one pending password-recovery request per user.
type Repository interface {
	Upsert(ctx context.Context, r *models.Recovery) error
	Get(ctx context.Context, userID string) (*models.Recovery, error)
	Delete(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
