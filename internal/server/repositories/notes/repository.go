package notes

import (
	"context"
	"time"

	"github.com/dmitrijs2005/notekeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, note *models.Note) (*models.Note, error)
	Get(ctx context.Context, id string) (*models.Note, error)
	// GetForUpdate locks the note row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.Note, error)
	// GetForUser returns the note together with the key material userID holds
	// for it. NoteAccess.WrappedKey is nil when the user has no access.
	GetForUser(ctx context.Context, id, userID string) (*models.NoteAccess, error)
	// ListForUser returns notes owned by or granted to userID, newest first.
	// A non-positive limit returns everything.
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]*models.NoteAccess, error)
	ListIDsByOwner(ctx context.Context, ownerID string) ([]string, error)
	ListExpired(ctx context.Context, now time.Time) ([]string, error)
	Update(ctx context.Context, note *models.Note) error
	Delete(ctx context.Context, id string) error
}
