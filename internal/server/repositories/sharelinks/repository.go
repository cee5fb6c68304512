package sharelinks

import (
	"context"

	"github.com/dmitrijs2005/notekeeper/internal/server/models"
)

// Repository stores at most one share link per note.
type Repository interface {
	// Create fails with common.ErrorConflict if the note already has a link.
	Create(ctx context.Context, link *models.ShareLink) (*models.ShareLink, error)
	GetByNote(ctx context.Context, noteID string) (*models.ShareLink, error)
	// Delete removes the note's link or returns common.ErrorNotFound.
	Delete(ctx context.Context, noteID string) error
	// DeleteByNote removes the note's link if there is one.
	DeleteByNote(ctx context.Context, noteID string) error
}
