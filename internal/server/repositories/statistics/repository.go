package statistics

import (
	"context"

	"github.com/dmitrijs2005/notekeeper/internal/server/models"
)

// Counter names one of the per-user counters.
type Counter string

const (
	NotesCreated Counter = "notes_created"
	NotesRead    Counter = "notes_read"
	NotesDeleted Counter = "notes_deleted"
)

type Repository interface {
	Create(ctx context.Context, userID string) error
	Get(ctx context.Context, userID string) (*models.Statistics, error)
	// Increment adds n to counter c.
	Increment(ctx context.Context, userID string, c Counter, n int64) error
}
