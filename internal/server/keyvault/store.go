package keyvault

import "context"

// Store persists one opaque key record per user id. Implementations must
// only be readable and writable by the server process.
type Store interface {
	// Get returns the record for id or common.ErrorNotFound.
	Get(ctx context.Context, id string) ([]byte, error)
	// Create writes a new record and fails with common.ErrorConflict if one
	// already exists.
	Create(ctx context.Context, id string, data []byte) error
	// Put overwrites an existing record.
	Put(ctx context.Context, id string, data []byte) error
	// Delete removes the record or returns common.ErrorNotFound.
	Delete(ctx context.Context, id string) error
}
