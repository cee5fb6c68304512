package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notekeeper/internal/common"
	"github.com/dmitrijs2005/notekeeper/internal/dbx"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/repomanager"
)

// deleteNoteCascade removes a note with all of its grants and its share link.
// It is the only note deletion path and must run inside a transaction.
func deleteNoteCascade(ctx context.Context, m repomanager.RepositoryManager, tx dbx.DBTX, noteID string) error {
	if err := m.Accesses(tx).DeleteByNote(ctx, noteID); err != nil {
		return fmt.Errorf("delete grants: %w", err)
	}
	if err := m.ShareLinks(tx).DeleteByNote(ctx, noteID); err != nil {
		return fmt.Errorf("delete share link: %w", err)
	}
	if err := m.Notes(tx).Delete(ctx, noteID); err != nil {
		return err
	}
	return nil
}

// deleteUserCascade removes a user's notes (through deleteNoteCascade), the
// grants they received and the user row. Key material is removed by the
// caller once the transaction has committed.
func deleteUserCascade(ctx context.Context, m repomanager.RepositoryManager, tx dbx.DBTX, userID string) error {
	ids, err := m.Notes(tx).ListIDsByOwner(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := deleteNoteCascade(ctx, m, tx, id); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
	}
	if err := m.Accesses(tx).DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("delete received grants: %w", err)
	}
	return m.Users(tx).Delete(ctx, userID)
}
