package services

import (
	"context"

	"github.com/dmitrijs2005/notekeeper/internal/dbx"
	"github.com/dmitrijs2005/notekeeper/internal/logging"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/repomanager"
)

// AdminService holds the operations reserved for administrators.
type AdminService struct {
	db          dbx.Database
	repomanager repomanager.RepositoryManager
	vault       KeyVault
	logger      logging.Logger
}

func NewAdminService(db dbx.Database, m repomanager.RepositoryManager, vault KeyVault, logger logging.Logger) *AdminService {
	return &AdminService{
		db:          db,
		repomanager: m,
		vault:       vault,
		logger:      logger.With("module", "admin"),
	}
}

// DeleteUser removes any user with everything they own.
func (s *AdminService) DeleteUser(ctx context.Context, userID string) error {
	return deleteUser(ctx, s.db, s.repomanager, s.vault, s.logger, userID)
}

// DeleteAllUsers removes every non-admin user in one transaction, then
// deletes their keys in one batch. It returns the number of users removed.
func (s *AdminService) DeleteAllUsers(ctx context.Context) (int, error) {
	var ids []string
	err := s.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		ids, err = s.repomanager.Users(tx).ListNonAdminIDs(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := deleteUserCascade(ctx, s.repomanager, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, passKnown(ctx, s.logger, "bulk user deletion failed", err)
	}

	if err := s.vault.DeleteManyKeys(ctx, ids); err != nil {
		s.logger.Error(ctx, "bulk key deletion failed", "error", err)
	}
	s.logger.Info(ctx, "users deleted", "count", len(ids))
	return len(ids), nil
}

// DeleteNote removes any note through the regular cascade.
func (s *AdminService) DeleteNote(ctx context.Context, noteID string) error {
	if err := normalizeID("note", &noteID); err != nil {
		return err
	}

	err := s.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Notes(tx).GetForUpdate(ctx, noteID); err != nil {
			return err
		}
		return deleteNoteCascade(ctx, s.repomanager, tx, noteID)
	})
	if err != nil {
		return passKnown(ctx, s.logger, "note deletion failed", err)
	}
	s.logger.Info(ctx, "note deleted by admin", "note_id", noteID)
	return nil
}
