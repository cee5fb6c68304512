package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/notekeeper/internal/common"
	"github.com/dmitrijs2005/notekeeper/internal/cryptox"
	"github.com/dmitrijs2005/notekeeper/internal/dbx"
	"github.com/dmitrijs2005/notekeeper/internal/logging"
	"github.com/dmitrijs2005/notekeeper/internal/server/models"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/repomanager"
)

// AccessService manages the access registry. Every operation runs in one
// transaction holding the note row lock, so concurrent changes to the grants
// of one note are serialized.
type AccessService struct {
	db          dbx.Database
	repomanager repomanager.RepositoryManager
	vault       KeyVault
	logger      logging.Logger
}

func NewAccessService(db dbx.Database, m repomanager.RepositoryManager, vault KeyVault, logger logging.Logger) *AccessService {
	return &AccessService{
		db:          db,
		repomanager: m,
		vault:       vault,
		logger:      logger.With("module", "accesses"),
	}
}

func checkGrantArgs(ownerID string, noteID, granteeID *string) error {
	if err := normalizeID("note", noteID); err != nil {
		return err
	}
	if err := normalizeID("user", granteeID); err != nil {
		return err
	}
	if ownerID == *granteeID {
		return common.ErrorInvalidArgument
	}
	return nil
}

// lockOwnedNote locks the note row and checks that ownerID owns it.
func (s *AccessService) lockOwnedNote(ctx context.Context, tx dbx.DBTX, ownerID, noteID string) (*models.Note, error) {
	note, err := s.repomanager.Notes(tx).GetForUpdate(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note.OwnerID != ownerID {
		return nil, common.ErrorAccessDenied
	}
	return note, nil
}

// Grant gives granteeID access to an owned note: the content key is
// unwrapped with the owner's private key, re-wrapped for the grantee and
// upserted into the registry. Nothing is written unless every step succeeds.
func (s *AccessService) Grant(ctx context.Context, ownerID, noteID, granteeID string, p models.Permission) error {
	if err := checkGrantArgs(ownerID, &noteID, &granteeID); err != nil {
		return err
	}
	if !p.Valid() {
		return common.ErrorInvalidArgument
	}

	err := s.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		note, err := s.lockOwnedNote(ctx, tx, ownerID, noteID)
		if err != nil {
			return err
		}

		grantee, err := s.repomanager.Users(tx).GetByID(ctx, granteeID)
		if err != nil {
			return err
		}
		pub, err := cryptox.ParsePublicKey(grantee.PublicKey)
		if err != nil {
			return internal(ctx, s.logger, "bad stored public key", err, "user_id", granteeID)
		}

		priv, err := s.vault.LoadPrivateKey(ctx, ownerID)
		if err != nil {
			return denied(ctx, s.logger, "owner private key unavailable", err, "user_id", ownerID)
		}
		key, err := cryptox.UnwrapKey(priv, note.OwnerKey)
		if err != nil {
			return denied(ctx, s.logger, "owner key unwrap failed", err, "note_id", noteID)
		}
		defer common.WipeByteArray(key)

		wrapped, err := cryptox.WrapKey(pub, key)
		if err != nil {
			return internal(ctx, s.logger, "re-wrap for grantee failed", err, "note_id", noteID)
		}

		return s.repomanager.Accesses(tx).Upsert(ctx, &models.AccessGrant{
			NoteID:     noteID,
			UserID:     granteeID,
			Permission: p,
			WrappedKey: wrapped,
		})
	})
	if err != nil {
		return passKnown(ctx, s.logger, "grant failed", err)
	}

	s.logger.Info(ctx, "access granted", "note_id", noteID, "grantee_id", granteeID, "permission", p.String())
	return nil
}

// SetPermission changes the permission of an existing grant. The wrapped key
// is left untouched.
func (s *AccessService) SetPermission(ctx context.Context, ownerID, noteID, granteeID string, p models.Permission) error {
	if err := checkGrantArgs(ownerID, &noteID, &granteeID); err != nil {
		return err
	}
	if !p.Valid() {
		return common.ErrorInvalidArgument
	}

	err := s.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.lockOwnedNote(ctx, tx, ownerID, noteID); err != nil {
			return err
		}
		return s.repomanager.Accesses(tx).UpdatePermission(ctx, noteID, granteeID, p)
	})
	if err != nil {
		return passKnown(ctx, s.logger, "permission update failed", err)
	}
	return nil
}

// Revoke deletes the grant row. The grant row is the only place the
// grantee's copy of the content key lives, so nothing is left to unwrap.
func (s *AccessService) Revoke(ctx context.Context, ownerID, noteID, granteeID string) error {
	if err := checkGrantArgs(ownerID, &noteID, &granteeID); err != nil {
		return err
	}

	err := s.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.lockOwnedNote(ctx, tx, ownerID, noteID); err != nil {
			return err
		}
		return s.repomanager.Accesses(tx).Delete(ctx, noteID, granteeID)
	})
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return passKnown(ctx, s.logger, "revoke failed", err)
		}
		return err
	}

	s.logger.Info(ctx, "access revoked", "note_id", noteID, "grantee_id", granteeID)
	return nil
}
