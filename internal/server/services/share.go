package services

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/notekeeper/internal/common"
	"github.com/dmitrijs2005/notekeeper/internal/cryptox"
	"github.com/dmitrijs2005/notekeeper/internal/dbx"
	"github.com/dmitrijs2005/notekeeper/internal/logging"
	"github.com/dmitrijs2005/notekeeper/internal/server/models"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/repomanager"
)

const linkIDSize = 16

// ShareLink is a freshly created link. Token is shown once; the server only
// keeps the link id.
type ShareLink struct {
	NoteID string
	Token  string
	URL    string
}

// ShareService creates link-scoped access. The token carries a random link
// id and the link key; the stored row holds the content key sealed under the
// link key, so the token alone decrypts the note.
type ShareService struct {
	db          dbx.Database
	repomanager repomanager.RepositoryManager
	vault       KeyVault
	baseURL     string
	logger      logging.Logger
}

func NewShareService(db dbx.Database, m repomanager.RepositoryManager, vault KeyVault, baseURL string, logger logging.Logger) *ShareService {
	return &ShareService{
		db:          db,
		repomanager: m,
		vault:       vault,
		baseURL:     strings.TrimRight(baseURL, "/"),
		logger:      logger.With("module", "sharelinks"),
	}
}

func encodeShareToken(linkID, linkKey []byte) string {
	return base64.RawURLEncoding.EncodeToString(append(append([]byte{}, linkID...), linkKey...))
}

func decodeShareToken(token string) (linkID string, linkKey []byte, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != linkIDSize+cryptox.LinkKeySize {
		return "", nil, fmt.Errorf("%w: malformed share token", common.ErrorInvalidArgument)
	}
	return hex.EncodeToString(raw[:linkIDSize]), raw[linkIDSize:], nil
}

// CreateLink seals the note's content key under a new link key. A note has
// at most one link; creating a second fails with ErrorConflict.
func (s *ShareService) CreateLink(ctx context.Context, ownerID, noteID string) (*ShareLink, error) {
	if err := normalizeID("note", &noteID); err != nil {
		return nil, err
	}

	linkID := common.GenerateRandByteArray(linkIDSize)
	linkKey, err := cryptox.GenerateLinkKey()
	if err != nil {
		return nil, internal(ctx, s.logger, "link key generation failed", err)
	}
	defer common.WipeByteArray(linkKey)

	err = s.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		note, err := s.repomanager.Notes(tx).GetForUpdate(ctx, noteID)
		if err != nil {
			return err
		}
		if note.OwnerID != ownerID {
			return common.ErrorAccessDenied
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

		sealed, err := cryptox.SealWithLinkKey(linkKey, key)
		if err != nil {
			return err
		}

		_, err = s.repomanager.ShareLinks(tx).Create(ctx, &models.ShareLink{
			LinkID:     hex.EncodeToString(linkID),
			NoteID:     noteID,
			OwnerID:    ownerID,
			WrappedKey: sealed,
		})
		return err
	})
	if err != nil {
		return nil, passKnown(ctx, s.logger, "share link creation failed", err)
	}

	token := encodeShareToken(linkID, linkKey)
	return &ShareLink{
		NoteID: noteID,
		Token:  token,
		URL:    fmt.Sprintf("%s/shared/%s/%s", s.baseURL, noteID, token),
	}, nil
}

// ResolveLink returns the note's content key for a valid token. An unknown
// link id yields ErrorNotFound, a wrong link key ErrorAccessDenied.
func (s *ShareService) ResolveLink(ctx context.Context, noteID, token string) ([]byte, error) {
	if err := normalizeID("note", &noteID); err != nil {
		return nil, err
	}
	linkID, linkKey, err := decodeShareToken(token)
	if err != nil {
		return nil, err
	}

	link, err := s.repomanager.ShareLinks(s.db).GetByNote(ctx, noteID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, internal(ctx, s.logger, "share link lookup failed", err)
	}
	if subtle.ConstantTimeCompare([]byte(link.LinkID), []byte(linkID)) != 1 {
		return nil, common.ErrorNotFound
	}

	key, err := cryptox.OpenWithLinkKey(linkKey, link.WrappedKey)
	if err != nil {
		return nil, denied(ctx, s.logger, "link key mismatch", err, "note_id", noteID)
	}
	return key, nil
}

// ReadShared decrypts a note with nothing but a share token.
func (s *ShareService) ReadShared(ctx context.Context, noteID, token string) (*NoteView, error) {
	key, err := s.ResolveLink(ctx, noteID, token)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	note, err := s.repomanager.Notes(s.db).Get(ctx, noteID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, internal(ctx, s.logger, "note lookup failed", err)
	}
	return decryptNote(ctx, s.logger, key, note, models.PermissionRead, false)
}

// DeleteLink revokes the note's link; only the owner may do so.
func (s *ShareService) DeleteLink(ctx context.Context, ownerID, noteID string) error {
	if err := normalizeID("note", &noteID); err != nil {
		return err
	}

	err := s.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		note, err := s.repomanager.Notes(tx).GetForUpdate(ctx, noteID)
		if err != nil {
			return err
		}
		if note.OwnerID != ownerID {
			return common.ErrorAccessDenied
		}
		return s.repomanager.ShareLinks(tx).Delete(ctx, noteID)
	})
	if err != nil {
		return passKnown(ctx, s.logger, "share link deletion failed", err)
	}
	return nil
}
