package services

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/notekeeper/internal/common"
	"github.com/dmitrijs2005/notekeeper/internal/cryptox"
	"github.com/dmitrijs2005/notekeeper/internal/dbx"
	"github.com/dmitrijs2005/notekeeper/internal/logging"
	"github.com/dmitrijs2005/notekeeper/internal/server/models"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/statistics"
)

// NoteInput is the plaintext a client submits.
type NoteInput struct {
	Header      string
	Text        string
	Tags        string
	ActiveUntil *time.Time
}

// NoteView is a decrypted note as returned to a reader.
type NoteView struct {
	ID          string
	OwnerID     string
	Header      string
	Text        string
	Tags        string
	CreatedAt   time.Time
	ActiveUntil *time.Time
	EditedAt    *time.Time
	EditedBy    string
	Permission  models.Permission
	IsOwner     bool
}

// Page sizes for List. A zero Limit means DefaultListLimit.
const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// ListOptions selects a page of notes. Tag filters on a substring of the
// decrypted tags field.
type ListOptions struct {
	Page  int
	Limit int
	Tag   string
}

// NoteService stores notes under envelope encryption: each note has its own
// content key, wrapped for the owner on the note row and for grantees in
// the access registry.
type NoteService struct {
	db          dbx.Database
	repomanager repomanager.RepositoryManager
	vault       KeyVault
	logger      logging.Logger
	now         func() time.Time
}

func NewNoteService(db dbx.Database, m repomanager.RepositoryManager, vault KeyVault, logger logging.Logger) *NoteService {
	return &NoteService{
		db:          db,
		repomanager: m,
		vault:       vault,
		logger:      logger.With("module", "notes"),
		now:         time.Now,
	}
}

// checkInput validates the plaintext before anything is encrypted. Header and
// text are required; tags may be empty.
func (s *NoteService) checkInput(in NoteInput) (cryptox.Fields, error) {
	fields := cryptox.Fields{Header: in.Header, Text: in.Text, Tags: in.Tags}
	if strings.TrimSpace(in.Header) == "" || strings.TrimSpace(in.Text) == "" {
		return fields, fmt.Errorf("%w: header and text are required", common.ErrorInvalidArgument)
	}
	if err := cryptox.CheckFieldLimits(fields); err != nil {
		return fields, err
	}
	return fields, s.checkActiveUntil(in.ActiveUntil)
}

func (s *NoteService) checkActiveUntil(t *time.Time) error {
	if t != nil && !t.After(s.now()) {
		return common.ErrorInvalidArgument
	}
	return nil
}

// Create encrypts the note under a fresh content key and wraps that key for
// the owner.
func (s *NoteService) Create(ctx context.Context, ownerID string, in NoteInput) (*NoteView, error) {
	fields, err := s.checkInput(in)
	if err != nil {
		return nil, err
	}

	owner, err := s.repomanager.Users(s.db).GetByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, internal(ctx, s.logger, "owner lookup failed", err)
	}
	pub, err := cryptox.ParsePublicKey(owner.PublicKey)
	if err != nil {
		return nil, internal(ctx, s.logger, "bad stored public key", err, "user_id", ownerID)
	}

	key, err := cryptox.GenerateContentKey()
	if err != nil {
		return nil, internal(ctx, s.logger, "content key generation failed", err)
	}
	defer common.WipeByteArray(key)

	sealed, err := cryptox.EncryptFields(key, fields)
	if err != nil {
		return nil, internal(ctx, s.logger, "encryption failed", err)
	}
	wrapped, err := cryptox.WrapKey(pub, key)
	if err != nil {
		return nil, internal(ctx, s.logger, "key wrap failed", err)
	}

	note := &models.Note{
		OwnerID:     ownerID,
		Header:      sealed.Header,
		Text:        sealed.Text,
		Tags:        sealed.Tags,
		OwnerKey:    wrapped,
		ActiveUntil: in.ActiveUntil,
	}

	err = s.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Notes(tx).Create(ctx, note); err != nil {
			return err
		}
		return s.repomanager.Statistics(tx).Increment(ctx, ownerID, statistics.NotesCreated, 1)
	})
	if err != nil {
		return nil, internal(ctx, s.logger, "failed to store note", err)
	}

	return &NoteView{
		ID:          note.ID,
		OwnerID:     ownerID,
		Header:      in.Header,
		Text:        in.Text,
		Tags:        in.Tags,
		CreatedAt:   note.CreatedAt,
		ActiveUntil: note.ActiveUntil,
		Permission:  models.PermissionReadWrite,
		IsOwner:     true,
	}, nil
}

// Get decrypts a note for userID, who must own it or hold a grant.
func (s *NoteService) Get(ctx context.Context, userID, noteID string) (*NoteView, error) {
	if err := normalizeID("note", &noteID); err != nil {
		return nil, err
	}

	na, err := s.repomanager.Notes(s.db).GetForUser(ctx, noteID, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, internal(ctx, s.logger, "note lookup failed", err)
	}
	if na.WrappedKey == nil {
		return nil, common.ErrorAccessDenied
	}

	priv, err := s.vault.LoadPrivateKey(ctx, userID)
	if err != nil {
		return nil, denied(ctx, s.logger, "private key unavailable", err, "user_id", userID)
	}

	view, err := s.open(ctx, priv, na)
	if err != nil {
		return nil, err
	}

	s.count(ctx, userID, statistics.NotesRead, 1)
	return view, nil
}

// open unwraps the user's copy of the content key and decrypts the note.
func (s *NoteService) open(ctx context.Context, priv *rsa.PrivateKey, na *models.NoteAccess) (*NoteView, error) {
	key, err := cryptox.UnwrapKey(priv, na.WrappedKey)
	if err != nil {
		return nil, denied(ctx, s.logger, "content key unwrap failed", err, "note_id", na.Note.ID)
	}
	defer common.WipeByteArray(key)

	return decryptNote(ctx, s.logger, key, &na.Note, na.Permission, na.IsOwner)
}

func decryptNote(ctx context.Context, logger logging.Logger, key []byte, n *models.Note, p models.Permission, isOwner bool) (*NoteView, error) {
	fields, err := cryptox.DecryptFields(key, &cryptox.SealedFields{Header: n.Header, Text: n.Text, Tags: n.Tags})
	if err != nil {
		return nil, denied(ctx, logger, "note decryption failed", err, "note_id", n.ID)
	}
	return &NoteView{
		ID:          n.ID,
		OwnerID:     n.OwnerID,
		Header:      fields.Header,
		Text:        fields.Text,
		Tags:        fields.Tags,
		CreatedAt:   n.CreatedAt,
		ActiveUntil: n.ActiveUntil,
		EditedAt:    n.EditedAt,
		EditedBy:    n.EditedBy,
		Permission:  p,
		IsOwner:     isOwner,
	}, nil
}

// List returns the notes userID can read, newest first. Tag filtering has
// to happen after decryption, so a filtered listing decrypts every readable
// note and paginates afterwards.
func (s *NoteService) List(ctx context.Context, userID string, opts ListOptions) ([]*NoteView, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	switch {
	case opts.Limit == 0:
		opts.Limit = DefaultListLimit
	case opts.Limit < 0 || opts.Limit > MaxListLimit:
		return nil, fmt.Errorf("%w: limit must be 1 to %d", common.ErrorInvalidArgument, MaxListLimit)
	}

	repo := s.repomanager.Notes(s.db)
	var (
		rows []*models.NoteAccess
		err  error
	)
	if opts.Tag == "" {
		rows, err = repo.ListForUser(ctx, userID, opts.Limit, (opts.Page-1)*opts.Limit)
	} else {
		rows, err = repo.ListForUser(ctx, userID, 0, 0)
	}
	if err != nil {
		return nil, internal(ctx, s.logger, "note listing failed", err)
	}
	if len(rows) == 0 {
		return []*NoteView{}, nil
	}

	priv, err := s.vault.LoadPrivateKey(ctx, userID)
	if err != nil {
		return nil, denied(ctx, s.logger, "private key unavailable", err, "user_id", userID)
	}

	result := make([]*NoteView, 0, len(rows))
	for _, na := range rows {
		view, err := s.open(ctx, priv, na)
		if err != nil {
			// one unreadable note must not hide the rest
			continue
		}
		if opts.Tag != "" && !strings.Contains(view.Tags, opts.Tag) {
			continue
		}
		result = append(result, view)
	}

	if opts.Tag != "" {
		start := (opts.Page - 1) * opts.Limit
		if start >= len(result) {
			return []*NoteView{}, nil
		}
		result = result[start:min(start+opts.Limit, len(result))]
	}

	s.count(ctx, userID, statistics.NotesRead, len(result))
	return result, nil
}

// Update re-encrypts the note with its unchanged content key. The owner and
// read-write grantees may edit; only the owner may move the expiry.
func (s *NoteService) Update(ctx context.Context, userID, noteID string, in NoteInput) (*NoteView, error) {
	if err := normalizeID("note", &noteID); err != nil {
		return nil, err
	}
	fields, err := s.checkInput(in)
	if err != nil {
		return nil, err
	}

	var view *NoteView
	err = s.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		notes := s.repomanager.Notes(tx)
		if _, err := notes.GetForUpdate(ctx, noteID); err != nil {
			return err
		}
		na, err := notes.GetForUser(ctx, noteID, userID)
		if err != nil {
			return err
		}
		if na.WrappedKey == nil || na.Permission != models.PermissionReadWrite {
			return common.ErrorAccessDenied
		}
		if !na.IsOwner && in.ActiveUntil != nil {
			return common.ErrorAccessDenied
		}

		priv, err := s.vault.LoadPrivateKey(ctx, userID)
		if err != nil {
			return denied(ctx, s.logger, "private key unavailable", err, "user_id", userID)
		}
		key, err := cryptox.UnwrapKey(priv, na.WrappedKey)
		if err != nil {
			return denied(ctx, s.logger, "content key unwrap failed", err, "note_id", noteID)
		}
		defer common.WipeByteArray(key)

		sealed, err := cryptox.EncryptFields(key, fields)
		if err != nil {
			return err
		}

		note := na.Note
		note.Header, note.Text, note.Tags = sealed.Header, sealed.Text, sealed.Tags
		if in.ActiveUntil != nil {
			note.ActiveUntil = in.ActiveUntil
		}
		edited := s.now()
		note.EditedAt = &edited
		note.EditedBy = userID

		if err := notes.Update(ctx, &note); err != nil {
			return err
		}

		view = &NoteView{
			ID:          note.ID,
			OwnerID:     note.OwnerID,
			Header:      in.Header,
			Text:        in.Text,
			Tags:        in.Tags,
			CreatedAt:   note.CreatedAt,
			ActiveUntil: note.ActiveUntil,
			EditedAt:    note.EditedAt,
			EditedBy:    note.EditedBy,
			Permission:  na.Permission,
			IsOwner:     na.IsOwner,
		}
		return nil
	})
	if err != nil {
		return nil, passKnown(ctx, s.logger, "note update failed", err)
	}
	return view, nil
}

// Delete removes an owned note together with its grants and share link.
func (s *NoteService) Delete(ctx context.Context, userID, noteID string) error {
	if err := normalizeID("note", &noteID); err != nil {
		return err
	}

	err := s.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		note, err := s.repomanager.Notes(tx).GetForUpdate(ctx, noteID)
		if err != nil {
			return err
		}
		if note.OwnerID != userID {
			return common.ErrorAccessDenied
		}
		if err := deleteNoteCascade(ctx, s.repomanager, tx, noteID); err != nil {
			return err
		}
		return s.repomanager.Statistics(tx).Increment(ctx, userID, statistics.NotesDeleted, 1)
	})
	if err != nil {
		return passKnown(ctx, s.logger, "note deletion failed", err)
	}
	return nil
}

func (s *NoteService) count(ctx context.Context, userID string, c statistics.Counter, n int) {
	if n == 0 {
		return
	}
	if err := s.repomanager.Statistics(s.db).Increment(ctx, userID, c, int64(n)); err != nil {
		s.logger.Warn(ctx, "statistics update failed", "user_id", userID, "counter", string(c), "error", err)
	}
}

// passKnown returns taxonomy errors unchanged and hides everything else
// behind ErrorInternal.
func passKnown(ctx context.Context, logger logging.Logger, msg string, err error) error {
	for _, known := range []error{
		common.ErrorNotFound,
		common.ErrorAccessDenied,
		common.ErrorConflict,
		common.ErrorInvalidArgument,
		common.ErrorExpired,
		common.ErrorUnauthorized,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return internal(ctx, logger, msg, err)
}
