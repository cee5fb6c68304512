// Package notes provides PostgreSQL-backed storage for encrypted notes.
package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/notekeeper/internal/common"
	"github.com/dmitrijs2005/notekeeper/internal/dbx"
	"github.com/dmitrijs2005/notekeeper/internal/server/models"
)

// PostgresRepository implements note storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const noteColumns = `n.id, n.owner_id, n.header, n.text, n.tags, n.owner_key, n.created_at, n.active_until, n.edited_at, n.edited_by`

type scanner interface {
	Scan(dest ...any) error
}

// scanNote reads noteColumns followed by extra destinations.
func scanNote(s scanner, extra ...any) (*models.Note, error) {
	n := &models.Note{}
	var activeUntil, editedAt sql.NullTime
	var editedBy sql.NullString

	dest := []any{&n.ID, &n.OwnerID, &n.Header, &n.Text, &n.Tags, &n.OwnerKey,
		&n.CreatedAt, &activeUntil, &editedAt, &editedBy}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if activeUntil.Valid {
		n.ActiveUntil = &activeUntil.Time
	}
	if editedAt.Valid {
		n.EditedAt = &editedAt.Time
	}
	n.EditedBy = editedBy.String
	return n, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (r *PostgresRepository) Create(ctx context.Context, note *models.Note) (*models.Note, error) {
	query :=
		`INSERT INTO notes (owner_id, header, text, tags, owner_key, active_until)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		note.OwnerID, note.Header, note.Text, note.Tags, note.OwnerKey, nullTime(note.ActiveUntil)).
		Scan(&note.ID, &note.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return note, nil
}

func (r *PostgresRepository) get(ctx context.Context, query, id string) (*models.Note, error) {
	n, err := scanNote(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Note, error) {
	return r.get(ctx, `SELECT `+noteColumns+` FROM notes n WHERE n.id = $1`, id)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.Note, error) {
	return r.get(ctx, `SELECT `+noteColumns+` FROM notes n WHERE n.id = $1 FOR UPDATE`, id)
}

// accessColumns resolves the key and permission of user $1: the owner key for
// the owner, the grant row otherwise.
const accessColumns = `,
		CASE WHEN n.owner_id = $1 THEN n.owner_key ELSE a.wrapped_key END,
		CASE WHEN n.owner_id = $1 THEN 2 ELSE COALESCE(a.permission, 0) END,
		n.owner_id = $1
		FROM notes n
		LEFT JOIN accesses a ON a.note_id = n.id AND a.user_id = $1`

func scanNoteAccess(s scanner) (*models.NoteAccess, error) {
	na := &models.NoteAccess{}
	var perm int
	n, err := scanNote(s, &na.WrappedKey, &perm, &na.IsOwner)
	if err != nil {
		return nil, err
	}
	na.Note = *n
	na.Permission = models.Permission(perm)
	return na, nil
}

func (r *PostgresRepository) GetForUser(ctx context.Context, id, userID string) (*models.NoteAccess, error) {
	query := `SELECT ` + noteColumns + accessColumns + `
		WHERE n.id = $2`

	na, err := scanNoteAccess(r.db.QueryRowContext(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return na, nil
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*models.NoteAccess, error) {
	query := `SELECT ` + noteColumns + accessColumns + `
		WHERE n.owner_id = $1 OR a.user_id IS NOT NULL
		ORDER BY n.created_at DESC, n.id
		LIMIT $2 OFFSET $3`

	// LIMIT NULL means no limit in PostgreSQL
	lim := sql.NullInt64{Int64: int64(limit), Valid: limit > 0}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, query, userID, lim, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to select notes: %w", err)
	}
	defer rows.Close()

	var result []*models.NoteAccess
	for rows.Next() {
		na, err := scanNoteAccess(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, na)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) listIDs(ctx context.Context, query string, arg any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}

func (r *PostgresRepository) ListIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	return r.listIDs(ctx, `SELECT id FROM notes WHERE owner_id = $1`, ownerID)
}

// ListExpired returns ids of notes whose active-until moment is not after now.
func (r *PostgresRepository) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	return r.listIDs(ctx, `SELECT id FROM notes WHERE active_until IS NOT NULL AND active_until <= $1`, now)
}

// Update rewrites the content fields and edit metadata. The owner key is
// never touched: the content key stays the same across edits.
func (r *PostgresRepository) Update(ctx context.Context, note *models.Note) error {
	query :=
		`UPDATE notes
		 SET header = $2, text = $3, tags = $4, active_until = $5, edited_at = $6, edited_by = $7
		 WHERE id = $1
		 `

	editedBy := sql.NullString{String: note.EditedBy, Valid: note.EditedBy != ""}
	res, err := r.db.ExecContext(ctx, query,
		note.ID, note.Header, note.Text, note.Tags, nullTime(note.ActiveUntil), nullTime(note.EditedAt), editedBy)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
