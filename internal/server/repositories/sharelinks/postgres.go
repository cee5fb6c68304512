package sharelinks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notekeeper/internal/common"
	"github.com/dmitrijs2005/notekeeper/internal/dbx"
	"github.com/dmitrijs2005/notekeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, link *models.ShareLink) (*models.ShareLink, error) {
	query :=
		`INSERT INTO share_links (link_id, note_id, owner_id, wrapped_key)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query, link.LinkID, link.NoteID, link.OwnerID, link.WrappedKey).Scan(&link.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return link, nil
}

func (r *PostgresRepository) GetByNote(ctx context.Context, noteID string) (*models.ShareLink, error) {
	query := `SELECT link_id, note_id, owner_id, wrapped_key, created_at FROM share_links WHERE note_id = $1`

	l := &models.ShareLink{}
	err := r.db.QueryRowContext(ctx, query, noteID).Scan(&l.LinkID, &l.NoteID, &l.OwnerID, &l.WrappedKey, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return l, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, noteID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM share_links WHERE note_id = $1`, noteID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteByNote(ctx context.Context, noteID string) error {
	if err := r.Delete(ctx, noteID); err != nil && !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	return nil
}
