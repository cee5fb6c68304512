// Package accesses stores per-user grants on notes: the permission and the
// note's content key wrapped for the grantee.
package accesses

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

func (r *PostgresRepository) Upsert(ctx context.Context, grant *models.AccessGrant) error {
	query := `
		INSERT INTO accesses (note_id, user_id, permission, wrapped_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (note_id, user_id)
		DO UPDATE SET
			permission = EXCLUDED.permission,
			wrapped_key = EXCLUDED.wrapped_key
	`
	_, err := r.db.ExecContext(ctx, query, grant.NoteID, grant.UserID, int(grant.Permission), grant.WrappedKey)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, noteID, userID string) (*models.AccessGrant, error) {
	query := `SELECT permission, wrapped_key FROM accesses WHERE note_id = $1 AND user_id = $2`

	g := &models.AccessGrant{NoteID: noteID, UserID: userID}
	var perm int
	err := r.db.QueryRowContext(ctx, query, noteID, userID).Scan(&perm, &g.WrappedKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	g.Permission = models.Permission(perm)
	return g, nil
}

func (r *PostgresRepository) UpdatePermission(ctx context.Context, noteID, userID string, p models.Permission) error {
	query := `UPDATE accesses SET permission = $3 WHERE note_id = $1 AND user_id = $2`

	res, err := r.db.ExecContext(ctx, query, noteID, userID, int(p))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, noteID, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accesses WHERE note_id = $1 AND user_id = $2`, noteID, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) DeleteByNote(ctx context.Context, noteID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM accesses WHERE note_id = $1`, noteID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM accesses WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
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
