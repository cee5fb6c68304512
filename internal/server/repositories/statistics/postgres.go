package statistics

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

func (r *PostgresRepository) Create(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `INSERT INTO statistics (user_id) VALUES ($1)`, userID); err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.Statistics, error) {
	query := `SELECT notes_created, notes_read, notes_deleted FROM statistics WHERE user_id = $1`

	s := &models.Statistics{UserID: userID}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&s.NotesCreated, &s.NotesRead, &s.NotesDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Increment(ctx context.Context, userID string, c Counter, n int64) error {
	switch c {
	case NotesCreated, NotesRead, NotesDeleted:
	default:
		return fmt.Errorf("%w: unknown counter %q", common.ErrorInvalidArgument, c)
	}

	// column name comes from the closed Counter set above
	query := fmt.Sprintf(`UPDATE statistics SET %[1]s = %[1]s + $2 WHERE user_id = $1`, c)

	res, err := r.db.ExecContext(ctx, query, userID, n)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}
	return nil
}
