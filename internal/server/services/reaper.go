package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/notekeeper/internal/common"
	"github.com/dmitrijs2005/notekeeper/internal/dbx"
	"github.com/dmitrijs2005/notekeeper/internal/logging"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/repomanager"
)

// ExpiryReaper periodically deletes notes whose active-until time has
// passed. Each note goes through the same cascade as an explicit delete.
type ExpiryReaper struct {
	db          dbx.Database
	repomanager repomanager.RepositoryManager
	interval    time.Duration
	logger      logging.Logger
	now         func() time.Time
}

func NewExpiryReaper(db dbx.Database, m repomanager.RepositoryManager, interval time.Duration, logger logging.Logger) *ExpiryReaper {
	return &ExpiryReaper{
		db:          db,
		repomanager: m,
		interval:    interval,
		logger:      logger.With("module", "reaper"),
		now:         time.Now,
	}
}

// Sweep deletes every expired note and reports how many were removed. A
// failure on one note does not stop the others; all failures are returned
// joined.
func (r *ExpiryReaper) Sweep(ctx context.Context) (int, error) {
	now := r.now()

	ids, err := r.repomanager.Notes(r.db).ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	var (
		deleted int
		errs    []error
	)
	for _, id := range ids {
		err := r.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
			note, err := r.repomanager.Notes(tx).GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			// the owner may have extended it since the listing
			if note.ActiveUntil == nil || note.ActiveUntil.After(now) {
				return common.ErrorConflict
			}
			return deleteNoteCascade(ctx, r.repomanager, tx, id)
		})
		switch {
		case err == nil:
			deleted++
		case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrorConflict):
		default:
			r.logger.Error(ctx, "expired note deletion failed", "note_id", id, "error", err)
			errs = append(errs, err)
		}
	}

	if deleted > 0 {
		r.logger.Info(ctx, "expired notes deleted", "count", deleted)
	}
	return deleted, errors.Join(errs...)
}

// Run sweeps every interval until ctx is cancelled. A non-positive interval
// disables the reaper.
func (r *ExpiryReaper) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Error(ctx, "reaper disabled: interval must be positive", "interval", r.interval)
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Warn(ctx, "sweep finished with errors", "error", err)
			}
		}
	}
}
