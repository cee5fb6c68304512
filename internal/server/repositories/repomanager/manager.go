package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/notekeeper/internal/dbx"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/accesses"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/notes"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/recoveries"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/sharelinks"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/statistics"
	"github.com/dmitrijs2005/notekeeper/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Notes(db dbx.DBTX) notes.Repository
	Accesses(db dbx.DBTX) accesses.Repository
	ShareLinks(db dbx.DBTX) sharelinks.Repository
	Statistics(db dbx.DBTX) statistics.Repository
	Recoveries(db dbx.DBTX) recoveries.Repository
}
