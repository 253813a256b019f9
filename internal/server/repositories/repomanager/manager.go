// Package repomanager vends repositories bound to a DBTX for one SQL dialect
// and runs the embedded goose migrations for the system tables.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/datakeeper/internal/dbx"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/batches"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/blobs"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/files"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/records"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Dialect() dbx.Dialect
	Records(db dbx.DBTX) records.Repository
	Batches(db dbx.DBTX) batches.Repository
	Files(db dbx.DBTX) files.Repository
	Blobs(db dbx.DBTX) blobs.Repository
}
