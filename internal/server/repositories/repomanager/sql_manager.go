package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/dmitrijs2005/datakeeper/internal/dbx"
	"github.com/dmitrijs2005/datakeeper/internal/server/migrations"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/batches"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/blobs"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/files"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/records"
	"github.com/pressly/goose/v3"
)

// SQLRepositoryManager vends database/sql backed repositories for one dialect.
type SQLRepositoryManager struct {
	dialect dbx.Dialect
}

// NewSQLRepositoryManager constructs a RepositoryManager for dialect.
func NewSQLRepositoryManager(dialect dbx.Dialect) *SQLRepositoryManager {
	return &SQLRepositoryManager{dialect: dialect}
}

func (m *SQLRepositoryManager) Dialect() dbx.Dialect {
	return m.dialect
}

// Records returns a records.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) Records(db dbx.DBTX) records.Repository {
	return records.NewSQLRepository(db, m.dialect)
}

// Batches returns a batches.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) Batches(db dbx.DBTX) batches.Repository {
	return batches.NewSQLRepository(db, m.dialect)
}

// Files returns a files.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) Files(db dbx.DBTX) files.Repository {
	return files.NewSQLRepository(db, m.dialect)
}

// Blobs returns a blobs.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) Blobs(db dbx.DBTX) blobs.Repository {
	return blobs.NewSQLRepository(db, m.dialect)
}

// gooseUp is a seam for testing the goose provider.
var gooseUp = func(ctx context.Context, dialect goose.Dialect, db *sql.DB, fsys fs.FS) error {
	p, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return err
	}
	_, err = p.Up(ctx)
	return err
}

// RunMigrations applies the embedded migrations for the manager's dialect.
func (m *SQLRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	dialect := goose.DialectSQLite3
	if m.dialect.IsPostgres() {
		dialect = goose.DialectPostgres
	}

	fsys, err := fs.Sub(migrations.Migrations, m.dialect.Name())
	if err != nil {
		return fmt.Errorf("migrations for %s: %w", m.dialect.Name(), err)
	}

	if err := gooseUp(ctx, dialect, db, fsys); err != nil {
		return err
	}
	return nil
}
