package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/datakeeper/internal/dbx"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/batches"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/blobs"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/files"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/records"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	var m RepositoryManager = NewSQLRepositoryManager(dbx.Postgres)

	var _ records.Repository = m.Records(db)
	var _ batches.Repository = m.Batches(db)
	var _ files.Repository = m.Files(db)
	var _ blobs.Repository = m.Blobs(db)

	if m.Records(db) == nil || m.Batches(db) == nil || m.Files(db) == nil || m.Blobs(db) == nil {
		t.Fatal("factory returned nil")
	}
	assert.Equal(t, dbx.Postgres, m.Dialect())
}

func TestRunMigrations_PicksDialectDirectory(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUp
	defer func() { gooseUp = orig }()

	tests := []struct {
		dialect  dbx.Dialect
		want     goose.Dialect
		wantFile string
	}{
		{dbx.Postgres, goose.DialectPostgres, "00001_file_records.sql"},
		{dbx.SQLite, goose.DialectSQLite3, "00003_catalog.sql"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect.Name(), func(t *testing.T) {
			gooseUp = func(ctx context.Context, d goose.Dialect, db *sql.DB, fsys fs.FS) error {
				if d != tt.want {
					return errors.New("unexpected dialect")
				}
				if _, err := fs.Stat(fsys, tt.wantFile); err != nil {
					return err
				}
				return nil
			}
			require.NoError(t, NewSQLRepositoryManager(tt.dialect).RunMigrations(context.Background(), db))
		})
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUp
	gooseUp = func(context.Context, goose.Dialect, *sql.DB, fs.FS) error {
		return errors.New("boom")
	}
	defer func() { gooseUp = orig }()

	m := NewSQLRepositoryManager(dbx.Postgres)
	if err := m.RunMigrations(context.Background(), db); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestRunMigrations_SQLite(t *testing.T) {
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	m := NewSQLRepositoryManager(dbx.SQLite)
	require.NoError(t, m.RunMigrations(context.Background(), db))
	// idempotent
	require.NoError(t, m.RunMigrations(context.Background(), db))

	for _, table := range []string{"file_records", "file_blobs", "upsert_batches", "data_configs", "document_types"} {
		var n int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}
