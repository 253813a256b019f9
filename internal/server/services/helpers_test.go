package services

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/dmitrijs2005/datakeeper/internal/dbx"
	"github.com/dmitrijs2005/datakeeper/internal/logging"
	"github.com/dmitrijs2005/datakeeper/internal/server/auth"
	"github.com/dmitrijs2005/datakeeper/internal/server/catalog"
	"github.com/dmitrijs2005/datakeeper/internal/server/config"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const testCatalog = "../catalog/testdata/catalog.yaml"

// engine is a migrated in-memory sqlite database with the employees target of
// the test catalog provisioned.
type engine struct {
	db       *sql.DB
	rm       *repomanager.SQLRepositoryManager
	resolver *catalog.Resolver
	cfg      *config.Config
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	ctx := context.Background()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := sql.Open("sqlite", "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	rm := repomanager.NewSQLRepositoryManager(dbx.SQLite)
	require.NoError(t, rm.RunMigrations(ctx, db))

	_, err = db.ExecContext(ctx, `CREATE TABLE employees (
		id       INTEGER PRIMARY KEY,
		name     TEXT NOT NULL CHECK (name <> 'reject-me'),
		dept     TEXT,
		hired_on TEXT,
		attrs    TEXT
	)`)
	require.NoError(t, err)

	resolver, err := catalog.NewResolver(ctx, catalog.FileSource{Path: testCatalog}, 0, logging.Discard())
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.LoadDefaults()

	return &engine{db: db, rm: rm, resolver: resolver, cfg: cfg}
}

func (e *engine) data() *DataService {
	return NewDataService(e.db, e.rm, e.resolver, e.cfg, logging.Discard())
}

func (e *engine) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(query, args...).Scan(&n))
	return n
}

func writer() *auth.Credential {
	return &auth.Credential{
		UserID:        "u-1",
		OrgID:         "org-1",
		Scopes:        []string{"data.read", "data.write"},
		DocumentTypes: []string{"passport", "contract"},
	}
}

func reader() *auth.Credential {
	return &auth.Credential{UserID: "u-2", Scopes: []string{"data.read"}, DocumentTypes: []string{"passport"}}
}
