package dbx

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialect_Bind(t *testing.T) {
	tests := []struct {
		name  string
		d     Dialect
		query string
		want  string
	}{
		{"postgres numbers placeholders", Postgres, `SELECT a FROM t WHERE a = ? AND b = ?`, `SELECT a FROM t WHERE a = $1 AND b = $2`},
		{"postgres skips literals", Postgres, `SELECT '?' FROM t WHERE a = ?`, `SELECT '?' FROM t WHERE a = $1`},
		{"sqlite keeps question marks", SQLite, `SELECT a FROM t WHERE a = ?`, `SELECT a FROM t WHERE a = ?`},
		{"no placeholders", Postgres, `SELECT 1`, `SELECT 1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.Bind(tt.query))
		})
	}
}

func TestDialect_Quote(t *testing.T) {
	assert.Equal(t, `"employees"`, Postgres.Quote("employees"))
	assert.Equal(t, `"hr"."employees"`, Postgres.Quote("hr.employees"))
	assert.Equal(t, `"we""ird"`, SQLite.Quote(`we"ird`))
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("pgx")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)
	assert.True(t, d.IsPostgres())

	d, err = DialectFor("sqlite")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)
	assert.False(t, d.IsPostgres())

	_, err = DialectFor("oracle")
	require.Error(t, err)
}

func TestDialect_TxOptions(t *testing.T) {
	opts := Postgres.TxOptions()
	require.NotNil(t, opts)
	assert.Equal(t, sql.LevelReadCommitted, opts.Isolation)
	assert.Nil(t, SQLite.TxOptions())
}

func TestOpen_SQLite(t *testing.T) {
	db, d, err := Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.Equal(t, SQLite, d)
	require.NoError(t, db.Ping())
}
