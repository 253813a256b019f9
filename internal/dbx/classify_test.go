package dbx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Postgres(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"40001", common.ErrConflictPersistence},
		{"40P01", common.ErrConflictPersistence},
		{"23505", common.ErrConstraintViolation},
		{"23502", common.ErrConstraintViolation},
		{"57014", common.ErrTimeout},
		{"08006", common.ErrDownstream},
		{"53300", common.ErrDownstream},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			src := fmt.Errorf("exec: %w", &pgconn.PgError{Code: tt.code})
			got := Classify(src)
			assert.ErrorIs(t, got, tt.want)

			var pgErr *pgconn.PgError
			assert.True(t, errors.As(got, &pgErr), "original error must stay in the chain")
		})
	}

	other := &pgconn.PgError{Code: "42P01"}
	assert.Equal(t, error(other), Classify(other))
}

func TestClassify_Context(t *testing.T) {
	assert.ErrorIs(t, Classify(context.DeadlineExceeded), common.ErrTimeout)
	assert.ErrorIs(t, Classify(fmt.Errorf("q: %w", context.Canceled)), common.ErrTimeout)
}

func TestClassify_Connection(t *testing.T) {
	assert.ErrorIs(t, Classify(driver.ErrBadConn), common.ErrDownstream)
}

func TestClassify_Passthrough(t *testing.T) {
	assert.Nil(t, Classify(nil))
	boom := errors.New("boom")
	assert.Equal(t, boom, Classify(boom))
}

func TestClassify_SQLiteConstraint(t *testing.T) {
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO t (id, name) VALUES (1, NULL)`)
	require.Error(t, err)
	assert.ErrorIs(t, Classify(err), common.ErrConstraintViolation)
}
