package blobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/dbx"
)

// SQLRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type SQLRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

// NewSQLRepository constructs a repository bound to the given DBTX.
func NewSQLRepository(db dbx.DBTX, dialect dbx.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

// Put stores data under key, replacing any previous content.
func (r *SQLRepository) Put(ctx context.Context, key string, data []byte) error {
	query := r.dialect.Bind(`INSERT INTO file_blobs (storage_key, data) VALUES (?, ?)
		ON CONFLICT (storage_key) DO UPDATE SET data = EXCLUDED.data`)

	if _, err := r.db.ExecContext(ctx, query, key, data); err != nil {
		return fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return nil
}

func (r *SQLRepository) Get(ctx context.Context, key string) ([]byte, error) {
	query := r.dialect.Bind(`SELECT data FROM file_blobs WHERE storage_key = ?`)

	var data []byte
	if err := r.db.QueryRowContext(ctx, query, key).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return data, nil
}

// Delete is a no-op for unknown keys.
func (r *SQLRepository) Delete(ctx context.Context, key string) error {
	query := r.dialect.Bind(`DELETE FROM file_blobs WHERE storage_key = ?`)

	if _, err := r.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return nil
}
