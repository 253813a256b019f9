package batches

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/dbx"
	"github.com/dmitrijs2005/datakeeper/internal/server/models"
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

func (r *SQLRepository) Get(ctx context.Context, ownerID, configID, key string) (*models.BatchRecord, error) {
	query := r.dialect.Bind(`SELECT idempotency_key, config_id, owner_id, inserted, updated, created_at
		FROM upsert_batches WHERE owner_id = ? AND config_id = ? AND idempotency_key = ?`)

	rec := &models.BatchRecord{}
	err := r.db.QueryRowContext(ctx, query, ownerID, configID, key).
		Scan(&rec.Key, &rec.ConfigID, &rec.OwnerID, &rec.Inserted, &rec.Updated, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return rec, nil
}

func (r *SQLRepository) Insert(ctx context.Context, rec *models.BatchRecord) error {
	query := r.dialect.Bind(`INSERT INTO upsert_batches (idempotency_key, config_id, owner_id, inserted, updated, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)

	res, err := r.db.ExecContext(ctx, query, rec.Key, rec.ConfigID, rec.OwnerID, rec.Inserted, rec.Updated, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.Classify(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}
