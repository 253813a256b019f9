package files

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/datakeeper/internal/dbx"
	"github.com/dmitrijs2005/datakeeper/internal/server/models"
)

const selectColumns = `id, owner_id, org_id, document_type, file_name, content_type, size,
	algorithm, nonce, key_version, storage_key, created_at`

// SQLRepository implements file metadata storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type SQLRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

// NewSQLRepository constructs a repository bound to the given DBTX.
func NewSQLRepository(db dbx.DBTX, dialect dbx.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

func (r *SQLRepository) Insert(ctx context.Context, rec *models.FileRecord) error {
	query := r.dialect.Bind(`INSERT INTO file_records
		(id, owner_id, org_id, document_type, file_name, content_type, size, algorithm, nonce, key_version, storage_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	res, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.OwnerID, rec.OrgID, rec.DocumentType, rec.FileName, rec.ContentType, rec.Size,
		rec.Algorithm, rec.Nonce, rec.KeyVersion, rec.StorageKey, rec.CreatedAt)
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

func (r *SQLRepository) ListByOwner(ctx context.Context, documentType, ownerID string) ([]*models.FileRecord, error) {
	query := r.dialect.Bind(`SELECT ` + selectColumns + ` FROM file_records
		WHERE document_type = ? AND owner_id = ? ORDER BY created_at DESC, id`)
	return r.list(ctx, query, documentType, ownerID)
}

func (r *SQLRepository) ListByOrg(ctx context.Context, documentType, orgID string) ([]*models.FileRecord, error) {
	query := r.dialect.Bind(`SELECT ` + selectColumns + ` FROM file_records
		WHERE document_type = ? AND org_id = ? ORDER BY created_at DESC, id`)
	return r.list(ctx, query, documentType, orgID)
}

func (r *SQLRepository) list(ctx context.Context, query string, args ...any) ([]*models.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", dbx.Classify(err))
	}
	defer rows.Close()

	var result []*models.FileRecord
	for rows.Next() {
		item := &models.FileRecord{}
		err := rows.Scan(&item.ID, &item.OwnerID, &item.OrgID, &item.DocumentType, &item.FileName,
			&item.ContentType, &item.Size, &item.Algorithm, &item.Nonce, &item.KeyVersion,
			&item.StorageKey, &item.CreatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to select files: %w", dbx.Classify(err))
	}

	return result, nil
}
