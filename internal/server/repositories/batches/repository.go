// Package batches stores the outcome of upserts submitted with an
// idempotency key.
package batches

import (
	"context"

	"github.com/dmitrijs2005/datakeeper/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrorNotFound when the key was never recorded.
	Get(ctx context.Context, ownerID, configID, key string) (*models.BatchRecord, error)
	// Insert returns common.ErrConstraintViolation when the key already exists.
	Insert(ctx context.Context, rec *models.BatchRecord) error
}
