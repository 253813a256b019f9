// Package files persists metadata of encrypted files. Ciphertext lives in a
// blob store; see package blobstore.
package files

import (
	"context"

	"github.com/dmitrijs2005/datakeeper/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, rec *models.FileRecord) error
	// ListByOwner returns the owner's records of one document type, newest first.
	ListByOwner(ctx context.Context, documentType, ownerID string) ([]*models.FileRecord, error)
	// ListByOrg returns the organization's records of one document type, newest first.
	ListByOrg(ctx context.Context, documentType, orgID string) ([]*models.FileRecord, error)
}
