// Package blobs keeps ciphertext in the file_blobs table for deployments
// without object storage.
package blobs

import "context"

type Repository interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns common.ErrorNotFound for an unknown key.
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
