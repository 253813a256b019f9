// Package blobstore stores ciphertext blobs by key, in S3-compatible object
// storage or in the database.
package blobstore

import "context"

// Store errors: Get returns common.ErrorNotFound for a missing key and
// wraps every other failure with common.ErrDownstream.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
