package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/blobs"
)

// DBStore keeps blobs in the file_blobs table through a repository bound to
// the pool. Writes do not join the metadata transaction.
type DBStore struct {
	repo blobs.Repository
}

// NewDBStore wraps a blobs repository bound to the pool.
func NewDBStore(repo blobs.Repository) *DBStore {
	return &DBStore{repo: repo}
}

func (s *DBStore) Put(ctx context.Context, key string, data []byte) error {
	if err := s.repo.Put(ctx, key, data); err != nil {
		return downstream(err)
	}
	return nil
}

func (s *DBStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: blob %s", common.ErrorNotFound, key)
		}
		return nil, downstream(err)
	}
	return data, nil
}

func (s *DBStore) Delete(ctx context.Context, key string) error {
	if err := s.repo.Delete(ctx, key); err != nil {
		return downstream(err)
	}
	return nil
}

func downstream(err error) error {
	if errors.Is(err, common.ErrDownstream) || errors.Is(err, common.ErrTimeout) {
		return err
	}
	return fmt.Errorf("%w: %w", common.ErrDownstream, err)
}
