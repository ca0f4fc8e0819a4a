package blobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"

	"medledger/pkg/platform/sentinel"
)

// LevelDBStore persists blobs in a local LevelDB directory, keyed by content
// hash. Content addressing makes writes idempotent by construction.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a blob store at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open blob db: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Put(ctx context.Context, data []byte) (ContentHash, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	hash := HashOf(data)
	if err := s.db.Put([]byte(hash), data, nil); err != nil {
		return "", fmt.Errorf("blob put: %w", err)
	}
	return hash, nil
}

func (s *LevelDBStore) Get(ctx context.Context, hash ContentHash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.db.Get([]byte(hash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blob get: %w", err)
	}
	return data, nil
}

func (s *LevelDBStore) Exists(ctx context.Context, hash ContentHash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := s.db.Has([]byte(hash), nil)
	if err != nil {
		return false, fmt.Errorf("blob exists: %w", err)
	}
	return ok, nil
}

// Close releases the underlying database.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
