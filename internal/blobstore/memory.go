package blobstore

import (
	"context"
	"sync"

	"medledger/pkg/platform/sentinel"
)

// InMemoryStore keeps blobs in a map. Test and development use.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[ContentHash][]byte

	// FailGets forces Get to report unavailability; tests use it to verify
	// the orchestrator still audits granted-but-failed fetches.
	FailGets bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[ContentHash][]byte)}
}

func (s *InMemoryStore) Put(_ context.Context, data []byte) (ContentHash, error) {
	hash := HashOf(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[hash]; !ok {
		stored := make([]byte, len(data))
		copy(stored, data)
		s.blobs[hash] = stored
	}
	return hash, nil
}

func (s *InMemoryStore) Get(_ context.Context, hash ContentHash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailGets {
		return nil, sentinel.ErrUnavailable
	}
	data, ok := s.blobs[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *InMemoryStore) Exists(_ context.Context, hash ContentHash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[hash]
	return ok, nil
}
