package memory

import (
	"context"
	"sync"

	audit "medledger/pkg/platform/audit"
	"medledger/pkg/platform/sentinel"
)

// InMemoryStore keeps the audit chain in a slice ordered by block number.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	expected := uint64(len(s.entries)) + 1
	if entry.BlockNumber != expected {
		return sentinel.ErrConflict
	}
	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *InMemoryStore) Last(_ context.Context) (*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.entries[len(s.entries)-1]
	return &cp, nil
}

func (s *InMemoryStore) Range(_ context.Context, fromBlock, toBlock uint64) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, sentinel.ErrNotFound
	}
	if fromBlock == 0 {
		fromBlock = 1
	}
	if toBlock == 0 || toBlock > uint64(len(s.entries)) {
		toBlock = uint64(len(s.entries))
	}
	if fromBlock > toBlock {
		return nil, sentinel.ErrNotFound
	}
	out := make([]*audit.Entry, 0, toBlock-fromBlock+1)
	for _, e := range s.entries[fromBlock-1 : toBlock] {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryStore) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.entries)), nil
}

// Tamper overwrites a stored entry in place, bypassing the chain. Test-harness
// hook for integrity verification tests; no production caller exists.
func (s *InMemoryStore) Tamper(blockNumber uint64, mutate func(*audit.Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if blockNumber == 0 || blockNumber > uint64(len(s.entries)) {
		return false
	}
	mutate(s.entries[blockNumber-1])
	return true
}
