// Package leveldb persists the audit chain in a local LevelDB directory.
// Entries are keyed by big-endian block number so iteration order is chain
// order; a head key tracks the current block for conditional appends.
package leveldb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	audit "medledger/pkg/platform/audit"
	"medledger/pkg/platform/sentinel"
)

var headKey = []byte("!head")

const entryPrefix = "entry/"

// Store implements audit.Store over LevelDB.
type Store struct {
	mu sync.Mutex
	db *leveldb.DB
}

// Open opens (or creates) the chain store at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	return &Store{db: db}, nil
}

func entryKey(block uint64) []byte {
	key := make([]byte, len(entryPrefix)+8)
	copy(key, entryPrefix)
	binary.BigEndian.PutUint64(key[len(entryPrefix):], block)
	return key
}

func (s *Store) Append(ctx context.Context, entry *audit.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	head, err := s.head()
	if err != nil {
		return err
	}
	if entry.BlockNumber != head+1 {
		return sentinel.ErrConflict
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	headVal := make([]byte, 8)
	binary.BigEndian.PutUint64(headVal, entry.BlockNumber)

	// Entry and head advance in one batch so a crash cannot leave them
	// disagreeing.
	batch := new(leveldb.Batch)
	batch.Put(entryKey(entry.BlockNumber), payload)
	batch.Put(headKey, headVal)
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

func (s *Store) head() (uint64, error) {
	val, err := s.db.Get(headKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read audit head: %w", err)
	}
	return binary.BigEndian.Uint64(val), nil
}

func (s *Store) Last(ctx context.Context) (*audit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	head, err := s.head()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if head == 0 {
		return nil, sentinel.ErrNotFound
	}
	return s.get(head)
}

func (s *Store) get(block uint64) (*audit.Entry, error) {
	val, err := s.db.Get(entryKey(block), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read audit entry %d: %w", block, err)
	}
	var entry audit.Entry
	if err := json.Unmarshal(val, &entry); err != nil {
		return nil, fmt.Errorf("decode audit entry %d: %w", block, err)
	}
	return &entry, nil
}

func (s *Store) Range(ctx context.Context, fromBlock, toBlock uint64) ([]*audit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fromBlock == 0 {
		fromBlock = 1
	}

	iter := s.db.NewIterator(util.BytesPrefix([]byte(entryPrefix)), nil)
	defer iter.Release()

	var entries []*audit.Entry
	for ok := iter.Seek(entryKey(fromBlock)); ok; ok = iter.Next() {
		block := binary.BigEndian.Uint64(iter.Key()[len(entryPrefix):])
		if toBlock != 0 && block > toBlock {
			break
		}
		var entry audit.Entry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			return nil, fmt.Errorf("decode audit entry %d: %w", block, err)
		}
		entries = append(entries, &entry)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan audit chain: %w", err)
	}
	if len(entries) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return entries, nil
}

func (s *Store) Count(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head()
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
