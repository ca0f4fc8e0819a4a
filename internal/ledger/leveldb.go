package ledger

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"medledger/pkg/platform/sentinel"
)

// Contract functions understood by the dev client. A real deployment maps
// these onto chaincode on the permissioned network.
const (
	FnPutState = "PutState"
	FnDelState = "DelState"
)

// LevelDBClient is a single-node stand-in for the ledger used in development.
// It honors the Client contract (durable writes, transaction IDs, read-only
// queries) without consensus.
type LevelDBClient struct {
	db    *leveldb.DB
	txSeq atomic.Uint64
}

// OpenLevelDB opens (or creates) the dev ledger at path.
func OpenLevelDB(path string) (*LevelDBClient, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	return &LevelDBClient{db: db}, nil
}

// Submit applies a state mutation. PutState expects args [key, value];
// DelState expects args [key].
func (c *LevelDBClient) Submit(ctx context.Context, contractFn string, args ...[]byte) (TxID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch contractFn {
	case FnPutState:
		if len(args) != 2 {
			return "", fmt.Errorf("%s requires key and value", contractFn)
		}
		if err := c.db.Put(args[0], args[1], nil); err != nil {
			return "", fmt.Errorf("ledger put: %w", err)
		}
	case FnDelState:
		if len(args) != 1 {
			return "", fmt.Errorf("%s requires key", contractFn)
		}
		if err := c.db.Delete(args[0], nil); err != nil {
			return "", fmt.Errorf("ledger delete: %w", err)
		}
	default:
		return "", fmt.Errorf("unknown contract function %q", contractFn)
	}
	c.txSeq.Add(1)
	return TxID(uuid.NewString()), nil
}

// Query returns all values whose keys carry the selector prefix, or the single
// value for an exact key when no match-by-prefix is found.
func (c *LevelDBClient) Query(ctx context.Context, selector string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	iter := c.db.NewIterator(util.BytesPrefix([]byte(selector)), nil)
	defer iter.Release()

	var results [][]byte
	for iter.Next() {
		v := make([]byte, len(iter.Value()))
		copy(v, iter.Value())
		results = append(results, v)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("ledger scan: %w", err)
	}
	if len(results) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return results, nil
}

// Close releases the underlying database.
func (c *LevelDBClient) Close() error {
	return c.db.Close()
}
