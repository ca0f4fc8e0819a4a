package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"medledger/pkg/platform/sentinel"
)

// InMemoryClient is the test double for the ledger collaborator.
type InMemoryClient struct {
	mu    sync.RWMutex
	state map[string][]byte

	// FailSubmits forces Submit to fail; tests use it to exercise
	// unavailability paths.
	FailSubmits bool
}

func NewInMemoryClient() *InMemoryClient {
	return &InMemoryClient{state: make(map[string][]byte)}
}

func (c *InMemoryClient) Submit(ctx context.Context, contractFn string, args ...[]byte) (TxID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailSubmits {
		return "", sentinel.ErrUnavailable
	}
	switch contractFn {
	case FnPutState:
		if len(args) != 2 {
			return "", fmt.Errorf("%s requires key and value", contractFn)
		}
		v := make([]byte, len(args[1]))
		copy(v, args[1])
		c.state[string(args[0])] = v
	case FnDelState:
		if len(args) != 1 {
			return "", fmt.Errorf("%s requires key", contractFn)
		}
		delete(c.state, string(args[0]))
	default:
		return "", fmt.Errorf("unknown contract function %q", contractFn)
	}
	return TxID(uuid.NewString()), nil
}

func (c *InMemoryClient) Query(ctx context.Context, selector string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0)
	for k := range c.state {
		if strings.HasPrefix(k, selector) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, sentinel.ErrNotFound
	}
	sort.Strings(keys)
	results := make([][]byte, 0, len(keys))
	for _, k := range keys {
		v := make([]byte, len(c.state[k]))
		copy(v, c.state[k])
		results = append(results, v)
	}
	return results, nil
}
