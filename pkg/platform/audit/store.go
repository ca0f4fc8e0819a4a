package audit

import "context"

// Store persists the audit chain. Implementations must reject an Append whose
// BlockNumber is not exactly one past the current head (sentinel.ErrConflict),
// so the chain can never gap or fork even if two Writers are misconfigured
// against one store.
type Store interface {
	// Append persists an entry at its block number.
	Append(ctx context.Context, entry *Entry) error
	// Last returns the current head entry, or sentinel.ErrNotFound when the
	// chain is empty.
	Last(ctx context.Context) (*Entry, error)
	// Range returns entries with fromBlock <= BlockNumber <= toBlock in
	// ascending block order. toBlock == 0 means "through the head".
	Range(ctx context.Context, fromBlock, toBlock uint64) ([]*Entry, error)
	// Count returns the number of entries in the chain.
	Count(ctx context.Context) (uint64, error)
}
