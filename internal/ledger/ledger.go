// Package ledger is the boundary to the permissioned ledger collaborator. The
// core submits state changes and queries through this interface; consensus,
// endorsement, and chaincode execution happen on the other side.
package ledger

import "context"

// TxID identifies a committed ledger transaction.
type TxID string

// Client exposes the submit/query primitives the chaincode engine provides.
// Implementations must be durable and transactional; the core does not
// reimplement consensus.
type Client interface {
	// Submit invokes a contract function with arguments and returns the
	// committed transaction ID.
	Submit(ctx context.Context, contractFn string, args ...[]byte) (TxID, error)
	// Query evaluates a read-only selector and returns matching values.
	Query(ctx context.Context, selector string) ([][]byte, error)
}
