package service

import (
	"context"
	"sync"
	"time"

	"medledger/internal/consent"
	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
)

// ConsentTx provides a transactional boundary for consent mutations on a
// single patient-provider pair. Implementations may wrap a database
// transaction or, in-memory, a sharded lock.
type ConsentTx interface {
	RunInTx(ctx context.Context, patientID domain.PatientID, providerID domain.ProviderID, fn func(store consent.Store) error) error
}

// shardedConsentTx provides fine-grained locking using sharded mutexes.
// Instead of a single global lock, operations are distributed across N shards
// based on a hash of the patient-provider pair, reducing contention under
// concurrent load. Two grants racing on the same pair always serialize on the
// same shard, which is what keeps per-pair mutation history linear.
const numConsentShards = 128

// defaultConsentTxTimeout is the maximum duration for a consent transaction.
const defaultConsentTxTimeout = 5 * time.Second

type shardedConsentTx struct {
	shards  [numConsentShards]sync.Mutex
	store   consent.Store
	timeout time.Duration
}

// NewShardedTx wraps a store in a sharded per-pair lock.
func NewShardedTx(store consent.Store) ConsentTx {
	return &shardedConsentTx{store: store}
}

func (t *shardedConsentTx) RunInTx(ctx context.Context, patientID domain.PatientID, providerID domain.ProviderID, fn func(store consent.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultConsentTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := pairShard(patientID, providerID)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	// Check again after acquiring the lock.
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(t.store)
}

func pairShard(patientID domain.PatientID, providerID domain.ProviderID) int {
	return int(hashConsentString(patientID.String()+"\x00"+providerID.String()) % numConsentShards)
}

// hashConsentString uses FNV-1a for better hash distribution than simple multiply-add.
func hashConsentString(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
