package audit_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medledger/internal/signing"
	dErrors "medledger/pkg/domain-errors"
	audit "medledger/pkg/platform/audit"
	"medledger/pkg/platform/audit/store/memory"
	"medledger/pkg/platform/sentinel"
)

const testSignerKey = signing.KeyRef("audit-writer")

func newTestWriter() (*audit.Writer, *memory.InMemoryStore, *signing.HMACSigner) {
	store := memory.NewInMemoryStore()
	signer := signing.NewHMACSigner([]byte("test-root"))
	return audit.NewWriter(store, signer), store, signer
}

func TestWriter_AppendBuildsChain(t *testing.T) {
	writer, store, _ := newTestWriter()
	ctx := context.Background()

	first, err := writer.Append(ctx, audit.EventConsentGranted, "patient-1", "", audit.ConsentDetails{
		TokenID:    "tok-1",
		PatientID:  "patient-1",
		ProviderID: "provider-1",
	}, testSignerKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.BlockNumber)
	assert.Empty(t, first.PrevHash)
	assert.NotEmpty(t, first.Hash)
	assert.NotEmpty(t, first.Signature)

	second, err := writer.Append(ctx, audit.EventRecordAccessed, "provider-1", "rec-1", audit.AccessDetails{
		Outcome: "granted",
	}, testSignerKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.BlockNumber)
	assert.Equal(t, first.Hash, second.PrevHash)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestWriter_RejectsInvalidEventType(t *testing.T) {
	writer, store, _ := newTestWriter()

	_, err := writer.Append(context.Background(), audit.EventType("made_up"), "u1", "", nil, testSignerKey)
	assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest))

	count, _ := store.Count(context.Background())
	assert.Zero(t, count, "rejected append must not consume a block number")
}

func TestWriter_RejectsEmptyUserID(t *testing.T) {
	writer, _, _ := newTestWriter()
	_, err := writer.Append(context.Background(), audit.EventLoginAttempt, "", "", nil, testSignerKey)
	assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest))
}

// failingStore wraps a store and fails the first N appends.
type failingStore struct {
	audit.Store
	mu       sync.Mutex
	failures int
}

func (s *failingStore) Append(ctx context.Context, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return sentinel.ErrUnavailable
	}
	return s.Store.Append(ctx, entry)
}

func TestWriter_FailedPersistDoesNotAdvanceSequence(t *testing.T) {
	inner := memory.NewInMemoryStore()
	signer := signing.NewHMACSigner([]byte("test-root"))
	store := &failingStore{Store: inner, failures: 1}
	writer := audit.NewWriter(store, signer)
	ctx := context.Background()

	_, err := writer.Append(ctx, audit.EventLoginAttempt, "u1", "", audit.AuthDetails{Outcome: "success"}, testSignerKey)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeUnavailable))

	// The next append must reuse block 1: no gaps, no duplicates.
	entry, err := writer.Append(ctx, audit.EventLoginAttempt, "u1", "", audit.AuthDetails{Outcome: "success"}, testSignerKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), entry.BlockNumber)
}

func TestWriter_ConcurrentAppendsStayContiguous(t *testing.T) {
	writer, store, _ := newTestWriter()
	ctx := context.Background()
	const goroutines = 16
	const perGoroutine = 10

	var wg sync.WaitGroup
	for i := range goroutines {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for range perGoroutine {
				_, err := writer.Append(ctx, audit.EventRecordAccessed, "provider-1", "", audit.AccessDetails{Outcome: "granted"}, testSignerKey)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	entries, err := store.Range(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, entries, goroutines*perGoroutine)
	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.BlockNumber, "block numbers must be dense and strictly increasing")
		if i > 0 {
			assert.Equal(t, entries[i-1].Hash, e.PrevHash)
		}
	}
}

func TestEntry_JSONRoundTripPreservesDetailsVariant(t *testing.T) {
	writer, _, _ := newTestWriter()
	entry, err := writer.Append(context.Background(), audit.EventRecordCreated, "provider-1", "rec-9", audit.RecordDetails{
		RecordID:     "rec-9",
		PatientID:    "patient-1",
		ResourceType: "imaging",
		ContentHash:  "abc123",
	}, testSignerKey)
	require.NoError(t, err)

	raw, err := json.Marshal(entry)
	require.NoError(t, err)

	var decoded audit.Entry
	require.NoError(t, json.Unmarshal(raw, &decoded))

	details, ok := decoded.Details.(audit.RecordDetails)
	require.True(t, ok, "details variant must survive serialization")
	assert.Equal(t, "imaging", details.ResourceType)
	assert.Equal(t, entry.Hash, decoded.Hash)

	// The recomputed content hash of the decoded entry must match, proving
	// serialization is faithful enough for chain verification.
	recomputed, err := audit.ContentHash(&decoded)
	require.NoError(t, err)
	assert.Equal(t, entry.Hash, recomputed)
}
