package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medledger/internal/consent"
	"medledger/pkg/domain"
)

type countingSource struct {
	store  *consent.InMemoryStore
	calls  atomic.Int64
	loaded chan struct{} // receives once per completed store read, if set
	block  chan struct{} // stalls the return until closed, if set
}

func (s *countingSource) ListByPair(ctx context.Context, patientID domain.PatientID, providerID domain.ProviderID) ([]*consent.Token, error) {
	s.calls.Add(1)
	tokens, err := s.store.ListByPair(ctx, patientID, providerID)
	if s.loaded != nil {
		select {
		case s.loaded <- struct{}{}:
		default:
		}
	}
	if s.block != nil {
		<-s.block
	}
	return tokens, err
}

type failingBackend struct{}

func (failingBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("backend down")
}
func (failingBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("backend down")
}
func (failingBackend) Del(context.Context, string) error { return errors.New("backend down") }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedToken(t *testing.T, store *consent.InMemoryStore, patientID, providerID string) *consent.Token {
	t.Helper()
	tok := &consent.Token{
		TokenID:    domain.NewTokenID(),
		PatientID:  domain.PatientID(patientID),
		ProviderID: domain.ProviderID(providerID),
		Permissions: []consent.Permission{
			{ResourceType: domain.ResourceDiagnosis, AccessLevel: domain.AccessRead},
		},
		IsActive:         true,
		CreatedAt:        time.Now(),
		PatientSignature: []byte("sig"),
	}
	require.NoError(t, store.Save(context.Background(), tok))
	return tok
}

func TestGrantCache_ReadThrough(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{store: consent.NewInMemoryStore()}
	tok := seedToken(t, source.store, "p1", "d1")
	cache := NewGrantCache(source, NewMemory(), 30*time.Second, nil, discardLogger())

	// First read populates, subsequent reads never touch the store.
	for i := 0; i < 3; i++ {
		tokens, err := cache.ListByPair(ctx, "p1", "d1")
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		assert.Equal(t, tok.TokenID, tokens[0].TokenID)
	}
	assert.Equal(t, int64(1), source.calls.Load())
}

func TestGrantCache_InvalidateForcesReload(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{store: consent.NewInMemoryStore()}
	seedToken(t, source.store, "p1", "d1")
	cache := NewGrantCache(source, NewMemory(), 30*time.Second, nil, discardLogger())

	_, err := cache.ListByPair(ctx, "p1", "d1")
	require.NoError(t, err)

	seedToken(t, source.store, "p1", "d1")
	require.NoError(t, cache.Invalidate(ctx, "p1", "d1"))

	tokens, err := cache.ListByPair(ctx, "p1", "d1")
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
	assert.Equal(t, int64(2), source.calls.Load())
}

func TestGrantCache_ExpiredEntryReloads(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{store: consent.NewInMemoryStore()}
	seedToken(t, source.store, "p1", "d1")
	cache := NewGrantCache(source, NewMemory(), time.Millisecond, nil, discardLogger())

	_, err := cache.ListByPair(ctx, "p1", "d1")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = cache.ListByPair(ctx, "p1", "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), source.calls.Load())
}

func TestGrantCache_BackendDownStillServes(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{store: consent.NewInMemoryStore()}
	tok := seedToken(t, source.store, "p1", "d1")
	cache := NewGrantCache(source, failingBackend{}, 30*time.Second, nil, discardLogger())

	tokens, err := cache.ListByPair(ctx, "p1", "d1")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, tok.TokenID, tokens[0].TokenID)
	assert.Equal(t, int64(1), source.calls.Load())
}

func TestGrantCache_RevokeDuringReloadIsNotRecached(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{
		store:  consent.NewInMemoryStore(),
		loaded: make(chan struct{}, 1),
		block:  make(chan struct{}),
	}
	tok := seedToken(t, source.store, "p1", "d1")
	cache := NewGrantCache(source, NewMemory(), 30*time.Second, nil, discardLogger())

	// A reader misses, loads the still-active grant list, then stalls
	// before the cache write.
	done := make(chan struct{})
	go func() {
		defer close(done)
		tokens, err := cache.ListByPair(ctx, "p1", "d1")
		assert.NoError(t, err)
		assert.Len(t, tokens, 1)
	}()
	<-source.loaded

	// The revoke commits and invalidates while that load is in flight,
	// then the stalled load resumes.
	require.NoError(t, source.store.MarkRevoked(ctx, tok.TokenID, time.Now(), []byte("revoke-sig")))
	require.NoError(t, cache.Invalidate(ctx, "p1", "d1"))
	close(source.block)
	<-done

	// The resumed load must not have written its pre-revoke list back into
	// the cache; the next read goes to the store and sees the revocation.
	tokens, err := cache.ListByPair(ctx, "p1", "d1")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.False(t, tokens[0].IsActive)
	assert.Equal(t, int64(2), source.calls.Load())
}

func TestGrantCache_ConcurrentMissesCollapse(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{store: consent.NewInMemoryStore(), block: make(chan struct{})}
	seedToken(t, source.store, "p1", "d1")
	cache := NewGrantCache(source, NewMemory(), 30*time.Second, nil, discardLogger())

	const readers = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			tokens, err := cache.ListByPair(ctx, "p1", "d1")
			assert.NoError(t, err)
			assert.Len(t, tokens, 1)
		}()
	}
	close(start)
	time.Sleep(10 * time.Millisecond)
	close(source.block)
	wg.Wait()

	assert.Equal(t, int64(1), source.calls.Load())
}
