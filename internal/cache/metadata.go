package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"medledger/internal/platform/metrics"
	"medledger/internal/records"
	"medledger/pkg/domain"
)

// MetadataCache is a read-through cache wrapping a records.MetadataStore.
// Metadata is immutable after creation, so entries only ever go stale through
// the rollback path, which deletes through this wrapper and invalidates.
// Misses on ErrNotFound are not cached; a record created moments later must
// be visible on the next read.
type MetadataCache struct {
	store   records.MetadataStore
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	gens    generations
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewMetadataCache(store records.MetadataStore, backend Backend, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *MetadataCache {
	if ttl <= 0 || ttl > maxGrantTTL {
		ttl = maxGrantTTL
	}
	return &MetadataCache{
		store:   store,
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  logger,
	}
}

func (c *MetadataCache) Save(ctx context.Context, meta *records.Metadata) error {
	return c.store.Save(ctx, meta)
}

// Get satisfies records.MetadataStore. A backend failure is a miss; the
// metadata store stays the source of truth.
func (c *MetadataCache) Get(ctx context.Context, recordID domain.RecordID) (*records.Metadata, error) {
	key := metadataKey(recordID)

	cached, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn("metadata cache read failed", "key", key, "error", err)
	} else if ok {
		var meta records.Metadata
		if err := json.Unmarshal(cached, &meta); err == nil {
			if c.metrics != nil {
				c.metrics.CacheHits.Inc()
			}
			return &meta, nil
		}
		c.logger.Warn("metadata cache entry corrupt, dropping", "key", key)
		_ = c.backend.Del(ctx, key)
	}
	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		gen := c.gens.current(key)
		meta, err := c.store.Get(ctx, recordID)
		if err != nil {
			return nil, err
		}
		// A delete since the load began means this metadata belongs to a
		// rolled-back record. Serve it to the waiters but do not persist it.
		if encoded, err := json.Marshal(meta); err == nil && c.gens.current(key) == gen {
			if err := c.backend.Set(ctx, key, encoded, c.ttl); err != nil {
				c.logger.Warn("metadata cache write failed", "key", key, "error", err)
			}
		}
		return meta, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*records.Metadata), nil
}

// ListByPatient is a passthrough. Listings change on every create and are not
// on the per-record access hot path.
func (c *MetadataCache) ListByPatient(ctx context.Context, patientID domain.PatientID) ([]*records.Metadata, error) {
	return c.store.ListByPatient(ctx, patientID)
}

// Delete removes the record and drops its cache entry so a rolled-back create
// can never be served from cache. The store delete runs first so a load that
// starts after the generation bump cannot observe the doomed record; the
// entry is then dropped regardless of the store's outcome.
func (c *MetadataCache) Delete(ctx context.Context, recordID domain.RecordID) error {
	key := metadataKey(recordID)
	err := c.store.Delete(ctx, recordID)
	c.gens.bump(key)
	c.group.Forget(key)
	if delErr := c.backend.Del(ctx, key); delErr != nil {
		c.logger.Warn("metadata cache invalidation failed", "key", key, "error", delErr)
	}
	return err
}

func metadataKey(recordID domain.RecordID) string {
	return "recordmeta:" + recordID.String()
}
