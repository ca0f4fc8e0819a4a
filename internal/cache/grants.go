package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"medledger/internal/consent"
	"medledger/internal/platform/metrics"
	"medledger/pkg/domain"
)

// maxGrantTTL caps how stale a cached grant list may get when an invalidation
// never arrives.
const maxGrantTTL = 60 * time.Second

// GrantCache is a read-through cache over a consent.GrantSource. It caches
// the raw token list for a pair, never a filtered or time-evaluated view, so
// expiration semantics stay with the evaluator regardless of when the entry
// was populated.
type GrantCache struct {
	source  consent.GrantSource
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	gens    generations
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewGrantCache(source consent.GrantSource, backend Backend, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *GrantCache {
	if ttl <= 0 || ttl > maxGrantTTL {
		ttl = maxGrantTTL
	}
	return &GrantCache{
		source:  source,
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  logger,
	}
}

// ListByPair satisfies consent.GrantSource. A backend failure is treated as a
// miss; the consent store stays the source of truth.
func (c *GrantCache) ListByPair(ctx context.Context, patientID domain.PatientID, providerID domain.ProviderID) ([]*consent.Token, error) {
	key := grantKey(patientID, providerID)

	cached, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn("grant cache read failed", "key", key, "error", err)
	} else if ok {
		var tokens []*consent.Token
		if err := json.Unmarshal(cached, &tokens); err == nil {
			if c.metrics != nil {
				c.metrics.CacheHits.Inc()
			}
			return tokens, nil
		}
		c.logger.Warn("grant cache entry corrupt, dropping", "key", key)
		_ = c.backend.Del(ctx, key)
	}
	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}

	// Collapse concurrent misses for the same pair into one store read.
	result, err, _ := c.group.Do(key, func() (any, error) {
		gen := c.gens.current(key)
		tokens, err := c.source.ListByPair(ctx, patientID, providerID)
		if err != nil {
			return nil, err
		}
		// An invalidation since the load began means this list may predate
		// a revoke. Serve it to the waiters but do not persist it.
		if encoded, err := json.Marshal(tokens); err == nil && c.gens.current(key) == gen {
			if err := c.backend.Set(ctx, key, encoded, c.ttl); err != nil {
				c.logger.Warn("grant cache write failed", "key", key, "error", err)
			}
		}
		return tokens, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*consent.Token), nil
}

// Invalidate drops the pair's entry. The consent service calls this before
// acknowledging any grant or revoke, so a mutation's own caller can never
// read a stale decision afterward.
func (c *GrantCache) Invalidate(ctx context.Context, patientID domain.PatientID, providerID domain.ProviderID) error {
	key := grantKey(patientID, providerID)
	c.gens.bump(key)
	c.group.Forget(key)
	return c.backend.Del(ctx, key)
}

func grantKey(patientID domain.PatientID, providerID domain.ProviderID) string {
	return "grants:" + patientID.String() + ":" + providerID.String()
}
