// Package cache provides a read-through cache in front of the consent store's
// grant lookups. Entries carry a short TTL as an upper staleness bound, but
// the consent service invalidates synchronously on every grant and revoke, so
// the TTL only matters when invalidation is missed (another process mutating
// the store directly).
package cache

import (
	"context"
	"time"
)

// Backend is the cache storage surface. Misses return (nil, false, nil); an
// error means the backend is unreachable, which callers treat as a miss.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
