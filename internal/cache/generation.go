package cache

import "sync"

// generations tracks a per-key invalidation counter. A loader captures the
// key's generation before it reads the source and persists its result only if
// the generation is unchanged. singleflight.Forget detaches future callers
// but cannot stop an in-flight load, so without this check a load that read
// the store just before an invalidation could write pre-invalidation state
// back into the backend after the invalidation's delete.
type generations struct {
	mu sync.Mutex
	m  map[string]uint64
}

func (g *generations) current(key string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.m[key]
}

func (g *generations) bump(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.m == nil {
		g.m = make(map[string]uint64)
	}
	g.m[key]++
}
