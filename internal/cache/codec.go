package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/onnwee/nbody-barneshut/backend/internal/metrics"
)

// Typed stores msgpack-encoded values of type T in a Cache and records hit
// and miss counts under name.
type Typed[T any] struct {
	cache     Cache
	name      string
	evictions atomic.Uint64 // last eviction count reported to metrics
}

// NewTyped wraps c.
func NewTyped[T any](c Cache, name string) *Typed[T] {
	return &Typed[T]{cache: c, name: name}
}

// Get decodes the value stored under key. Entries that fail to decode are
// dropped and reported as misses.
func (t *Typed[T]) Get(key string) (T, bool) {
	var v T
	raw, ok := t.cache.Get(key)
	if !ok {
		metrics.CacheMisses.WithLabelValues(t.name).Inc()
		return v, false
	}
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		t.cache.Delete(key)
		metrics.CacheMisses.WithLabelValues(t.name).Inc()
		var zero T
		return zero, false
	}
	metrics.CacheHits.WithLabelValues(t.name).Inc()
	return v, true
}

// Set encodes v and stores it under key.
func (t *Typed[T]) Set(key string, v T, ttl time.Duration) error {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	t.cache.Set(key, raw, ttl)
	s := t.cache.Stats()
	metrics.CacheItems.WithLabelValues(t.name).Set(float64(s.Items))
	if prev := t.evictions.Swap(s.Evictions); s.Evictions > prev {
		metrics.CacheEvictions.WithLabelValues(t.name).Add(float64(s.Evictions - prev))
	}
	return nil
}
