package cache

import "time"

// Cache stores encoded values under string keys with a TTL. The run service
// keeps msgpack-encoded simulation results in it, keyed by run spec.
type Cache interface {
	// Get returns the value under key if present and not expired.
	Get(key string) ([]byte, bool)

	// Set stores value under key. A zero TTL uses the cache default.
	// Stores may be applied asynchronously and may be rejected under
	// memory pressure.
	Set(key string, value []byte, ttl time.Duration)

	// Delete drops key.
	Delete(key string)

	Stats() Stats
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	KeysAdded uint64
	Evictions uint64
	Size      int64 // approximate cost in bytes
	Items     int64
}
