package cache

import (
	"sync"
	"time"
)

// MockCache is an in-memory Cache for tests. It ignores TTLs.
type MockCache struct {
	mu           sync.Mutex
	data         map[string][]byte
	hits, misses uint64
}

// NewMockCache creates a new mock cache for testing.
func NewMockCache() *MockCache {
	return &MockCache{
		data: make(map[string][]byte),
	}
}

func (m *MockCache) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, found := m.data[key]
	if found {
		m.hits++
	} else {
		m.misses++
	}
	return val, found
}

func (m *MockCache) Set(key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

func (m *MockCache) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *MockCache) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Hits:   m.hits,
		Misses: m.misses,
		Items:  int64(len(m.data)),
	}
}
