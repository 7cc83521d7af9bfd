package cache

import (
	"bytes"
	"sync"
	"time"
)

// Store holds cache entries by key.
//
// Implementations must be safe for concurrent use. Get must never return a
// partially written entry, and callers must not be able to mutate stored
// payloads through the returned data.
type Store interface {
	// Get returns the entry for key, or false if none exists.
	Get(key CacheKey) (CacheEntry, bool)

	// Put overwrites the entry for key with data stamped at now.
	Put(key CacheKey, data []byte, now time.Time)
}

// MemoryStore is the in-process Store. Entries are never evicted.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[CacheKey]CacheEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[CacheKey]CacheEntry),
	}
}

// Get returns a copy of the entry for key.
func (s *MemoryStore) Get(key CacheKey) (CacheEntry, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return CacheEntry{}, false
	}
	entry.Data = bytes.Clone(entry.Data)
	return entry, true
}

// Put stores a copy of data under key.
func (s *MemoryStore) Put(key CacheKey, data []byte, now time.Time) {
	entry := CacheEntry{
		Data:      bytes.Clone(data),
		FetchedAt: now,
	}

	s.mu.Lock()
	s.entries[key] = entry
	n := len(s.entries)
	s.mu.Unlock()

	CacheEntries.Set(float64(n))
}

// Len returns the number of cached keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
