package cache

import (
	"sync"
	"time"
)

// MemoryCache implements an in-memory cache bounded by entry count and TTL.
// It backs the client-side message id dedup set and the avatar cache, so it
// must never grow without limit.
type MemoryCache struct {
	mu      sync.RWMutex
	data    map[string]*cacheEntry
	ttl     time.Duration
	maxSize int
}

// cacheEntry represents a single cache entry
type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
	createdAt time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(defaultTTL time.Duration, maxSize int) *MemoryCache {
	return &MemoryCache{
		data:    make(map[string]*cacheEntry),
		ttl:     defaultTTL,
		maxSize: maxSize,
	}
}

// Set stores a value in the cache with TTL. Zero ttl means the default TTL.
func (mc *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if ttl == 0 {
		ttl = mc.ttl
	}

	if mc.maxSize > 0 && len(mc.data) >= mc.maxSize {
		if _, exists := mc.data[key]; !exists {
			mc.evictOldest()
		}
	}

	mc.data[key] = &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
		createdAt: time.Now(),
	}
}

// Get retrieves a value from the cache
func (mc *MemoryCache) Get(key string) (interface{}, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	entry, exists := mc.data[key]
	if !exists {
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		delete(mc.data, key)
		return nil, false
	}

	return entry.value, true
}

// Has reports whether a live entry exists for key
func (mc *MemoryCache) Has(key string) bool {
	_, ok := mc.Get(key)
	return ok
}

// SetIfAbsent stores the value only when no live entry exists for key.
// Returns true when the value was stored. This is the dedup primitive: the
// first delivery of a message id wins, duplicates within the window lose.
func (mc *MemoryCache) SetIfAbsent(key string, value interface{}, ttl time.Duration) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if entry, exists := mc.data[key]; exists && time.Now().Before(entry.expiresAt) {
		return false
	}

	if ttl == 0 {
		ttl = mc.ttl
	}
	if mc.maxSize > 0 && len(mc.data) >= mc.maxSize {
		if _, exists := mc.data[key]; !exists {
			mc.evictOldest()
		}
	}

	mc.data[key] = &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
		createdAt: time.Now(),
	}
	return true
}

// Delete removes a value from the cache
func (mc *MemoryCache) Delete(key string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	delete(mc.data, key)
}

// Clear removes all entries from the cache
func (mc *MemoryCache) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.data = make(map[string]*cacheEntry)
}

// Size returns the current number of entries in the cache
func (mc *MemoryCache) Size() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.data)
}

// evictOldest removes the oldest entry. Caller must hold mc.mu.
func (mc *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range mc.data {
		if oldestKey == "" || entry.createdAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.createdAt
		}
	}

	if oldestKey != "" {
		delete(mc.data, oldestKey)
	}
}
