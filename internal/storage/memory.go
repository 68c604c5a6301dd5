package storage

import (
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// MemoryCache is the bounded in-process layer: locale -> CacheRecord with
// least-recently-used eviction. Lookup callers and the poller share it, so every
// access goes through mu.
type MemoryCache struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[string, *CacheRecord]
	onEvict func(locale string)
}

// NewMemoryCache creates a cache holding at most capacity locales.
func NewMemoryCache(capacity int) (*MemoryCache, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("memory cache capacity must be positive, got %d", capacity)
	}
	mc := &MemoryCache{}
	// Runs with mu held, from Put and Purge.
	lru, err := simplelru.NewLRU[string, *CacheRecord](capacity, func(locale string, _ *CacheRecord) {
		if mc.onEvict != nil {
			mc.onEvict(locale)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	mc.lru = lru
	return mc, nil
}

// OnEvict registers fn to be called for every locale dropped by eviction or
// Purge. fn must not call back into the cache.
func (mc *MemoryCache) OnEvict(fn func(locale string)) {
	mc.mu.Lock()
	mc.onEvict = fn
	mc.mu.Unlock()
}

// Get returns the record of a locale and marks it most recently used.
func (mc *MemoryCache) Get(locale string) (*CacheRecord, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.lru.Get(locale)
}

// Peek returns the record of a locale without touching recency.
func (mc *MemoryCache) Peek(locale string) (*CacheRecord, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.lru.Peek(locale)
}

// Put stores rec, marks it most recently used and evicts the least recently
// used locale when capacity would be exceeded.
func (mc *MemoryCache) Put(locale string, rec *CacheRecord) {
	if rec == nil {
		return
	}
	mc.mu.Lock()
	mc.lru.Add(locale, rec)
	mc.mu.Unlock()
}

// Contains reports residency without touching recency.
func (mc *MemoryCache) Contains(locale string) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.lru.Contains(locale)
}

// Keys returns a snapshot of resident locales, least recently used first.
func (mc *MemoryCache) Keys() []string {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.lru.Keys()
}

func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.lru.Len()
}

// Purge drops every locale.
func (mc *MemoryCache) Purge() {
	mc.mu.Lock()
	mc.lru.Purge()
	mc.mu.Unlock()
}
