package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a Store held in process memory. Cache instances created in
// the same process can share one to coordinate like separate hosts would.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memEntry
	locks   map[string]memEntry
	opts    *CacheOptions
	now     func() time.Time
}

type memEntry struct {
	record      *CacheRecord
	value       string
	deleteAfter time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.deleteAfter.IsZero() && !now.Before(e.deleteAfter)
}

// MemoryStoreOption configures a MemoryStore
type MemoryStoreOption func(*MemoryStore)

// WithMemoryStoreOptions sets cache options
func WithMemoryStoreOptions(opts *CacheOptions) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if opts != nil {
			ms.opts = opts
		}
	}
}

// WithMemoryStoreClock replaces time.Now for expiry checks.
func WithMemoryStoreClock(now func() time.Time) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if now != nil {
			ms.now = now
		}
	}
}

func NewMemoryStore(options ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		records: make(map[string]memEntry),
		locks:   make(map[string]memEntry),
		opts:    DefaultCacheOptions(),
		now:     time.Now,
	}
	for _, option := range options {
		option(ms)
	}
	return ms
}

// Read returns a copy so callers never alias stored state.
func (ms *MemoryStore) Read(ctx context.Context, key string) (*CacheRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	entry, ok := ms.records[key]
	if !ok {
		return nil, nil
	}
	if entry.expired(ms.now()) {
		delete(ms.records, key)
		return nil, nil
	}
	rec := *entry.record
	rec.Data = entry.record.Data.Clone()
	return &rec, nil
}

func (ms *MemoryStore) Write(ctx context.Context, key string, rec *CacheRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	stored := *rec
	stored.Data = rec.Data.Clone()
	stored.Failed = false

	ms.mu.Lock()
	defer ms.mu.Unlock()
	entry := memEntry{record: &stored}
	if ms.opts.DefaultTTL > 0 {
		entry.deleteAfter = ms.now().Add(ms.opts.DefaultTTL)
	}
	ms.records[key] = entry
	return nil
}

func (ms *MemoryStore) WriteIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	if existing, ok := ms.locks[key]; ok && !existing.expired(now) {
		return false, nil
	}
	entry := memEntry{value: value}
	if ttl > 0 {
		entry.deleteAfter = now.Add(ttl)
	}
	ms.locks[key] = entry
	return true, nil
}

func (ms *MemoryStore) Close() error {
	return nil
}
