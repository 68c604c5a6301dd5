package storage

import (
	"context"
	"time"
)

// Store is the shared cache layer several processes coordinate through.
//
// WriteIfAbsent must be atomic in the backing store: when several callers race
// on the same key with no unexpired entry present, exactly one of them gets
// true.
type Store interface {
	// Read returns nil, nil when the key is absent.
	Read(ctx context.Context, key string) (*CacheRecord, error)
	Write(ctx context.Context, key string, rec *CacheRecord) error
	WriteIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Close() error
}

type CacheOptions struct {
	// DefaultTTL bounds how long a translation record survives in the shared
	// store without being rewritten.
	DefaultTTL time.Duration
}

func DefaultCacheOptions() *CacheOptions {
	return &CacheOptions{
		DefaultTTL: 24 * time.Hour,
	}
}
