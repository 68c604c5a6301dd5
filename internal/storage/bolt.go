package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	recordsBucket = []byte("records")
	locksBucket   = []byte("locks")
)

// BoltStore implements Store on an embedded bbolt file. Cache instances on one
// host coordinate through it by sharing the same *bolt.DB.
type BoltStore struct {
	db     *bolt.DB
	opts   *CacheOptions
	now    func() time.Time
	ownsDB bool
}

type boltEntry struct {
	Record      *CacheRecord `json:"record,omitempty"`
	Value       string       `json:"value,omitempty"`
	DeleteAfter time.Time    `json:"delete_after"`
}

func (e *boltEntry) expired(now time.Time) bool {
	return !e.DeleteAfter.IsZero() && !now.Before(e.DeleteAfter)
}

// BoltOption configures a BoltStore
type BoltOption func(*BoltStore)

// WithBoltOptions sets cache options
func WithBoltOptions(opts *CacheOptions) BoltOption {
	return func(bs *BoltStore) {
		if opts != nil {
			bs.opts = opts
		}
	}
}

// WithBoltClock replaces time.Now for expiry checks.
func WithBoltClock(now func() time.Time) BoltOption {
	return func(bs *BoltStore) {
		if now != nil {
			bs.now = now
		}
	}
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string, options ...BoltOption) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store database: %w", err)
	}
	bs, err := NewBoltStoreFromDB(db, options...)
	if err != nil {
		db.Close()
		return nil, err
	}
	bs.ownsDB = true
	return bs, nil
}

// NewBoltStoreFromDB uses an already open database. Close leaves db open.
func NewBoltStoreFromDB(db *bolt.DB, options ...BoltOption) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(recordsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(locksBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store buckets: %w", err)
	}

	bs := &BoltStore{
		db:   db,
		opts: DefaultCacheOptions(),
		now:  time.Now,
	}
	for _, option := range options {
		option(bs)
	}
	return bs, nil
}

func (bs *BoltStore) Read(ctx context.Context, key string) (*CacheRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entry *boltEntry
	err := bs.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(recordsBucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		entry = &boltEntry{}
		return json.Unmarshal(data, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if entry == nil || entry.Record == nil || entry.expired(bs.now()) {
		return nil, nil
	}
	return entry.Record, nil
}

func (bs *BoltStore) Write(ctx context.Context, key string, rec *CacheRecord) error {
	if rec == nil {
		return fmt.Errorf("record for %s is nil", key)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	entry := boltEntry{Record: rec}
	if bs.opts.DefaultTTL > 0 {
		entry.DeleteAfter = bs.now().Add(bs.opts.DefaultTTL)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	err = bs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// WriteIfAbsent checks and writes within a single read-write transaction; bbolt
// serializes those, so exactly one concurrent caller wins.
func (bs *BoltStore) WriteIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	acquired := false
	err := bs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(locksBucket)
		now := bs.now()
		if data := b.Get([]byte(key)); data != nil {
			var existing boltEntry
			if err := json.Unmarshal(data, &existing); err == nil && !existing.expired(now) {
				return nil
			}
		}
		entry := boltEntry{Value: value}
		if ttl > 0 {
			entry.DeleteAfter = now.Add(ttl)
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(key), data); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to acquire %s: %w", key, err)
	}
	return acquired, nil
}

func (bs *BoltStore) Close() error {
	if !bs.ownsDB {
		return nil
	}
	return bs.db.Close()
}
