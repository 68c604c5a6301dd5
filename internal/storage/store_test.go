package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type storeFactory func(t *testing.T, clock *fakeClock) Store

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, clock *fakeClock) Store {
			return NewMemoryStore(WithMemoryStoreClock(clock.Now))
		},
		"bolt": func(t *testing.T, clock *fakeClock) Store {
			store, err := NewBoltStore(filepath.Join(t.TempDir(), "cache.db"), WithBoltClock(clock.Now))
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
}

func TestStore_ReadWrite(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t, newFakeClock())

			rec, err := store.Read(ctx, "missing")
			require.NoError(t, err)
			assert.Nil(t, rec)

			expires := time.Date(2025, 1, 1, 0, 5, 0, 0, time.UTC)
			require.NoError(t, store.Write(ctx, "k", &CacheRecord{
				Data:      TranslationSet{"foo": "bar"},
				ETag:      `"abc"`,
				ExpiresAt: expires,
			}))

			rec, err = store.Read(ctx, "k")
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, TranslationSet{"foo": "bar"}, rec.Data)
			assert.Equal(t, `"abc"`, rec.ETag)
			assert.True(t, rec.ExpiresAt.Equal(expires))

			require.NoError(t, store.Write(ctx, "k", &CacheRecord{Data: TranslationSet{"foo": "baz"}}))
			rec, err = store.Read(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "baz", rec.Data["foo"])
			assert.Empty(t, rec.ETag)
		})
	}
}

func TestStore_RecordTTL(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			store := factory(t, clock)

			require.NoError(t, store.Write(ctx, "k", &CacheRecord{Data: TranslationSet{"a": "b"}}))
			clock.Advance(DefaultCacheOptions().DefaultTTL - time.Second)
			rec, err := store.Read(ctx, "k")
			require.NoError(t, err)
			require.NotNil(t, rec)

			clock.Advance(time.Second)
			rec, err = store.Read(ctx, "k")
			require.NoError(t, err)
			assert.Nil(t, rec)
		})
	}
}

func TestStore_WriteIfAbsent_HonoursTTL(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			store := factory(t, clock)

			ok, err := store.WriteIfAbsent(ctx, "lock", "1", 3*time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = store.WriteIfAbsent(ctx, "lock", "1", 3*time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			clock.Advance(3*time.Minute - time.Millisecond)
			ok, err = store.WriteIfAbsent(ctx, "lock", "1", 3*time.Minute)
			require.NoError(t, err)
			assert.False(t, ok, "lock must hold until its TTL elapses")

			clock.Advance(time.Millisecond)
			ok, err = store.WriteIfAbsent(ctx, "lock", "1", 3*time.Minute)
			require.NoError(t, err)
			assert.True(t, ok, "expired lock must be reacquirable")

			ok, err = store.WriteIfAbsent(ctx, "other", "1", 3*time.Minute)
			require.NoError(t, err)
			assert.True(t, ok, "locks are per key")
		})
	}
}

func TestStore_WriteIfAbsent_ExactlyOneWinner(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t, newFakeClock())

			const contenders = 32
			var wins int32
			var winner atomic.Value
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < contenders; i++ {
				wg.Add(1)
				go func(owner string) {
					defer wg.Done()
					<-start
					ok, err := store.WriteIfAbsent(context.Background(), "lock", owner, time.Minute)
					assert.NoError(t, err)
					if ok {
						atomic.AddInt32(&wins, 1)
						winner.Store(owner)
					}
				}(fmt.Sprintf("owner-%d", i))
			}
			close(start)
			wg.Wait()

			require.Equal(t, int32(1), atomic.LoadInt32(&wins))
			value, held, err := store.(lockHolder).lockValue(context.Background(), "lock")
			require.NoError(t, err)
			require.True(t, held)
			assert.Equal(t, winner.Load(), value)

			ok, err := store.WriteIfAbsent(context.Background(), "lock", "late", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)
			value, _, err = store.(lockHolder).lockValue(context.Background(), "lock")
			require.NoError(t, err)
			assert.Equal(t, winner.Load(), value, "a losing write must not replace the holder")
		})
	}
}

func TestStore_CancelledContext(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t, newFakeClock())
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := store.Read(ctx, "k")
			assert.Error(t, err)
			_, err = store.WriteIfAbsent(ctx, "lock", "1", time.Minute)
			assert.Error(t, err)
		})
	}
}

func TestMemoryStore_DoesNotAliasRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := TranslationSet{"foo": "bar"}
	require.NoError(t, store.Write(ctx, "k", &CacheRecord{Data: data}))
	data["foo"] = "mutated"

	rec, err := store.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "bar", rec.Data["foo"])
}

func TestBoltStore_SharedDB(t *testing.T) {
	ctx := context.Background()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "shared.db"), 0600, nil)
	require.NoError(t, err)
	defer db.Close()

	first, err := NewBoltStoreFromDB(db)
	require.NoError(t, err)
	second, err := NewBoltStoreFromDB(db)
	require.NoError(t, err)

	ok, err := first.WriteIfAbsent(ctx, "lock", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = second.WriteIfAbsent(ctx, "lock", "1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Write(ctx, "k", &CacheRecord{Data: TranslationSet{"foo": "bar"}}))
	rec, err := second.Read(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "bar", rec.Data["foo"])

	// Stores built on a caller-owned DB leave it open.
	require.NoError(t, first.Close())
	_, err = second.Read(ctx, "k")
	require.NoError(t, err)
}
