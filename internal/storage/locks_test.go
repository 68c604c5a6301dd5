package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	bolt "go.etcd.io/bbolt"
)

// lockHolder reads back the value stored by a winning WriteIfAbsent.
type lockHolder interface {
	lockValue(ctx context.Context, key string) (string, bool, error)
}

func (ms *MemoryStore) lockValue(_ context.Context, key string) (string, bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	entry, ok := ms.locks[key]
	if !ok || entry.expired(ms.now()) {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (bs *BoltStore) lockValue(_ context.Context, key string) (string, bool, error) {
	var entry boltEntry
	found := false
	err := bs.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(locksBucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			return err
		}
		found = !entry.expired(bs.now())
		return nil
	})
	if err != nil || !found {
		return "", false, err
	}
	return entry.Value, true, nil
}

func (rs *RedisStore) lockValue(ctx context.Context, key string) (string, bool, error) {
	value, err := rs.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
