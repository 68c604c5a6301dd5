package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on top of a shared Redis instance.
type RedisStore struct {
	client *redis.Client
	opts   *CacheOptions
}

// NewRedisStore connects to addr (redis://[:password@]host:port[/db]) and
// verifies the connection with a PING.
func NewRedisStore(addr string, options ...RedisOption) (*RedisStore, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("can't parse url for redis: %w", err)
	}
	var passwd string
	if u.User != nil {
		passwd, _ = u.User.Password()
	}
	db := 0
	if 1 < len(u.Path) {
		db, err = strconv.Atoi(u.Path[1:])
		if err != nil {
			return nil, fmt.Errorf("can't convert redis db %q into int: %w", u.Path[1:], err)
		}
	}
	network := "tcp"
	if u.Scheme == "unix" {
		network = "unix"
	}

	client := redis.NewClient(&redis.Options{
		Network:  network,
		Addr:     u.Host,
		Password: passwd,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreFromClient(client, options...), nil
}

// NewRedisStoreFromClient wraps an existing client, e.g. one shared with other
// parts of the application or a redismock client in tests.
func NewRedisStoreFromClient(client *redis.Client, options ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		opts:   DefaultCacheOptions(),
	}
	for _, option := range options {
		option(store)
	}
	return store
}

// RedisOption is a function that configures the Redis store
type RedisOption func(*RedisStore)

// WithRedisOptions sets cache options
func WithRedisOptions(opts *CacheOptions) RedisOption {
	return func(rs *RedisStore) {
		if opts != nil {
			rs.opts = opts
		}
	}
}

func (rs *RedisStore) Read(ctx context.Context, key string) (*CacheRecord, error) {
	data, err := rs.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s from Redis: %w", key, err)
	}

	var rec CacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return &rec, nil
}

func (rs *RedisStore) Write(ctx context.Context, key string, rec *CacheRecord) error {
	if rec == nil {
		return fmt.Errorf("record for %s is nil", key)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := rs.client.Set(ctx, key, data, rs.opts.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to write %s to Redis: %w", key, err)
	}
	return nil
}

// WriteIfAbsent is SET key value NX PX ttl.
func (rs *RedisStore) WriteIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	result := rs.client.SetNX(ctx, key, value, ttl)
	if result.Err() != nil {
		return false, fmt.Errorf("failed to acquire %s: %w", key, result.Err())
	}
	return result.Val(), nil
}

func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
