// Package cache provides the Redis connection bootstrap and general-purpose
// key/value helpers (TTL'd set/get, delete, integer increment). Seat
// reservations live in internal/reservation and event caching in
// internal/cache, both over the client this package opens.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache defines general-purpose Redis operations shared by every package
// that needs simple key/value caching. Seat-availability counting is
// deliberately not part of this interface — it is derived from the seats
// table (internal/event.Repository.AvailableCount), never mirrored here,
// since a cached counter and the rows it summarizes can drift under
// concurrent writes.
type Cache interface {
	// Set stores a value with optional TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Get retrieves a string value from cache
	Get(ctx context.Context, key string) (string, error)
	// GetInt retrieves an integer value from cache
	GetInt(ctx context.Context, key string) (int, error)
	// Del removes a key from cache
	Del(ctx context.Context, key string) error
	// IncrBy atomically increments a key by n
	IncrBy(ctx context.Context, key string, n int) (int, error)
	// Close closes the Redis connection
	Close() error
}

// Redis implements the Cache interface using Redis as the backing store.
type Redis struct {
	client *redis.Client // Redis client instance
}

// MustOpen creates a new Redis connection and panics on failure.
// Used during application startup where Redis connectivity is required.
func MustOpen(addr string, db int) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		panic(err)
	}
	return &Redis{client: rdb}
}

func (r *Redis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *Redis) GetInt(ctx context.Context, key string) (int, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	return i, nil
}

func (r *Redis) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *Redis) IncrBy(ctx context.Context, key string, n int) (int, error) {
	res, err := r.client.IncrBy(ctx, key, int64(n)).Result()
	return int(res), err
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Client exposes the underlying go-redis client so collaborators that need
// primitives beyond the Cache interface — Lua scripts, pub/sub, sorted
// sets — can share this connection instead of opening another one.
// internal/reservation and internal/cache both take this.
func (r *Redis) Client() *redis.Client {
	return r.client
}
