// Package cache implements the versioned, validated cache coordinator
// (component C5, spec §4.5): consistent key generation, a typed envelope
// around cached payloads, and pattern-based invalidation for the event
// catalog. Grounded on original_source/app/core/cache.go's CacheManager,
// adapted from Python's runtime Pydantic validation to Go's static typing
// via generics.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// cacheVersion is bumped whenever the envelope or a cached shape changes
// incompatibly; bumping it invalidates every existing key on next read.
const cacheVersion = "v1"

// entry is the envelope stored for every cached value, matching the
// {data, cached_at, version, ttl} shape of the original CacheManager.
type entry struct {
	Data     json.RawMessage `json:"data"`
	CachedAt time.Time       `json:"cached_at"`
	Version  string          `json:"version"`
	TTLSecs  int             `json:"ttl"`
}

// Coordinator is the cache component read-heavy services (internal/event's
// list, detail and seat-map reads) go through instead of talking to Redis
// directly; internal/booking only uses it to invalidate event entries.
type Coordinator struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func New(rdb *redis.Client, logger *zap.Logger) *Coordinator {
	return &Coordinator{rdb: rdb, logger: logger}
}

// Key builds a versioned, parameter-hashed cache key: version:prefix:hash8.
// Sorting params before hashing keeps the key stable across callers that
// build the params map in different field orders.
func Key(prefix string, params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	normalized := make(map[string]interface{}, len(params))
	for _, k := range keys {
		normalized[k] = params[k]
	}
	raw, _ := json.Marshal(normalized)
	sum := md5.Sum(raw)
	return fmt.Sprintf("%s:%s:%s", cacheVersion, prefix, hex.EncodeToString(sum[:])[:8])
}

// Set stores data under key wrapped in the versioned envelope.
func (c *Coordinator) Set(ctx context.Context, key string, data interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	e := entry{Data: raw, CachedAt: time.Now().UTC(), Version: cacheVersion, TTLSecs: int(ttl.Seconds())}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// ErrCacheMiss is returned when a key is absent. Callers fall back to the
// durable store on this error, the same as on validation failure —
// a miss and a corrupt entry look identical to the caller by design.
var ErrCacheMiss = errors.New("cache: miss")

// Get reads key and unmarshals its payload into dst. Any structural
// problem — missing entry, corrupt JSON, wrong envelope shape, version
// mismatch — deletes the key and returns ErrCacheMiss rather than a typed
// decode error, mirroring get_cache_data_only's fail-open re-validation.
func (c *Coordinator) Get(ctx context.Context, key string, dst interface{}) error {
	raw, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.logger.Warn("corrupt cache entry, evicting", zap.String("key", key), zap.Error(err))
		_ = c.rdb.Del(ctx, key).Err()
		return ErrCacheMiss
	}
	if e.Version != cacheVersion {
		c.logger.Info("cache version mismatch, evicting", zap.String("key", key))
		_ = c.rdb.Del(ctx, key).Err()
		return ErrCacheMiss
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		c.logger.Warn("cache entry failed validation, evicting", zap.String("key", key), zap.Error(err))
		_ = c.rdb.Del(ctx, key).Err()
		return ErrCacheMiss
	}
	return nil
}

// Del removes a single key.
func (c *Coordinator) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// InvalidatePattern deletes every key matching pattern, returning the
// count removed.
func (c *Coordinator) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

// InvalidateEventsCache wipes all event list/detail/seat caches, used
// when an event is created or deleted (spec §4.5: coarse invalidation).
func (c *Coordinator) InvalidateEventsCache(ctx context.Context) (int, error) {
	total := 0
	for _, pattern := range []string{
		cacheVersion + ":events:*",
		cacheVersion + ":event_detail:*",
		cacheVersion + ":event_seats:*",
	} {
		n, err := c.InvalidatePattern(ctx, pattern)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// InvalidateEventCache wipes the cache entries scoped to one event plus
// the events list, used when an event is updated (spec §4.5: targeted
// invalidation plus list invalidation since the list may embed it).
func (c *Coordinator) InvalidateEventCache(ctx context.Context, eventID string) (int, error) {
	total := 0
	// Key() hashes its params, so the event id never appears in a key and
	// the id patterns below cannot match; delete the exact detail and
	// seat-map keys internal/event builds for this event.
	n, err := c.rdb.Del(ctx,
		Key("event_detail", map[string]interface{}{"id": eventID}),
		Key("event_seats", map[string]interface{}{"event_id": eventID}),
	).Result()
	if err != nil {
		return total, err
	}
	total += int(n)
	for _, pattern := range []string{
		fmt.Sprintf("%s:event_detail:*%s*", cacheVersion, eventID),
		fmt.Sprintf("%s:event_seats:*%s*", cacheVersion, eventID),
		cacheVersion + ":events:*",
	} {
		n, err := c.InvalidatePattern(ctx, pattern)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
