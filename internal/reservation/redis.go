// Package reservation implements the fast-store contention gate (spec §4.1,
// component C1): atomic soft seat reservations, distributed locks, sliding
// window rate limiting, and a pub/sub event bus, all guarded by a circuit
// breaker. Every multi-step check-and-write is a single Lua script so no
// caller can observe or act on a partial state.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when the circuit breaker has tripped and is
// failing fast rather than forwarding the call to the store.
var ErrCircuitOpen = errors.New("reservation store circuit breaker open")

const (
	seatKeyPrefix   = "seat:reserved:"
	lockKeyPrefix   = "lock:"
	rateKeyPrefix   = "rate:"
	blacklistPrefix = "blacklist:"
)

// Client is the reservation store client described by spec §4.1. It wraps a
// go-redis client with atomic Lua operations and a circuit breaker.
type Client struct {
	rdb     *redis.Client
	breaker *CircuitBreaker
	logger  *zap.Logger

	reserveScript  *redis.Script
	verifyScript   *redis.Script
	releaseScript  *redis.Script
	extendScript   *redis.Script
	acquireLockScript *redis.Script
	releaseLockScript *redis.Script
	extendLockScript  *redis.Script
	rateLimitScript   *redis.Script
}

// New constructs a reservation store client over an existing Redis
// connection (shared with the cache coordinator, per the teacher's single
// go-redis client convention) and a circuit breaker configured from
// pkg/config.Reservation.
func New(rdb *redis.Client, breaker *CircuitBreaker, logger *zap.Logger) *Client {
	return &Client{
		rdb:     rdb,
		breaker: breaker,
		logger:  logger,

		reserveScript:     redis.NewScript(reserveSeatsLua),
		verifyScript:      redis.NewScript(verifyReservationLua),
		releaseScript:     redis.NewScript(releaseReservationLua),
		extendScript:      redis.NewScript(extendReservationLua),
		acquireLockScript: redis.NewScript(acquireLockLua),
		releaseLockScript: redis.NewScript(releaseLockLua),
		extendLockScript:  redis.NewScript(extendLockLua),
		rateLimitScript:   redis.NewScript(rateLimitLua),
	}
}

func seatKey(eventID, seatID string) string {
	return seatKeyPrefix + eventID + ":" + seatID
}

func sortedCopy(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}

// reserveSeatsLua reserves every key in KEYS for ARGV[1] (holder) with TTL
// ARGV[2] seconds, but only if none of them are already held. It checks
// every key before writing any of them, so a failure leaves no partial
// reservation behind.
const reserveSeatsLua = `
local holder = ARGV[1]
local ttl = tonumber(ARGV[2])
local failed = {}
for i, key in ipairs(KEYS) do
	if redis.call('EXISTS', key) == 1 then
		table.insert(failed, key)
	end
end
if #failed > 0 then
	return failed
end
for i, key in ipairs(KEYS) do
	redis.call('SET', key, holder, 'EX', ttl)
	redis.call('HSET', key .. ':meta', 'holder_id', holder, 'reserved_at', ARGV[3])
	redis.call('EXPIRE', key .. ':meta', ttl)
end
return {}
`

// ReserveSeats attempts to atomically reserve every (eventID, seatID) pair
// under holderID for ttl. On partial contention it returns the subset of
// seat ids that blocked the reservation and reserves nothing.
func (c *Client) ReserveSeats(ctx context.Context, eventID string, seatIDs []string, holderID string, ttl time.Duration) (ok bool, failedSeatIDs []string, err error) {
	if len(seatIDs) == 0 {
		return false, nil, errors.New("reservation: seatIDs must be non-empty")
	}
	seen := make(map[string]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		if _, dup := seen[id]; dup {
			return false, nil, fmt.Errorf("reservation: duplicate seat id %q", id)
		}
		seen[id] = struct{}{}
	}

	sorted := sortedCopy(seatIDs)
	keys := make([]string, len(sorted))
	for i, s := range sorted {
		keys[i] = seatKey(eventID, s)
	}

	var raw []interface{}
	cbErr := c.breaker.Call(func() error {
		result, e := c.reserveScript.Run(ctx, c.rdb, keys, holderID, int(ttl.Seconds()), time.Now().UTC().Format(time.RFC3339)).Result()
		if e != nil {
			return e
		}
		raw, _ = result.([]interface{})
		return nil
	})
	if cbErr != nil {
		if errors.Is(cbErr, ErrCircuitOpen) {
			return false, nil, ErrCircuitOpen
		}
		c.logger.Error("reserve seats failed", zap.String("event_id", eventID), zap.Error(cbErr))
		return false, nil, cbErr
	}

	failedKeys := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			failedKeys = append(failedKeys, s)
		}
	}
	if len(failedKeys) > 0 {
		failedIDs := make([]string, 0, len(failedKeys))
		for _, k := range failedKeys {
			failedIDs = append(failedIDs, strings.TrimPrefix(k, seatKeyPrefix+eventID+":"))
		}
		return false, failedIDs, nil
	}
	return true, nil, nil
}

// verifyReservationLua reports whether every key in KEYS currently maps to
// ARGV[1] (holder), returning 1 if so and 0 otherwise. It is loaded into
// Client.verifyScript but no method runs it: VerifyReservation checks
// ownership via a pipelined GET instead.
const verifyReservationLua = `
local holder = ARGV[1]
for i, key in ipairs(KEYS) do
	if redis.call('GET', key) ~= holder then
		return 0
	end
end
return 1
`

// VerifyReservation reports whether every seat id currently maps to holderID.
func (c *Client) VerifyReservation(ctx context.Context, eventID string, seatIDs []string, holderID string) (bool, error) {
	keys := make([]string, len(seatIDs))
	for i, s := range seatIDs {
		keys[i] = seatKey(eventID, s)
	}
	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Get(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	for _, cmd := range cmds {
		v, err := cmd.Result()
		if err != nil || v != holderID {
			return false, nil
		}
	}
	return true, nil
}

// releaseReservationLua releases every key in KEYS that is still owned by
// ARGV[1], returning the count actually released.
const releaseReservationLua = `
local holder = ARGV[1]
local released = 0
for i, key in ipairs(KEYS) do
	local v = redis.call('GET', key)
	if v == holder then
		redis.call('DEL', key, key .. ':meta')
		released = released + 1
	end
end
return released
`

// ReleaseReservation releases the seats in seatIDs currently owned by
// holderID. It is not an error for some to already be gone.
func (c *Client) ReleaseReservation(ctx context.Context, eventID string, seatIDs []string, holderID string) (int, error) {
	keys := make([]string, len(seatIDs))
	for i, s := range seatIDs {
		keys[i] = seatKey(eventID, s)
	}
	var n int64
	err := c.breaker.Call(func() error {
		res, e := c.releaseScript.Run(ctx, c.rdb, keys, holderID).Result()
		if e != nil {
			return e
		}
		n, _ = res.(int64)
		return nil
	})
	if err != nil && errors.Is(err, ErrCircuitOpen) {
		return 0, nil // best-effort release; circuit-open means nothing to clean up from our side
	}
	return int(n), err
}

// extendReservationLua refreshes TTL on every key, but only if all of them
// are owned by ARGV[1]; otherwise nothing is changed.
const extendReservationLua = `
local holder = ARGV[1]
local ttl = tonumber(ARGV[2])
for i, key in ipairs(KEYS) do
	local v = redis.call('GET', key)
	if v ~= holder then
		return 0
	end
end
for i, key in ipairs(KEYS) do
	redis.call('EXPIRE', key, ttl)
	redis.call('EXPIRE', key .. ':meta', ttl)
end
return 1
`

// ExtendReservation refreshes the TTL for every seat, all-or-nothing, scoped
// to the presented holder.
func (c *Client) ExtendReservation(ctx context.Context, eventID string, seatIDs []string, holderID string, ttl time.Duration) (bool, error) {
	keys := make([]string, len(seatIDs))
	for i, s := range seatIDs {
		keys[i] = seatKey(eventID, s)
	}
	var ok bool
	err := c.breaker.Call(func() error {
		res, e := c.extendScript.Run(ctx, c.rdb, keys, holderID, int(ttl.Seconds())).Result()
		if e != nil {
			return e
		}
		n, _ := res.(int64)
		ok = n == 1
		return nil
	})
	return ok, err
}

// acquireLockLua sets KEYS[1] to ARGV[1] only if absent, with TTL ARGV[2].
const acquireLockLua = `
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'EX', tonumber(ARGV[2])) then
	redis.call('HSET', KEYS[1] .. ':meta', 'owner', ARGV[1], 'acquired_at', ARGV[3], 'ttl', ARGV[2])
	redis.call('EXPIRE', KEYS[1] .. ':meta', tonumber(ARGV[2]))
	return 1
end
return 0
`

// AcquireLock attempts to take resource for holderID for ttl. Returns
// holderID if acquired, or empty string if someone else holds it.
func (c *Client) AcquireLock(ctx context.Context, resource, holderID string, ttl time.Duration) (string, error) {
	key := lockKeyPrefix + resource
	var acquired bool
	err := c.breaker.Call(func() error {
		res, e := c.acquireLockScript.Run(ctx, c.rdb, []string{key}, holderID, int(ttl.Seconds()), time.Now().UTC().Format(time.RFC3339)).Result()
		if e != nil {
			return e
		}
		n, _ := res.(int64)
		acquired = n == 1
		return nil
	})
	if err != nil {
		return "", err
	}
	if !acquired {
		return "", nil
	}
	return holderID, nil
}

// releaseLockLua deletes the lock only if ARGV[1] is the current owner.
const releaseLockLua = `
local v = redis.call('GET', KEYS[1])
if v == ARGV[1] then
	redis.call('DEL', KEYS[1], KEYS[1] .. ':meta')
	return 1
end
return 0
`

// ReleaseLock releases resource only if holderID is the current owner.
func (c *Client) ReleaseLock(ctx context.Context, resource, holderID string) (bool, error) {
	key := lockKeyPrefix + resource
	var ok bool
	err := c.breaker.Call(func() error {
		res, e := c.releaseLockScript.Run(ctx, c.rdb, []string{key}, holderID).Result()
		if e != nil {
			return e
		}
		n, _ := res.(int64)
		ok = n == 1
		return nil
	})
	return ok, err
}

// extendLockLua refreshes TTL on the lock and its metadata, only if
// ARGV[1] is the current owner.
const extendLockLua = `
local v = redis.call('GET', KEYS[1])
if v == ARGV[1] then
	redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
	redis.call('EXPIRE', KEYS[1] .. ':meta', tonumber(ARGV[2]))
	redis.call('HSET', KEYS[1] .. ':meta', 'extended_at', ARGV[3])
	return 1
end
return 0
`

// ExtendLock refreshes the TTL on resource, only if holderID is the owner.
func (c *Client) ExtendLock(ctx context.Context, resource, holderID string, ttl time.Duration) (bool, error) {
	key := lockKeyPrefix + resource
	var ok bool
	err := c.breaker.Call(func() error {
		res, e := c.extendLockScript.Run(ctx, c.rdb, []string{key}, holderID, int(ttl.Seconds()), time.Now().UTC().Format(time.RFC3339)).Result()
		if e != nil {
			return e
		}
		n, _ := res.(int64)
		ok = n == 1
		return nil
	})
	return ok, err
}

// LockInfo describes the current holder of a distributed lock.
type LockInfo struct {
	Owner      string
	TTLSeconds int
	Metadata   map[string]string
}

// LockInfo returns the current lock state, or nil if the lock is not held.
func (c *Client) LockInfo(ctx context.Context, resource string) (*LockInfo, error) {
	key := lockKeyPrefix + resource
	meta, err := c.rdb.HGetAll(ctx, key+":meta").Result()
	if err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, nil
	}
	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return &LockInfo{
		Owner:      meta["owner"],
		TTLSeconds: int(ttl.Seconds()),
		Metadata:   meta,
	}, nil
}

// rateLimitLua implements the sliding-window counter: prune entries older
// than the window, count what remains, and — if still under the limit —
// record this call before returning the (possibly stale-by-one) count.
const rateLimitLua = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window)
	return {0, count + 1}
end
return {1, count}
`

// IsRateLimited applies a sliding-window rate limit keyed by key. On store
// failure it fails open (not limited, count 0) after the breaker records
// the failure, per spec §4.1.
func (c *Client) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (limited bool, currentCount int, err error) {
	fullKey := rateKeyPrefix + key
	now := time.Now().UnixMilli()
	member := strconv.FormatInt(now, 10) + ":" + randSuffix()

	var res []interface{}
	cbErr := c.breaker.Call(func() error {
		result, e := c.rateLimitScript.Run(ctx, c.rdb, []string{fullKey}, now, window.Milliseconds(), limit, member).Result()
		if e != nil {
			return e
		}
		res, _ = result.([]interface{})
		return nil
	})
	if cbErr != nil {
		c.logger.Warn("rate limit check failed, failing open", zap.String("key", key), zap.Error(cbErr))
		return false, 0, nil
	}
	if len(res) != 2 {
		return false, 0, errors.New("reservation: unexpected rate limit script result")
	}
	flag, _ := res[0].(int64)
	count, _ := res[1].(int64)
	return flag == 1, int(count), nil
}

func randSuffix() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}

// Publish broadcasts message on channel. The core never waits on delivery;
// the returned subscriber count is informational only.
func (c *Client) Publish(ctx context.Context, channel string, message string) (int64, error) {
	return c.rdb.Publish(ctx, channel, message).Result()
}

// Subscribe returns a live subscription to the given channels.
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}

// IsBlacklisted checks the auth collaborator's token-blacklist key.
func (c *Client) IsBlacklisted(ctx context.Context, tokenDigest string) (bool, error) {
	_, err := c.rdb.Get(ctx, blacklistPrefix+tokenDigest).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CircuitState exposes the breaker state for health checks.
func (c *Client) CircuitState() State {
	return c.breaker.CurrentState()
}

// Ping checks basic connectivity, for health probes.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
