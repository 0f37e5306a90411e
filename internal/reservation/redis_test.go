package reservation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eventbooking/internal/reservation"
)

func newTestClient(t *testing.T) (*reservation.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	breaker := reservation.NewCircuitBreaker(5, 50*time.Millisecond, 2)
	return reservation.New(rdb, breaker, zap.NewNop()), mr
}

func TestReserveSeats_NoDoubleSell(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	ok, failed, err := c.ReserveSeats(ctx, "evt-1", []string{"seat-a", "seat-b"}, "holder-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, failed)

	// A second holder contending for an overlapping set must fail outright,
	// and neither seat must end up reserved by the second holder — a
	// reservation attempt is all-or-nothing.
	ok2, failed2, err := c.ReserveSeats(ctx, "evt-1", []string{"seat-b", "seat-c"}, "holder-2", time.Minute)
	require.NoError(t, err)
	require.False(t, ok2)
	require.ElementsMatch(t, []string{"seat-b"}, failed2)

	verified, err := c.VerifyReservation(ctx, "evt-1", []string{"seat-c"}, "holder-2")
	require.NoError(t, err)
	require.False(t, verified, "seat-c must not have been reserved by holder-2 when seat-b was already taken")
}

func TestReserveSeats_RejectsDuplicateSeatIDs(t *testing.T) {
	c, _ := newTestClient(t)
	_, _, err := c.ReserveSeats(context.Background(), "evt-1", []string{"seat-a", "seat-a"}, "holder-1", time.Minute)
	require.Error(t, err)
}

func TestReserveSeats_RejectsEmptySeatIDs(t *testing.T) {
	c, _ := newTestClient(t)
	_, _, err := c.ReserveSeats(context.Background(), "evt-1", nil, "holder-1", time.Minute)
	require.Error(t, err)
}

func TestVerifyReservation_TrueForCurrentHolder(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	ok, _, err := c.ReserveSeats(ctx, "evt-1", []string{"seat-a"}, "holder-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	verified, err := c.VerifyReservation(ctx, "evt-1", []string{"seat-a"}, "holder-1")
	require.NoError(t, err)
	require.True(t, verified)

	verified, err = c.VerifyReservation(ctx, "evt-1", []string{"seat-a"}, "someone-else")
	require.NoError(t, err)
	require.False(t, verified)
}

func TestReleaseReservation_OnlyReleasesOwnedSeats(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, _, err := c.ReserveSeats(ctx, "evt-1", []string{"seat-a", "seat-b"}, "holder-1", time.Minute)
	require.NoError(t, err)

	n, err := c.ReleaseReservation(ctx, "evt-1", []string{"seat-a", "seat-b", "seat-c"}, "holder-1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	verified, err := c.VerifyReservation(ctx, "evt-1", []string{"seat-a"}, "holder-1")
	require.NoError(t, err)
	require.False(t, verified)
}

func TestExtendReservation_AllOrNothing(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, _, err := c.ReserveSeats(ctx, "evt-1", []string{"seat-a"}, "holder-1", time.Minute)
	require.NoError(t, err)

	ok, err := c.ExtendReservation(ctx, "evt-1", []string{"seat-a"}, "holder-1", 2*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.ExtendReservation(ctx, "evt-1", []string{"seat-a"}, "someone-else", 2*time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAcquireLock_ExclusiveOwnership(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	owner, err := c.AcquireLock(ctx, "event-1", "holder-1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "holder-1", owner)

	owner2, err := c.AcquireLock(ctx, "event-1", "holder-2", time.Minute)
	require.NoError(t, err)
	require.Empty(t, owner2)

	info, err := c.LockInfo(ctx, "event-1")
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, "holder-1", info.Owner)
}

func TestReleaseLock_OnlyOwnerCanRelease(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.AcquireLock(ctx, "event-1", "holder-1", time.Minute)
	require.NoError(t, err)

	ok, err := c.ReleaseLock(ctx, "event-1", "holder-2")
	require.NoError(t, err)
	require.False(t, ok, "a non-owner must not be able to release the lock")

	ok, err = c.ReleaseLock(ctx, "event-1", "holder-1")
	require.NoError(t, err)
	require.True(t, ok)

	owner, err := c.AcquireLock(ctx, "event-1", "holder-2", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "holder-2", owner, "the lock must be free once its owner releases it")
}

func TestExtendLock_OnlyOwnerCanExtend(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.AcquireLock(ctx, "event-1", "holder-1", time.Minute)
	require.NoError(t, err)

	ok, err := c.ExtendLock(ctx, "event-1", "holder-2", 5*time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = c.ExtendLock(ctx, "event-1", "holder-1", 5*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIsRateLimited_MonotonicUnderLimit(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		limited, count, err := c.IsRateLimited(ctx, "user-1:bookings", 3, time.Minute)
		require.NoError(t, err)
		require.False(t, limited)
		require.Equal(t, i+1, count, "the observed count must increase by exactly one per call under the limit")
	}

	limited, count, err := c.IsRateLimited(ctx, "user-1:bookings", 3, time.Minute)
	require.NoError(t, err)
	require.True(t, limited)
	require.Equal(t, 3, count)
}

func TestIsRateLimited_WindowExpiryResets(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	limited, _, err := c.IsRateLimited(ctx, "user-1:bookings", 1, 200*time.Millisecond)
	require.NoError(t, err)
	require.False(t, limited)

	limited, _, err = c.IsRateLimited(ctx, "user-1:bookings", 1, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, limited)

	// The window's score-based pruning keys off wall-clock time passed into
	// the script, not Redis key TTLs, so waiting out the window for real is
	// what exercises it.
	time.Sleep(250 * time.Millisecond)

	limited, _, err = c.IsRateLimited(ctx, "user-1:bookings", 1, 200*time.Millisecond)
	require.NoError(t, err)
	require.False(t, limited, "a call outside the window must not be counted against the limit")
}

func TestIsRateLimited_FailsOpenWhenCircuitOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	breaker := reservation.NewCircuitBreaker(1, time.Hour, 1)
	c := reservation.New(rdb, breaker, zap.NewNop())

	mr.Close()

	limited, count, err := c.IsRateLimited(context.Background(), "user-1:bookings", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, limited)
	require.Zero(t, count)
}

func TestReserveSeats_CircuitOpenFailsFastWithoutPartialWrites(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	breaker := reservation.NewCircuitBreaker(1, time.Hour, 1)
	c := reservation.New(rdb, breaker, zap.NewNop())

	mr.Close()

	// First call observes the real connection failure and trips the
	// breaker open (threshold 1); the second call must fail fast with
	// ErrCircuitOpen instead of touching the store again.
	_, _, err := c.ReserveSeats(context.Background(), "evt-1", []string{"seat-a"}, "holder-1", time.Minute)
	require.Error(t, err)
	require.False(t, errors.Is(err, reservation.ErrCircuitOpen))

	_, _, err = c.ReserveSeats(context.Background(), "evt-1", []string{"seat-a"}, "holder-1", time.Minute)
	require.True(t, errors.Is(err, reservation.ErrCircuitOpen))
}

func TestIsBlacklisted(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	blacklisted, err := c.IsBlacklisted(ctx, "digest-1")
	require.NoError(t, err)
	require.False(t, blacklisted)

	require.NoError(t, mr.Set("blacklist:digest-1", "1"))

	blacklisted, err = c.IsBlacklisted(ctx, "digest-1")
	require.NoError(t, err)
	require.True(t, blacklisted)
}
