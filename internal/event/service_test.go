package event_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"eventbooking/internal/cache"
	"eventbooking/internal/dbsession"
	"eventbooking/internal/event"
)

// newTestService wires a Service against a fresh in-memory sqlite database
// and a miniredis-backed cache coordinator, mirroring how cmd/server
// constructs these at startup but scoped to one test.
func newTestService(t *testing.T) (*event.Service, *event.Repository, *dbsession.Session) {
	t.Helper()
	repo, coordinator, session := newTestRepoAndCache(t)
	return event.NewService(repo, coordinator, nil, zap.NewNop()), repo, session
}

// newTestRepoAndCache wires a fresh in-memory sqlite repository and a
// miniredis-backed cache coordinator, used directly by tests that need to
// construct a Service with a non-default ConfirmedBookingChecker.
func newTestRepoAndCache(t *testing.T) (*event.Repository, *cache.Coordinator, *dbsession.Session) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	session := dbsession.New(db, dbsession.DialectSQLite, zap.NewNop())
	repo := event.NewRepository(session)
	require.NoError(t, repo.AutoMigrate())

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	coordinator := cache.New(rdb, zap.NewNop())

	return repo, coordinator, session
}

func seedEvent(t *testing.T, repo *event.Repository, seatCount int) *event.Event {
	t.Helper()
	ctx := context.Background()

	e := &event.Event{
		ID:        uuid.NewString(),
		Name:      "Concert",
		VenueName: "Arena",
		VenueCity: "Springfield",
		StartTime: time.Now().Add(48 * time.Hour),
		EndTime:   time.Now().Add(51 * time.Hour),
		Capacity:  seatCount,
		Status:    event.StatusUpcoming,
	}
	require.NoError(t, repo.Create(ctx, e))

	seats := make([]event.Seat, seatCount)
	for i := range seats {
		seats[i] = event.Seat{
			ID:         uuid.NewString(),
			EventID:    e.ID,
			Section:    "A",
			Row:        "1",
			SeatNumber: uuid.NewString()[:4],
			PriceCents: 5000,
			Status:     event.SeatAvailable,
		}
	}
	require.NoError(t, repo.CreateSeats(ctx, seats))
	return e
}

func TestService_Create_StampsSeatsAndInvalidatesCache(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	// Prime the events-list cache with the empty catalog.
	before, err := svc.List(ctx)
	require.NoError(t, err)
	require.Empty(t, before)

	e := &event.Event{
		Name:      "Opera Night",
		VenueName: "Hall",
		VenueCity: "Metropolis",
		StartTime: time.Now().Add(24 * time.Hour),
		EndTime:   time.Now().Add(26 * time.Hour),
		Capacity:  2,
	}
	seats := []event.Seat{
		{Section: "A", Row: "1", SeatNumber: "1", PriceCents: 1000},
		{Section: "A", Row: "1", SeatNumber: "2", PriceCents: 1000},
	}
	require.NoError(t, svc.Create(ctx, e, seats))
	require.NotEmpty(t, e.ID)

	stored, err := repo.ListByEvent(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, s := range stored {
		require.Equal(t, e.ID, s.EventID)
		require.Equal(t, event.SeatAvailable, s.Status)
	}

	after, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, after, 1, "Create must invalidate the cached events list")
}

func TestService_List_CachesResult(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	seedEvent(t, repo, 3)

	first, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.List(ctx)
	require.NoError(t, err)
	require.Equal(t, first[0].ID, second[0].ID)
}

func TestService_AvailableCount_ReflectsSeatStatus(t *testing.T) {
	svc, repo, session := newTestService(t)
	ctx := context.Background()
	e := seedEvent(t, repo, 5)

	n, err := svc.AvailableCount(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5), n)

	seats, err := repo.ListByEvent(ctx, e.ID)
	require.NoError(t, err)

	err = session.Transaction(ctx, func(tx *gorm.DB) error {
		return repo.MarkSeatsReserved(tx, []string{seats[0].ID}, "user-1", time.Now())
	})
	require.NoError(t, err)

	n, err = svc.AvailableCount(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
}

func TestService_Update_InvalidatesTargetedCache(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	e := seedEvent(t, repo, 1)

	_, err := svc.Get(ctx, e.ID)
	require.NoError(t, err)

	e.Name = "Renamed"
	require.NoError(t, svc.Update(ctx, e))

	got, err := svc.Get(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Name)
}

func TestService_Delete_RemovesEventAndSeats(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	e := seedEvent(t, repo, 2)

	require.NoError(t, svc.Delete(ctx, e.ID))

	_, err := repo.Get(ctx, e.ID)
	require.Error(t, err)

	seats, err := repo.ListByEvent(ctx, e.ID)
	require.NoError(t, err)
	require.Empty(t, seats)
}

// fakeBookingChecker stubs event.ConfirmedBookingChecker without pulling in
// internal/booking, keeping this package's tests free of that dependency.
type fakeBookingChecker struct {
	has bool
	err error
}

func (f fakeBookingChecker) HasConfirmedBookings(ctx context.Context, eventID string) (bool, error) {
	return f.has, f.err
}

func TestService_Delete_RejectsWhenConfirmedBookingsExist(t *testing.T) {
	repo, coordinator, _ := newTestRepoAndCache(t)
	svc := event.NewService(repo, coordinator, fakeBookingChecker{has: true}, zap.NewNop())
	ctx := context.Background()
	e := seedEvent(t, repo, 2)

	err := svc.Delete(ctx, e.ID)
	require.ErrorIs(t, err, event.ErrHasConfirmedBookings)

	_, err = repo.Get(ctx, e.ID)
	require.NoError(t, err, "event must remain when deletion is refused")
}
