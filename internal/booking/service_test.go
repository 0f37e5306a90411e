package booking_test

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"eventbooking/internal/booking"
	"eventbooking/internal/bookingerr"
	"eventbooking/internal/dbsession"
	"eventbooking/internal/event"
	"eventbooking/internal/metrics"
	"eventbooking/internal/mocks"
	"eventbooking/internal/reservation"
	"eventbooking/internal/saga"
)

// testFixture wires a booking.Service against an in-memory sqlite durable
// store (shared by booking.Repository, event.Repository and
// saga.StateRepository, the same way cmd/server shares one *gorm.DB) plus
// gomock doubles for the reservation-store and cache-invalidation
// collaborators.
type testFixture struct {
	svc     *booking.Service
	events  *event.Repository
	resv    *mocks.MockReservationClient
	cache   *mocks.MockEventCacheInvalidator
	session *dbsession.Session
}

func newFixture(t *testing.T, cfg booking.Config) *testFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	session := dbsession.New(db, dbsession.DialectSQLite, zap.NewNop())

	bookingRepo := booking.NewRepository(session)
	require.NoError(t, bookingRepo.AutoMigrate())
	eventsRepo := event.NewRepository(session)
	require.NoError(t, eventsRepo.AutoMigrate())
	stateRepo := saga.NewStateRepository(session)
	require.NoError(t, stateRepo.AutoMigrate())

	orch := saga.NewOrchestrator(stateRepo, zap.NewNop())
	ctrl := gomock.NewController(t)
	resv := mocks.NewMockReservationClient(ctrl)
	cacheInv := mocks.NewMockEventCacheInvalidator(ctrl)
	collector := metrics.New(prometheus.NewRegistry(), zap.NewNop())

	svc := booking.NewService(bookingRepo, eventsRepo, session, orch, resv, cacheInv, nil, collector, zap.NewNop(), cfg)
	return &testFixture{svc: svc, events: eventsRepo, resv: resv, cache: cacheInv, session: session}
}

func defaultConfig() booking.Config {
	return booking.Config{
		MaxSeatsPerBooking:       8,
		BookingsPerUserPerMinute: 5,
		BookingExpiration:        10 * time.Minute,
		SeatLockTTL:              5 * time.Minute,
		CancellationWindow:       2 * time.Hour,
		CircuitRecoverySeconds:   30,
	}
}

func seedBookableEvent(t *testing.T, repo *event.Repository, seatCount int) (*event.Event, []event.Seat) {
	t.Helper()
	ctx := context.Background()

	e := &event.Event{
		Name:      "Finals",
		VenueName: "Stadium",
		VenueCity: "Metropolis",
		StartTime: time.Now().Add(72 * time.Hour),
		EndTime:   time.Now().Add(75 * time.Hour),
		Capacity:  seatCount,
		Status:    event.StatusUpcoming,
	}
	require.NoError(t, repo.Create(ctx, e))

	seats := make([]event.Seat, seatCount)
	for i := range seats {
		seats[i] = event.Seat{
			EventID:    e.ID,
			Section:    "A",
			Row:        "1",
			SeatNumber: fmt.Sprintf("%d", i+1),
			PriceCents: 2500,
			Status:     event.SeatAvailable,
		}
	}
	require.NoError(t, repo.CreateSeats(ctx, seats))
	return e, seats
}

func TestCreateBooking_Success(t *testing.T) {
	f := newFixture(t, defaultConfig())
	e, seats := seedBookableEvent(t, f.events, 2)
	seatIDs := []string{seats[0].ID, seats[1].ID}
	sort.Strings(seatIDs) // the service reserves seats in sorted id order

	f.resv.EXPECT().IsRateLimited(gomock.Any(), "user-1:bookings", 5, time.Minute).Return(false, 0, nil)
	f.resv.EXPECT().ReserveSeats(gomock.Any(), e.ID, seatIDs, "user-1", 5*time.Minute).Return(true, []string(nil), nil)
	f.cache.EXPECT().InvalidateEventCache(gomock.Any(), e.ID).Return(0, nil)

	summary, err := f.svc.CreateBooking(context.Background(), "user-1", e.ID, seatIDs)

	require.NoError(t, err)
	require.Equal(t, booking.StatusPending, summary.Status)
	require.Len(t, summary.Seats, 2)
	require.Equal(t, float64(50), summary.TotalAmount)
}

func TestCreateBooking_RateLimited(t *testing.T) {
	f := newFixture(t, defaultConfig())
	e, seats := seedBookableEvent(t, f.events, 1)

	f.resv.EXPECT().IsRateLimited(gomock.Any(), "user-1:bookings", 5, time.Minute).Return(true, 5, nil)
	f.resv.EXPECT().ReserveSeats(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	_, err := f.svc.CreateBooking(context.Background(), "user-1", e.ID, []string{seats[0].ID})

	be, ok := bookingerr.As(err)
	require.True(t, ok)
	require.Equal(t, bookingerr.KindRateLimited, be.Kind)
}

func TestCreateBooking_SeatsUnavailable_OutOfBandReservation(t *testing.T) {
	f := newFixture(t, defaultConfig())
	e, seats := seedBookableEvent(t, f.events, 2)
	seatIDs := []string{seats[0].ID, seats[1].ID}
	sort.Strings(seatIDs) // the service reserves and releases seats in sorted id order

	f.resv.EXPECT().IsRateLimited(gomock.Any(), "user-1:bookings", 5, time.Minute).Return(false, 0, nil)
	f.resv.EXPECT().ReserveSeats(gomock.Any(), e.ID, seatIDs, "user-1", 5*time.Minute).Return(true, []string(nil), nil)
	f.resv.EXPECT().ReleaseReservation(gomock.Any(), e.ID, seatIDs, "user-1").Return(2, nil)

	// Mark one seat already reserved out-of-band between the fast-store
	// reservation and the durable lock step, so the durable commit sees
	// fewer available seats than requested and fails.
	require.NoError(t, f.session.Transaction(context.Background(), func(tx *gorm.DB) error {
		return f.events.MarkSeatsReserved(tx, []string{seats[0].ID}, "someone-else", time.Now())
	}))

	_, err := f.svc.CreateBooking(context.Background(), "user-1", e.ID, seatIDs)

	be, ok := bookingerr.As(err)
	require.True(t, ok)
	require.Equal(t, bookingerr.KindSeatsUnavailable, be.Kind)
}

func TestCreateBooking_CircuitOpen(t *testing.T) {
	f := newFixture(t, defaultConfig())
	e, seats := seedBookableEvent(t, f.events, 1)
	seatIDs := []string{seats[0].ID}

	f.resv.EXPECT().IsRateLimited(gomock.Any(), "user-1:bookings", 5, time.Minute).Return(false, 0, nil)
	f.resv.EXPECT().ReserveSeats(gomock.Any(), e.ID, seatIDs, "user-1", 5*time.Minute).
		Return(false, []string(nil), reservation.ErrCircuitOpen).Times(3)

	_, err := f.svc.CreateBooking(context.Background(), "user-1", e.ID, seatIDs)

	be, ok := bookingerr.As(err)
	require.True(t, ok)
	require.Equal(t, bookingerr.KindReservationUnavailable, be.Kind)
	require.Equal(t, 30, be.RetryAfterSeconds)
}

func TestConfirmBooking_Success(t *testing.T) {
	f := newFixture(t, defaultConfig())
	e, seats := seedBookableEvent(t, f.events, 1)
	seatIDs := []string{seats[0].ID}

	f.resv.EXPECT().IsRateLimited(gomock.Any(), "user-1:bookings", 5, time.Minute).Return(false, 0, nil)
	f.resv.EXPECT().ReserveSeats(gomock.Any(), e.ID, seatIDs, "user-1", 5*time.Minute).Return(true, []string(nil), nil)
	f.cache.EXPECT().InvalidateEventCache(gomock.Any(), e.ID).Return(0, nil)

	created, err := f.svc.CreateBooking(context.Background(), "user-1", e.ID, seatIDs)
	require.NoError(t, err)

	f.resv.EXPECT().ReleaseReservation(gomock.Any(), e.ID, seatIDs, "user-1").Return(1, nil)

	ref := "pay_123"
	confirmed, err := f.svc.ConfirmBooking(context.Background(), "user-1", created.ID, &ref)
	require.NoError(t, err)
	require.Equal(t, booking.StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)
}

func TestConfirmBooking_WrongOwner(t *testing.T) {
	f := newFixture(t, defaultConfig())
	e, seats := seedBookableEvent(t, f.events, 1)
	seatIDs := []string{seats[0].ID}

	f.resv.EXPECT().IsRateLimited(gomock.Any(), "user-1:bookings", 5, time.Minute).Return(false, 0, nil)
	f.resv.EXPECT().ReserveSeats(gomock.Any(), e.ID, seatIDs, "user-1", 5*time.Minute).Return(true, []string(nil), nil)
	f.cache.EXPECT().InvalidateEventCache(gomock.Any(), e.ID).Return(0, nil)

	created, err := f.svc.CreateBooking(context.Background(), "user-1", e.ID, seatIDs)
	require.NoError(t, err)

	_, err = f.svc.ConfirmBooking(context.Background(), "someone-else", created.ID, nil)
	be, ok := bookingerr.As(err)
	require.True(t, ok)
	require.Equal(t, bookingerr.KindNotFound, be.Kind)
}

func TestConfirmBooking_Expired(t *testing.T) {
	cfg := defaultConfig()
	cfg.BookingExpiration = -time.Minute // already expired the instant it's created
	f := newFixture(t, cfg)
	e, seats := seedBookableEvent(t, f.events, 1)
	seatIDs := []string{seats[0].ID}

	f.resv.EXPECT().IsRateLimited(gomock.Any(), "user-1:bookings", 5, time.Minute).Return(false, 0, nil)
	f.resv.EXPECT().ReserveSeats(gomock.Any(), e.ID, seatIDs, "user-1", 5*time.Minute).Return(true, []string(nil), nil)
	f.cache.EXPECT().InvalidateEventCache(gomock.Any(), e.ID).Return(0, nil)

	created, err := f.svc.CreateBooking(context.Background(), "user-1", e.ID, seatIDs)
	require.NoError(t, err)

	_, err = f.svc.ConfirmBooking(context.Background(), "user-1", created.ID, nil)
	be, ok := bookingerr.As(err)
	require.True(t, ok)
	require.Equal(t, bookingerr.KindBookingExpired, be.Kind)

	n, err := f.events.AvailableCount(context.Background(), e.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestCancelBooking_PendingReleasesSeats(t *testing.T) {
	f := newFixture(t, defaultConfig())
	e, seats := seedBookableEvent(t, f.events, 1)
	seatIDs := []string{seats[0].ID}

	f.resv.EXPECT().IsRateLimited(gomock.Any(), "user-1:bookings", 5, time.Minute).Return(false, 0, nil)
	f.resv.EXPECT().ReserveSeats(gomock.Any(), e.ID, seatIDs, "user-1", 5*time.Minute).Return(true, []string(nil), nil)
	f.cache.EXPECT().InvalidateEventCache(gomock.Any(), e.ID).Return(0, nil)

	created, err := f.svc.CreateBooking(context.Background(), "user-1", e.ID, seatIDs)
	require.NoError(t, err)

	f.resv.EXPECT().ReleaseReservation(gomock.Any(), e.ID, seatIDs, "user-1").Return(1, nil)

	cancelled, err := f.svc.CancelBooking(context.Background(), "user-1", created.ID)
	require.NoError(t, err)
	require.Equal(t, booking.StatusCancelled, cancelled.Status)

	n, err := f.events.AvailableCount(context.Background(), e.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestCancelBooking_ConfirmedWithinWindowRejected(t *testing.T) {
	cfg := defaultConfig()
	cfg.CancellationWindow = 100 * 24 * time.Hour // event start is always inside this huge window
	f := newFixture(t, cfg)
	e, seats := seedBookableEvent(t, f.events, 1)
	seatIDs := []string{seats[0].ID}

	f.resv.EXPECT().IsRateLimited(gomock.Any(), "user-1:bookings", 5, time.Minute).Return(false, 0, nil)
	f.resv.EXPECT().ReserveSeats(gomock.Any(), e.ID, seatIDs, "user-1", 5*time.Minute).Return(true, []string(nil), nil)
	f.cache.EXPECT().InvalidateEventCache(gomock.Any(), e.ID).Return(0, nil)
	f.resv.EXPECT().ReleaseReservation(gomock.Any(), e.ID, seatIDs, "user-1").Return(1, nil)

	created, err := f.svc.CreateBooking(context.Background(), "user-1", e.ID, seatIDs)
	require.NoError(t, err)
	_, err = f.svc.ConfirmBooking(context.Background(), "user-1", created.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.CancelBooking(context.Background(), "user-1", created.ID)
	be, ok := bookingerr.As(err)
	require.True(t, ok)
	require.Equal(t, bookingerr.KindCancellationWindowClosed, be.Kind)
}

func TestCreateBooking_TooManySeats(t *testing.T) {
	f := newFixture(t, defaultConfig())
	_, err := f.svc.CreateBooking(context.Background(), "user-1", uuid.NewString(), make([]string, 20))
	be, ok := bookingerr.As(err)
	require.True(t, ok)
	require.Equal(t, bookingerr.KindValidation, be.Kind)
}

func TestCreateBooking_DuplicateSeatIDs(t *testing.T) {
	f := newFixture(t, defaultConfig())
	seatID := uuid.NewString()
	_, err := f.svc.CreateBooking(context.Background(), "user-1", uuid.NewString(), []string{seatID, seatID})
	be, ok := bookingerr.As(err)
	require.True(t, ok)
	require.Equal(t, bookingerr.KindValidation, be.Kind)
}

func TestListUserBookings_FiltersByStatus(t *testing.T) {
	f := newFixture(t, defaultConfig())
	e, seats := seedBookableEvent(t, f.events, 2)

	f.resv.EXPECT().IsRateLimited(gomock.Any(), "user-1:bookings", 5, time.Minute).Return(false, 0, nil).Times(2)
	f.resv.EXPECT().ReserveSeats(gomock.Any(), e.ID, []string{seats[0].ID}, "user-1", 5*time.Minute).Return(true, []string(nil), nil)
	f.resv.EXPECT().ReserveSeats(gomock.Any(), e.ID, []string{seats[1].ID}, "user-1", 5*time.Minute).Return(true, []string(nil), nil)
	f.cache.EXPECT().InvalidateEventCache(gomock.Any(), e.ID).Return(0, nil).Times(2)

	_, err := f.svc.CreateBooking(context.Background(), "user-1", e.ID, []string{seats[0].ID})
	require.NoError(t, err)
	_, err = f.svc.CreateBooking(context.Background(), "user-1", e.ID, []string{seats[1].ID})
	require.NoError(t, err)

	pending := booking.StatusPending
	out, err := f.svc.ListUserBookings(context.Background(), "user-1", &pending, 10, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
}
