package booking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"eventbooking/internal/bookingerr"
	"eventbooking/internal/dbsession"
	"eventbooking/internal/event"
	"eventbooking/internal/metrics"
	"eventbooking/internal/reservation"
	"eventbooking/internal/saga"
	"eventbooking/pkg/mq"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:generate mockgen -destination=../mocks/mock_reservation.go -package=mocks eventbooking/internal/booking ReservationClient,EventCacheInvalidator

// ReservationClient is the fast-store surface the booking service needs
// (component C1). *reservation.Client satisfies this structurally.
type ReservationClient interface {
	ReserveSeats(ctx context.Context, eventID string, seatIDs []string, holderID string, ttl time.Duration) (ok bool, failedSeatIDs []string, err error)
	ReleaseReservation(ctx context.Context, eventID string, seatIDs []string, holderID string) (int, error)
	IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

var _ ReservationClient = (*reservation.Client)(nil)

// EventRepository is the subset of internal/event.Repository the booking
// service drives directly, inside its own durable-store transactions.
type EventRepository interface {
	GetForUpdate(tx *gorm.DB, id string) (*event.Event, error)
	Get(ctx context.Context, id string) (*event.Event, error)
	ListForUpdate(tx *gorm.DB, eventID string, seatIDs []string) ([]event.Seat, error)
	ListByIDs(ctx context.Context, seatIDs []string) ([]event.Seat, error)
	MarkSeatsReserved(tx *gorm.DB, seatIDs []string, userID string, now time.Time) error
	MarkSeatsBooked(tx *gorm.DB, seatIDs []string) error
	MarkSeatsAvailable(tx *gorm.DB, seatIDs []string) error
}

var _ EventRepository = (*event.Repository)(nil)

// EventCacheInvalidator narrows internal/cache.Coordinator to the one
// method the booking service needs: evicting an event's cached
// availability after a booking changes its seats.
type EventCacheInvalidator interface {
	InvalidateEventCache(ctx context.Context, eventID string) (int, error)
}

// Config holds the tunables the service needs from pkg/config, copied in
// at construction time rather than threading the whole pkg/config.Config
// through (spec §4.4, §4.1).
type Config struct {
	MaxSeatsPerBooking       int
	BookingsPerUserPerMinute int
	BookingExpiration        time.Duration
	SeatLockTTL              time.Duration
	CancellationWindow       time.Duration
	CircuitRecoverySeconds   int
}

// Service implements component C4, the booking lifecycle state machine
// and its saga-orchestrated create path (spec §4.4). Grounded on
// original_source/app/services/booking_service.go's BookingService,
// reworked from quantity-based Redis-then-DB calls to seat-level
// reservation driven through the explicit saga in internal/saga.
type Service struct {
	repo      *Repository
	events    EventRepository
	session   *dbsession.Session
	orch      *saga.Orchestrator
	resv      ReservationClient
	cache     EventCacheInvalidator
	publisher mq.Publisher
	metrics   *metrics.Collector
	logger    *zap.Logger
	cfg       Config
}

func NewService(
	repo *Repository,
	events EventRepository,
	session *dbsession.Session,
	orch *saga.Orchestrator,
	resv ReservationClient,
	cache EventCacheInvalidator,
	publisher mq.Publisher,
	collector *metrics.Collector,
	logger *zap.Logger,
	cfg Config,
) *Service {
	return &Service{
		repo:      repo,
		events:    events,
		session:   session,
		orch:      orch,
		resv:      resv,
		cache:     cache,
		publisher: publisher,
		metrics:   collector,
		logger:    logger,
		cfg:       cfg,
	}
}

func generateBookingCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "EVT" + strings.ToUpper(hex.EncodeToString(buf)), nil
}

func dedupAndSort(ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate seat id %q", id)
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// CreateBooking runs the two-step saga described in spec §4.4.1: a fast
// soft reservation against the reservation store, then a durable commit
// that locks the event and seat rows and records the booking. Either step
// failing compensates whatever already succeeded.
func (s *Service) CreateBooking(ctx context.Context, userID, eventID string, seatIDs []string) (*Summary, error) {
	tracker := s.metrics.BeginBookingOperation()
	summary, err := s.createBooking(ctx, userID, eventID, seatIDs)
	tracker.Finish(err)
	return summary, err
}

func (s *Service) createBooking(ctx context.Context, userID, eventID string, seatIDs []string) (*Summary, error) {
	if eventID == "" {
		return nil, bookingerr.Validation("event_id is required")
	}
	if len(seatIDs) == 0 {
		return nil, bookingerr.Validation("seat_ids must be non-empty")
	}
	if len(seatIDs) > s.cfg.MaxSeatsPerBooking {
		return nil, bookingerr.Validation(fmt.Sprintf("a single booking cannot request more than %d seats", s.cfg.MaxSeatsPerBooking))
	}
	sortedSeatIDs, err := dedupAndSort(seatIDs)
	if err != nil {
		return nil, bookingerr.Validation(err.Error())
	}

	limited, current, err := s.resv.IsRateLimited(ctx, userID+":bookings", s.cfg.BookingsPerUserPerMinute, time.Minute)
	if err != nil {
		return nil, bookingerr.Internal(bookingerr.SourceReservation, newRef(), err)
	}
	if limited {
		s.metrics.IncRateLimited()
		return nil, bookingerr.RateLimited(current)
	}

	// holderID is just the acting user id (spec §4.1's "typically the
	// acting user id" option): confirm/cancel need to reconstruct the same
	// holder to best-effort release long after the saga that created the
	// reservation is gone, so it cannot carry a saga-scoped nonce.
	holderID := userID

	sg := s.orch.CreateSaga(fmt.Sprintf("booking_creation_%s", eventID), map[string]interface{}{
		"event_id":  eventID,
		"user_id":   userID,
		"seat_ids":  sortedSeatIDs,
		"holder_id": holderID,
	})

	s.orch.AddStep(sg, "reserve_seats",
		func(ctx context.Context, sc map[string]interface{}) (interface{}, error) {
			return nil, s.reserveSeatsStep(ctx, eventID, sortedSeatIDs, holderID)
		},
		func(ctx context.Context, sc map[string]interface{}) error {
			_, relErr := s.resv.ReleaseReservation(ctx, eventID, sortedSeatIDs, holderID)
			return relErr
		},
		nil,
		2,
	)

	s.orch.AddStep(sg, "durable_commit",
		func(ctx context.Context, sc map[string]interface{}) (interface{}, error) {
			summary, err := s.durableCommitStep(ctx, userID, eventID, sortedSeatIDs)
			if err != nil {
				return nil, err
			}
			sc["summary"] = summary
			return summary, nil
		},
		func(ctx context.Context, sc map[string]interface{}) error {
			// Nothing durable survives a rolled-back transaction; there is no
			// compensating write to make here.
			return nil
		},
		nil,
		1,
	)

	if !s.orch.ExecuteSaga(ctx, sg) {
		return nil, s.classifySagaFailure(sg.Err)
	}

	result, _ := sg.Result("summary")
	summary, _ := result.(*Summary)
	if summary == nil {
		return nil, bookingerr.Internal(bookingerr.SourceDurable, newRef(), errors.New("saga completed without a summary"))
	}

	if _, err := s.cache.InvalidateEventCache(ctx, eventID); err != nil {
		s.logger.Warn("event cache invalidation failed after booking", zap.String("event_id", eventID), zap.Error(err))
	}
	s.publish("booking.created", summary)
	return summary, nil
}

func (s *Service) reserveSeatsStep(ctx context.Context, eventID string, seatIDs []string, holderID string) error {
	ok, failed, err := s.resv.ReserveSeats(ctx, eventID, seatIDs, holderID, s.cfg.SeatLockTTL)
	if err != nil {
		if errors.Is(err, reservation.ErrCircuitOpen) {
			s.metrics.IncCircuitOpen()
			return bookingerr.ReservationUnavailable(s.cfg.CircuitRecoverySeconds, err)
		}
		return bookingerr.Internal(bookingerr.SourceReservation, newRef(), err)
	}
	if !ok {
		return bookingerr.SeatsUnavailable(failed)
	}
	return nil
}

func (s *Service) durableCommitStep(ctx context.Context, userID, eventID string, seatIDs []string) (*Summary, error) {
	var summary *Summary
	err := s.session.Transaction(ctx, func(tx *gorm.DB) error {
		now := time.Now().UTC()

		ev, err := s.events.GetForUpdate(tx, eventID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return bookingerr.EventNotBookable("event not found")
			}
			return bookingerr.Internal(bookingerr.SourceDurable, newRef(), err)
		}
		if !ev.Bookable(now) {
			return bookingerr.EventNotBookable("event is not open for booking")
		}

		seats, err := s.events.ListForUpdate(tx, eventID, seatIDs)
		if err != nil {
			return bookingerr.Internal(bookingerr.SourceDurable, newRef(), err)
		}
		if len(seats) < len(seatIDs) {
			return bookingerr.SeatsUnavailable(missingSeatIDs(seatIDs, seats))
		}

		var total int64
		for _, st := range seats {
			total += st.PriceCents
		}

		code, err := generateBookingCode()
		if err != nil {
			return bookingerr.Internal(bookingerr.SourceDurable, newRef(), err)
		}

		b := &Booking{
			ID:          uuid.NewString(),
			BookingCode: code,
			UserID:      userID,
			EventID:     eventID,
			Status:      StatusPending,
			TotalCents:  total,
			ExpiresAt:   now.Add(s.cfg.BookingExpiration),
		}
		if err := s.repo.Create(tx, b); err != nil {
			return bookingerr.Internal(bookingerr.SourceDurable, newRef(), err)
		}

		bss := make([]BookingSeat, len(seats))
		for i, st := range seats {
			bss[i] = BookingSeat{BookingID: b.ID, SeatID: st.ID, PriceCents: st.PriceCents}
		}
		if err := s.repo.CreateSeats(tx, bss); err != nil {
			return bookingerr.Internal(bookingerr.SourceDurable, newRef(), err)
		}

		if err := s.events.MarkSeatsReserved(tx, seatIDs, userID, now); err != nil {
			return bookingerr.Internal(bookingerr.SourceDurable, newRef(), err)
		}

		summary = toSummary(ev, b, seats)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func missingSeatIDs(requested []string, got []event.Seat) []string {
	present := make(map[string]struct{}, len(got))
	for _, st := range got {
		present[st.ID] = struct{}{}
	}
	missing := make([]string, 0)
	for _, id := range requested {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// classifySagaFailure surfaces the typed error a step produced, or wraps
// a nil/unclassified failure as Internal.
func (s *Service) classifySagaFailure(err error) error {
	if be, ok := bookingerr.As(err); ok {
		return be
	}
	if err == nil {
		err = errors.New("saga failed without a recorded error")
	}
	return bookingerr.Internal(bookingerr.SourceDurable, newRef(), err)
}

// ConfirmBooking locks the booking row, transitions it to confirmed under
// that lock, and marks its seats booked (spec §4.4.2). A booking observed
// past its expiration is instead transitioned to expired inline, and
// BookingExpired is returned. Reservation-store release is best-effort
// and happens after the transaction commits.
func (s *Service) ConfirmBooking(ctx context.Context, userID, bookingID string, paymentRef *string) (*Summary, error) {
	tracker := s.metrics.BeginBookingOperation()
	summary, expired, err := s.confirmBooking(ctx, userID, bookingID, paymentRef)
	tracker.Finish(err)
	if err == nil {
		s.metrics.IncConfirmed()
		s.releaseBestEffort(ctx, userID, summary)
		s.publish("booking.confirmed", summary)
	} else if expired {
		s.metrics.IncExpired()
		s.publish("booking.expired", map[string]string{"booking_id": bookingID})
	}
	return summary, err
}

func (s *Service) confirmBooking(ctx context.Context, userID, bookingID string, paymentRef *string) (summary *Summary, expired bool, err error) {
	txErr := s.session.Transaction(ctx, func(tx *gorm.DB) error {
		b, e := s.repo.GetForUpdate(tx, bookingID)
		if e != nil {
			if errors.Is(e, gorm.ErrRecordNotFound) {
				return bookingerr.NotFound("booking")
			}
			return bookingerr.Internal(bookingerr.SourceDurable, newRef(), e)
		}
		if b.UserID != userID {
			return bookingerr.NotFound("booking")
		}

		now := time.Now().UTC()
		if b.Expired(now) {
			seats, e := s.repo.SeatsOf(ctx, b.ID)
			if e != nil {
				return bookingerr.Internal(bookingerr.SourceDurable, newRef(), e)
			}
			if e := s.repo.MarkExpired(tx, b.ID); e != nil {
				return bookingerr.Internal(bookingerr.SourceDurable, newRef(), e)
			}
			seatIDs := seatIDsOf(seats)
			if e := s.events.MarkSeatsAvailable(tx, seatIDs); e != nil {
				return bookingerr.Internal(bookingerr.SourceDurable, newRef(), e)
			}
			// Commit the expiry before reporting it: returning an error here
			// would roll the transition back.
			expired = true
			return nil
		}

		if b.Status != StatusPending {
			return bookingerr.Validation("booking is not pending")
		}

		if e := s.repo.MarkConfirmed(tx, b.ID, paymentRef, now); e != nil {
			return bookingerr.Internal(bookingerr.SourceDurable, newRef(), e)
		}

		bookingSeats, e := s.repo.SeatsOf(ctx, b.ID)
		if e != nil {
			return bookingerr.Internal(bookingerr.SourceDurable, newRef(), e)
		}
		seatIDs := seatIDsOf(bookingSeats)
		if e := s.events.MarkSeatsBooked(tx, seatIDs); e != nil {
			return bookingerr.Internal(bookingerr.SourceDurable, newRef(), e)
		}

		ev, e := s.events.Get(ctx, b.EventID)
		if e != nil {
			return bookingerr.Internal(bookingerr.SourceDurable, newRef(), e)
		}
		seats, e := s.events.ListByIDs(ctx, seatIDs)
		if e != nil {
			return bookingerr.Internal(bookingerr.SourceDurable, newRef(), e)
		}

		b.Status = StatusConfirmed
		b.ConfirmedAt = &now
		summary = toSummary(ev, b, seats)
		return nil
	})
	if txErr == nil && expired {
		return nil, true, bookingerr.BookingExpired()
	}
	return summary, expired, txErr
}

// CancelBooking locks the booking row and transitions a pending or
// confirmed booking to cancelled, subject to the cancellation window for
// confirmed bookings (spec §4.4.3).
func (s *Service) CancelBooking(ctx context.Context, userID, bookingID string) (*Summary, error) {
	tracker := s.metrics.BeginBookingOperation()
	summary, err := s.cancelBooking(ctx, userID, bookingID)
	tracker.Finish(err)
	if err == nil {
		s.metrics.IncCancelled()
		s.releaseBestEffort(ctx, userID, summary)
		s.publish("booking.cancelled", summary)
	}
	return summary, err
}

func (s *Service) cancelBooking(ctx context.Context, userID, bookingID string) (*Summary, error) {
	var summary *Summary
	err := s.session.Transaction(ctx, func(tx *gorm.DB) error {
		b, e := s.repo.GetForUpdate(tx, bookingID)
		if e != nil {
			if errors.Is(e, gorm.ErrRecordNotFound) {
				return bookingerr.NotFound("booking")
			}
			return bookingerr.Internal(bookingerr.SourceDurable, newRef(), e)
		}
		if b.UserID != userID {
			return bookingerr.NotFound("booking")
		}
		if b.Status != StatusPending && b.Status != StatusConfirmed {
			return bookingerr.Validation("booking cannot be cancelled in its current state")
		}

		now := time.Now().UTC()
		if b.Status == StatusConfirmed {
			ev, e := s.events.Get(ctx, b.EventID)
			if e != nil {
				return bookingerr.Internal(bookingerr.SourceDurable, newRef(), e)
			}
			if ev.StartTime.Sub(now) < s.cfg.CancellationWindow {
				return bookingerr.CancellationWindowClosed()
			}
		}

		bookingSeats, e := s.repo.SeatsOf(ctx, b.ID)
		if e != nil {
			return bookingerr.Internal(bookingerr.SourceDurable, newRef(), e)
		}
		seatIDs := seatIDsOf(bookingSeats)

		if e := s.repo.MarkCancelled(tx, b.ID, now); e != nil {
			return bookingerr.Internal(bookingerr.SourceDurable, newRef(), e)
		}
		if e := s.events.MarkSeatsAvailable(tx, seatIDs); e != nil {
			return bookingerr.Internal(bookingerr.SourceDurable, newRef(), e)
		}

		ev, e := s.events.Get(ctx, b.EventID)
		if e != nil {
			return bookingerr.Internal(bookingerr.SourceDurable, newRef(), e)
		}
		seats, e := s.events.ListByIDs(ctx, seatIDs)
		if e != nil {
			return bookingerr.Internal(bookingerr.SourceDurable, newRef(), e)
		}

		b.Status = StatusCancelled
		b.CancelledAt = &now
		summary = toSummary(ev, b, seats)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// GetBooking returns a single booking's summary, scoped to its owner.
func (s *Service) GetBooking(ctx context.Context, userID, bookingID string) (*Summary, error) {
	b, err := s.repo.Get(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bookingerr.NotFound("booking")
		}
		return nil, bookingerr.Internal(bookingerr.SourceDurable, newRef(), err)
	}
	if b.UserID != userID {
		return nil, bookingerr.NotFound("booking")
	}
	return s.renderSummary(ctx, b)
}

// ListUserBookings returns userID's bookings, newest first, optionally
// filtered by status (spec §4.4.4).
func (s *Service) ListUserBookings(ctx context.Context, userID string, status *Status, limit, offset int) ([]Summary, error) {
	bookings, err := s.repo.ListByUser(ctx, userID, ListFilter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		return nil, bookingerr.Internal(bookingerr.SourceDurable, newRef(), err)
	}
	out := make([]Summary, 0, len(bookings))
	for i := range bookings {
		summary, err := s.renderSummary(ctx, &bookings[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *summary)
	}
	return out, nil
}

func (s *Service) renderSummary(ctx context.Context, b *Booking) (*Summary, error) {
	ev, err := s.events.Get(ctx, b.EventID)
	if err != nil {
		return nil, bookingerr.Internal(bookingerr.SourceDurable, newRef(), err)
	}
	bookingSeats, err := s.repo.SeatsOf(ctx, b.ID)
	if err != nil {
		return nil, bookingerr.Internal(bookingerr.SourceDurable, newRef(), err)
	}
	seatIDs := seatIDsOf(bookingSeats)
	seats, err := s.events.ListByIDs(ctx, seatIDs)
	if err != nil {
		return nil, bookingerr.Internal(bookingerr.SourceDurable, newRef(), err)
	}
	return toSummary(ev, b, seats), nil
}

func (s *Service) releaseBestEffort(ctx context.Context, userID string, summary *Summary) {
	if summary == nil {
		return
	}
	seatIDs := make([]string, len(summary.Seats))
	for i, st := range summary.Seats {
		seatIDs[i] = st.ID
	}
	if _, err := s.resv.ReleaseReservation(ctx, summary.Event.ID, seatIDs, userID); err != nil {
		s.logger.Warn("best-effort reservation release failed", zap.String("booking_id", summary.ID), zap.Error(err))
	}
}

func (s *Service) publish(routingKey string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(routingKey, payload); err != nil {
		s.logger.Warn("domain event publish failed", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

func seatIDsOf(bss []BookingSeat) []string {
	out := make([]string, len(bss))
	for i, bs := range bss {
		out[i] = bs.SeatID
	}
	return out
}

func toSummary(ev *event.Event, b *Booking, seats []event.Seat) *Summary {
	seatSummaries := make([]SeatSummary, len(seats))
	for i, st := range seats {
		seatSummaries[i] = SeatSummary{
			ID:         st.ID,
			Section:    st.Section,
			Row:        st.Row,
			SeatNumber: st.SeatNumber,
			Price:      float64(st.PriceCents) / 100,
		}
	}
	return &Summary{
		ID:          b.ID,
		BookingCode: b.BookingCode,
		Event: EventSummary{
			ID:        ev.ID,
			Name:      ev.Name,
			StartTime: ev.StartTime,
			VenueName: ev.VenueName,
			VenueCity: ev.VenueCity,
		},
		Seats:       seatSummaries,
		TotalAmount: float64(b.TotalCents) / 100,
		Status:      b.Status,
		ExpiresAt:   b.ExpiresAt,
		ConfirmedAt: b.ConfirmedAt,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func newRef() string {
	return uuid.NewString()[:8]
}
