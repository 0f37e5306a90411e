package event

import (
	"context"
	"errors"
	"time"

	"eventbooking/internal/cache"

	"go.uber.org/zap"
)

const listTTL = 30 * time.Second

// ConfirmedBookingChecker lets Delete enforce spec §3's "deletion
// forbidden when confirmed bookings exist" rule without internal/event
// importing internal/booking (which already imports internal/event).
// *booking.Repository satisfies this structurally.
type ConfirmedBookingChecker interface {
	HasConfirmedBookings(ctx context.Context, eventID string) (bool, error)
}

// ErrHasConfirmedBookings is returned by Delete when the event still has
// at least one confirmed booking.
var ErrHasConfirmedBookings = errors.New("event: cannot delete an event with confirmed bookings")

// Service is the event/seat catalog's read API, cached through
// internal/cache. Nothing here mutates seat status — that happens inside
// internal/booking's transactions against the same Repository.
type Service struct {
	repo     *Repository
	cache    *cache.Coordinator
	bookings ConfirmedBookingChecker
	logger   *zap.Logger
}

func NewService(repo *Repository, c *cache.Coordinator, bookings ConfirmedBookingChecker, logger *zap.Logger) *Service {
	return &Service{repo: repo, cache: c, bookings: bookings, logger: logger}
}

func (s *Service) List(ctx context.Context) ([]Event, error) {
	key := cache.Key("events", map[string]interface{}{"op": "list"})
	var out []Event
	if err := s.cache.Get(ctx, key, &out); err == nil {
		return out, nil
	}

	evts, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("failed to list events", zap.Error(err))
		return nil, err
	}
	if err := s.cache.Set(ctx, key, evts, listTTL); err != nil {
		s.logger.Warn("failed to cache events list", zap.Error(err))
	}
	return evts, nil
}

func (s *Service) ListPage(ctx context.Context, limit, offset int) ([]Event, error) {
	key := cache.Key("events", map[string]interface{}{"op": "page", "limit": limit, "offset": offset})
	var out []Event
	if err := s.cache.Get(ctx, key, &out); err == nil {
		return out, nil
	}

	evts, err := s.repo.ListPage(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list events page", zap.Error(err))
		return nil, err
	}
	if err := s.cache.Set(ctx, key, evts, listTTL); err != nil {
		s.logger.Warn("failed to cache events page", zap.Error(err))
	}
	return evts, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Event, error) {
	key := cache.Key("event_detail", map[string]interface{}{"id": id})
	var e Event
	if err := s.cache.Get(ctx, key, &e); err == nil {
		return &e, nil
	}

	evt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, evt, listTTL); err != nil {
		s.logger.Warn("failed to cache event detail", zap.String("event_id", id), zap.Error(err))
	}
	return evt, nil
}

// Create persists a new event and its full seat map, then invalidates the
// coarse events cache (spec §4.5: event created → wipe events:*,
// event_detail:*, event_seats:*).
func (s *Service) Create(ctx context.Context, e *Event, seats []Seat) error {
	if err := s.repo.Create(ctx, e); err != nil {
		s.logger.Error("failed to create event", zap.Error(err))
		return err
	}
	for i := range seats {
		seats[i].EventID = e.ID
		seats[i].Status = SeatAvailable
	}
	if err := s.repo.CreateSeats(ctx, seats); err != nil {
		s.logger.Error("failed to create event seats", zap.String("event_id", e.ID), zap.Error(err))
		return err
	}
	if _, err := s.cache.InvalidateEventsCache(ctx); err != nil {
		s.logger.Warn("failed to invalidate events cache", zap.Error(err))
	}
	s.logger.Info("event created", zap.String("event_id", e.ID), zap.Int("seat_count", len(seats)))
	return nil
}

// Update persists event metadata changes and invalidates the targeted +
// list cache entries (spec §4.5).
func (s *Service) Update(ctx context.Context, e *Event) error {
	if err := s.repo.Update(ctx, e); err != nil {
		s.logger.Error("failed to update event", zap.String("event_id", e.ID), zap.Error(err))
		return err
	}
	if _, err := s.cache.InvalidateEventCache(ctx, e.ID); err != nil {
		s.logger.Warn("failed to invalidate event cache", zap.String("event_id", e.ID), zap.Error(err))
	}
	s.logger.Info("event updated", zap.String("event_id", e.ID))
	return nil
}

// Delete removes an event and its seat map, refusing to do so while any
// confirmed booking still references it (spec §3).
func (s *Service) Delete(ctx context.Context, id string) error {
	if s.bookings != nil {
		has, err := s.bookings.HasConfirmedBookings(ctx, id)
		if err != nil {
			s.logger.Error("failed to check confirmed bookings before delete", zap.String("event_id", id), zap.Error(err))
			return err
		}
		if has {
			return ErrHasConfirmedBookings
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error("failed to delete event", zap.String("event_id", id), zap.Error(err))
		return err
	}
	if _, err := s.cache.InvalidateEventsCache(ctx); err != nil {
		s.logger.Warn("failed to invalidate events cache", zap.Error(err))
	}
	s.logger.Info("event deleted", zap.String("event_id", id))
	return nil
}

// AvailableCount returns the live available-seat count for an event,
// computed on demand rather than read from a cached or stored counter.
func (s *Service) AvailableCount(ctx context.Context, eventID string) (int64, error) {
	return s.repo.AvailableCount(ctx, eventID)
}

// ListSeats returns the full seat map for an event, cached under
// event_seats:<hash> so repeated seat-map views don't hit the database.
func (s *Service) ListSeats(ctx context.Context, eventID string) ([]Seat, error) {
	key := cache.Key("event_seats", map[string]interface{}{"event_id": eventID})
	var out []Seat
	if err := s.cache.Get(ctx, key, &out); err == nil {
		return out, nil
	}

	seats, err := s.repo.ListByEvent(ctx, eventID)
	if err != nil {
		s.logger.Error("failed to list seats", zap.String("event_id", eventID), zap.Error(err))
		return nil, err
	}
	if err := s.cache.Set(ctx, key, seats, listTTL); err != nil {
		s.logger.Warn("failed to cache event seats", zap.String("event_id", eventID), zap.Error(err))
	}
	return seats, nil
}

// SeatsByIDs returns seat rows for response rendering (e.g. a booking's
// seat detail), uncached since the set of ids queried varies per booking.
func (s *Service) SeatsByIDs(ctx context.Context, seatIDs []string) ([]Seat, error) {
	return s.repo.ListByIDs(ctx, seatIDs)
}
