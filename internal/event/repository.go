package event

import (
	"context"
	"time"

	"eventbooking/internal/dbsession"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is the read/write data access surface for events and seats.
// Seat-status mutation inside a booking transaction is driven directly by
// internal/booking through the same *gorm.DB handed in via dbsession, so
// that both packages participate in one transaction; Repository itself
// only ever opens its own transaction for catalog CRUD.
type Repository struct {
	session *dbsession.Session
}

func NewRepository(session *dbsession.Session) *Repository {
	return &Repository{session: session}
}

func (r *Repository) AutoMigrate() error {
	return r.session.AutoMigrate(&Event{}, &Seat{})
}

func (r *Repository) List(ctx context.Context) ([]Event, error) {
	var out []Event
	return out, r.session.DB(ctx).Order("start_time asc").Find(&out).Error
}

func (r *Repository) ListPage(ctx context.Context, limit, offset int) ([]Event, error) {
	var out []Event
	q := r.session.DB(ctx).Order("start_time asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return out, q.Find(&out).Error
}

func (r *Repository) Get(ctx context.Context, id string) (*Event, error) {
	var e Event
	if err := r.session.DB(ctx).First(&e, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// GetForUpdate locks the event row within tx, matching the durable
// booking transaction's "lock event row" step (spec §4.4.1 step 2).
func (r *Repository) GetForUpdate(tx *gorm.DB, id string) (*Event, error) {
	var e Event
	if err := dbsession.LockForUpdate(tx).First(&e, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repository) Create(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return r.session.DB(ctx).Create(e).Error
}

func (r *Repository) Update(ctx context.Context, e *Event) error {
	return r.session.DB(ctx).Save(e).Error
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.session.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", id).Delete(&Seat{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Event{}, "id = ?", id).Error
	})
}

// CreateSeats bulk-inserts the seat rows belonging to an event, used when
// an event is first created with its full seat map.
func (r *Repository) CreateSeats(ctx context.Context, seats []Seat) error {
	if len(seats) == 0 {
		return nil
	}
	for i := range seats {
		if seats[i].ID == "" {
			seats[i].ID = uuid.NewString()
		}
	}
	return r.session.DB(ctx).CreateInBatches(seats, 200).Error
}

// AvailableCount computes the current number of available seats for an
// event directly from the seats table — the derived count spec §9 calls
// for in place of a stored, driftable counter.
func (r *Repository) AvailableCount(ctx context.Context, eventID string) (int64, error) {
	var n int64
	err := r.session.DB(ctx).Model(&Seat{}).
		Where("event_id = ? AND status = ?", eventID, SeatAvailable).
		Count(&n).Error
	return n, err
}

// ListByEvent returns every seat for an event, ordered by id (the same
// order the booking transaction locks in).
func (r *Repository) ListByEvent(ctx context.Context, eventID string) ([]Seat, error) {
	var out []Seat
	return out, r.session.DB(ctx).Where("event_id = ?", eventID).Order("id asc").Find(&out).Error
}

// ListForUpdate locks and returns the available seats among seatIDs,
// ordered by id, matching spec §4.4.1 step 2's lock ordering.
func (r *Repository) ListForUpdate(tx *gorm.DB, eventID string, seatIDs []string) ([]Seat, error) {
	var out []Seat
	err := dbsession.LockForUpdate(tx).
		Where("event_id = ? AND id IN ? AND status = ?", eventID, seatIDs, SeatAvailable).
		Order("id asc").
		Find(&out).Error
	return out, err
}

// ListByIDs returns seats by id regardless of status, used to render a
// booking's seat detail in responses.
func (r *Repository) ListByIDs(ctx context.Context, seatIDs []string) ([]Seat, error) {
	var out []Seat
	return out, r.session.DB(ctx).Where("id IN ?", seatIDs).Order("id asc").Find(&out).Error
}

// MarkSeatsReserved transitions seatIDs from available to reserved within
// tx, stamping the holder and reservation time. The row lock taken by
// ListForUpdate before this call is the primary guard against
// overbooking; EnsureCapacityGuard installs a database trigger that
// rejects the same overcommit as a second line of defense for any write
// path that bypasses the row lock.
func (r *Repository) MarkSeatsReserved(tx *gorm.DB, seatIDs []string, userID string, now time.Time) error {
	return tx.Model(&Seat{}).Where("id IN ?", seatIDs).Updates(map[string]interface{}{
		"status":      SeatReserved,
		"reserved_by": userID,
		"reserved_at": now,
	}).Error
}

// MarkSeatsBooked transitions seatIDs from reserved to booked on confirm
// (spec §4.4.2).
func (r *Repository) MarkSeatsBooked(tx *gorm.DB, seatIDs []string) error {
	return tx.Model(&Seat{}).Where("id IN ? AND status = ?", seatIDs, SeatReserved).
		Update("status", SeatBooked).Error
}

// MarkSeatsAvailable releases seatIDs back to available and clears holder
// fields, used on cancel and on inline expiration (spec §4.4.2, §4.4.3).
func (r *Repository) MarkSeatsAvailable(tx *gorm.DB, seatIDs []string) error {
	return tx.Model(&Seat{}).Where("id IN ?", seatIDs).Updates(map[string]interface{}{
		"status":      SeatAvailable,
		"reserved_by": nil,
		"reserved_at": nil,
	}).Error
}
