package booking

import (
	"context"
	"time"

	"eventbooking/internal/dbsession"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is the durable-store data access surface for bookings and
// booking seats (spec §3 Booking/BookingSeat). Seat-status mutation lives in
// internal/event.Repository so both packages can participate in the same
// transaction handed down by internal/dbsession.
type Repository struct {
	session *dbsession.Session
}

func NewRepository(session *dbsession.Session) *Repository {
	return &Repository{session: session}
}

func (r *Repository) AutoMigrate() error {
	return r.session.AutoMigrate(&Booking{}, &BookingSeat{})
}

// Create inserts a booking row within tx.
func (r *Repository) Create(tx *gorm.DB, b *Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return tx.Create(b).Error
}

// CreateSeats bulk-inserts the booking_seats rows pinning price at lock
// time (spec §4.4.1 step 2.5).
func (r *Repository) CreateSeats(tx *gorm.DB, seats []BookingSeat) error {
	if len(seats) == 0 {
		return nil
	}
	for i := range seats {
		if seats[i].ID == "" {
			seats[i].ID = uuid.NewString()
		}
	}
	return tx.Create(&seats).Error
}

func (r *Repository) Get(ctx context.Context, id string) (*Booking, error) {
	var b Booking
	if err := r.session.DB(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// GetForUpdate locks the booking row within tx, the serialization point for
// the create -> confirm/cancel lifecycle (spec §5).
func (r *Repository) GetForUpdate(tx *gorm.DB, id string) (*Booking, error) {
	var b Booking
	if err := dbsession.LockForUpdate(tx).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// SeatsOf returns the booking_seats rows for a booking, ordered by seat id.
func (r *Repository) SeatsOf(ctx context.Context, bookingID string) ([]BookingSeat, error) {
	var out []BookingSeat
	return out, r.session.DB(ctx).Where("booking_id = ?", bookingID).Order("seat_id asc").Find(&out).Error
}

// MarkConfirmed transitions booking id to confirmed within tx.
func (r *Repository) MarkConfirmed(tx *gorm.DB, id string, paymentRef *string, now time.Time) error {
	updates := map[string]interface{}{
		"status":       StatusConfirmed,
		"confirmed_at": now,
	}
	if paymentRef != nil {
		updates["payment_reference"] = *paymentRef
	}
	return tx.Model(&Booking{}).Where("id = ?", id).Updates(updates).Error
}

// MarkCancelled transitions booking id to cancelled within tx.
func (r *Repository) MarkCancelled(tx *gorm.DB, id string, now time.Time) error {
	return tx.Model(&Booking{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       StatusCancelled,
		"cancelled_at": now,
	}).Error
}

// MarkExpired transitions booking id to expired within tx, the inline path
// taken by ConfirmBooking when it observes a booking past expires_at
// (spec §4.4.2, §9).
func (r *Repository) MarkExpired(tx *gorm.DB, id string) error {
	return tx.Model(&Booking{}).Where("id = ?", id).Update("status", StatusExpired).Error
}

// ListFilter narrows ListByUser to a status, pagination, or both.
type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}

// ListByUser returns userID's bookings newest-first (spec §4.4.4).
func (r *Repository) ListByUser(ctx context.Context, userID string, f ListFilter) ([]Booking, error) {
	q := r.session.DB(ctx).Where("user_id = ?", userID).Order("created_at desc")
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	var out []Booking
	return out, q.Find(&out).Error
}

// ListPending returns every pending booking for metrics/ops visibility.
func (r *Repository) ListPending(ctx context.Context) ([]Booking, error) {
	var out []Booking
	return out, r.session.DB(ctx).Where("status = ?", StatusPending).Find(&out).Error
}

// HasConfirmedBookings reports whether eventID has any non-cancelled
// confirmed booking, the check internal/event.Service.Delete runs before
// deleting an event (spec §3: "deletion forbidden when confirmed bookings
// exist").
func (r *Repository) HasConfirmedBookings(ctx context.Context, eventID string) (bool, error) {
	var n int64
	err := r.session.DB(ctx).Model(&Booking{}).
		Where("event_id = ? AND status = ?", eventID, StatusConfirmed).
		Count(&n).Error
	return n > 0, err
}
