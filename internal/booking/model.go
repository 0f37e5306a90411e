// Package booking implements the booking lifecycle state machine and its
// saga-orchestrated create path (component C4, spec §4.4): pending bookings
// are created by a two-step saga spanning the fast reservation store and the
// durable store, then confirmed or cancelled under a single row lock with
// inline expiration.
package booking

import "time"

// Status is a booking's lifecycle state (spec §3).
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Booking is a user's claim on a set of seats for one event. TotalCents is
// fixed at creation time from the seats' prices at lock time and never
// recomputed, so a later price change never alters an existing booking.
type Booking struct {
	ID               string     `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	BookingCode      string     `gorm:"column:booking_code;uniqueIndex;not null" json:"booking_code"`
	UserID           string     `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	EventID          string     `gorm:"column:event_id;type:uuid;not null;index" json:"event_id"`
	Status           Status     `gorm:"type:text;not null;index" json:"status"`
	TotalCents       int64      `gorm:"column:total_cents;not null" json:"total_cents"`
	ExpiresAt        time.Time  `gorm:"column:expires_at;not null" json:"expires_at"`
	ConfirmedAt      *time.Time `gorm:"column:confirmed_at" json:"confirmed_at,omitempty"`
	CancelledAt      *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	PaymentReference *string    `gorm:"column:payment_reference" json:"payment_reference,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Booking) TableName() string { return "bookings" }

// BookingSeat pins the price charged for one seat within one booking. It is
// immutable after creation (spec §3) except when its parent booking is
// cascade-deleted.
type BookingSeat struct {
	ID         string `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"-"`
	BookingID  string `gorm:"column:booking_id;type:uuid;not null;index" json:"booking_id"`
	SeatID     string `gorm:"column:seat_id;type:uuid;not null;index" json:"seat_id"`
	PriceCents int64  `gorm:"column:price_cents;not null" json:"price_cents"`
}

func (BookingSeat) TableName() string { return "booking_seats" }

// Expired reports whether b should be treated as expired at instant now,
// inclusive of the boundary: confirming exactly at expires_at counts as
// expired (spec §8 boundary behaviours).
func (b *Booking) Expired(now time.Time) bool {
	return b.Status == StatusPending && !now.Before(b.ExpiresAt)
}
