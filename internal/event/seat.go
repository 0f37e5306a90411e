package event

import "time"

// SeatStatus is the durable-store lifecycle state of a seat (spec §3).
type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatReserved  SeatStatus = "reserved"
	SeatBooked    SeatStatus = "booked"
	SeatBlocked   SeatStatus = "blocked"
)

// Seat is one bookable unit within an event. Uniqueness of
// (event_id, section, row, seat_number) is a composite unique index that
// AutoMigrate creates with this table; the capacity trigger is installed
// separately by Repository.EnsureCapacityGuard (migrations.go).
type Seat struct {
	ID         string     `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	EventID    string     `gorm:"column:event_id;type:uuid;not null;index;uniqueIndex:idx_seats_position" json:"event_id"`
	Section    string     `gorm:"type:text;uniqueIndex:idx_seats_position" json:"section"`
	Row        string     `gorm:"type:text;uniqueIndex:idx_seats_position" json:"row"`
	SeatNumber string     `gorm:"column:seat_number;type:text;uniqueIndex:idx_seats_position" json:"seat_number"`
	PriceCents int64      `gorm:"column:price_cents;not null" json:"price_cents"`
	Status     SeatStatus `gorm:"type:text;not null;index;default:available" json:"status"`
	ReservedBy *string    `gorm:"column:reserved_by;type:uuid" json:"reserved_by,omitempty"`
	ReservedAt *time.Time `gorm:"column:reserved_at" json:"reserved_at,omitempty"`
}

func (Seat) TableName() string { return "seats" }
