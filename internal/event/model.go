// Package event provides the event and seat catalog: event metadata,
// per-seat inventory, and derived availability. Booking-side seat
// mutation lives in internal/booking; this package owns the read model
// and the catalog CRUD surface.
package event

import "time"

// Status is the lifecycle state of an event.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Event represents a ticketed event at a venue. Available seat count is
// intentionally absent from this struct — it is derived from the seats
// table (see Repository.AvailableCount), not stored, because a mirrored
// counter and the seats it counts can drift under concurrent writes.
type Event struct {
	ID          string    `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	Name        string    `gorm:"type:text;not null;index" json:"name"`
	Description *string   `gorm:"type:text" json:"description,omitempty"`
	VenueName   string    `gorm:"column:venue_name;type:text;not null" json:"venue_name"`
	VenueCity   string    `gorm:"column:venue_city;type:text;not null" json:"venue_city"`
	StartTime   time.Time `gorm:"column:start_time;not null;index" json:"start_time"`
	EndTime     time.Time `gorm:"column:end_time;not null" json:"end_time"`
	Capacity    int       `gorm:"not null" json:"capacity"`
	Status      Status    `gorm:"type:text;not null;index;default:upcoming" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Event) TableName() string { return "events" }

// Bookable reports whether the event can accept new bookings at t.
func (e *Event) Bookable(t time.Time) bool {
	return e.Status == StatusUpcoming && e.StartTime.After(t)
}
