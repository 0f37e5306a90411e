package event

import "time"

// SeatInput describes one seat to create alongside a new event.
type SeatInput struct {
	Section    string `json:"section" example:"A"`
	Row        string `json:"row" example:"12"`
	SeatNumber string `json:"seat_number" example:"5"`
	PriceCents int64  `json:"price_cents" binding:"required,min=0" example:"5000"`
}

// CreateEventRequest input for creating a new event plus its seat map.
type CreateEventRequest struct {
	Name        string      `json:"name" binding:"required" example:"Tech Conference 2025"`
	Description *string     `json:"description" example:"A conference about future tech"`
	VenueName   string      `json:"venue_name" binding:"required" example:"Moscone Center"`
	VenueCity   string      `json:"venue_city" binding:"required" example:"San Francisco"`
	StartTime   time.Time   `json:"start_time" binding:"required" example:"2025-09-01T09:00:00Z"`
	EndTime     time.Time   `json:"end_time" binding:"required" example:"2025-09-01T17:00:00Z"`
	Seats       []SeatInput `json:"seats" binding:"required,min=1,dive"`
}

// UpdateEventRequest input for updating event metadata. Capacity and seats
// are immutable after creation (spec §3) and are not part of this request.
type UpdateEventRequest struct {
	Name        *string    `json:"name" example:"Updated Conference"`
	Description *string    `json:"description" example:"Updated description"`
	VenueName   *string    `json:"venue_name" example:"Moscone Center"`
	VenueCity   *string    `json:"venue_city" example:"San Francisco"`
	StartTime   *time.Time `json:"start_time" example:"2025-09-02T09:00:00Z"`
	EndTime     *time.Time `json:"end_time" example:"2025-09-02T17:00:00Z"`
	Status      *Status    `json:"status" example:"cancelled"`
}

// EventResponse represents event output with the derived availability
// count computed at response time.
type EventResponse struct {
	ID             string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Name           string    `json:"name" example:"Tech Conference 2025"`
	Description    *string   `json:"description,omitempty" example:"A conference about future tech"`
	VenueName      string    `json:"venue_name" example:"Moscone Center"`
	VenueCity      string    `json:"venue_city" example:"San Francisco"`
	StartTime      time.Time `json:"start_time" example:"2025-09-02T09:00:00+07:00"`
	EndTime        time.Time `json:"end_time" example:"2025-09-02T17:00:00+07:00"`
	Capacity       int       `json:"capacity" example:"100"`
	AvailableCount int64     `json:"available_count" example:"95"`
	Status         Status    `json:"status" example:"upcoming"`
}

// SeatResponse represents a single seat's public detail.
type SeatResponse struct {
	ID         string     `json:"id"`
	Section    string     `json:"section"`
	Row        string     `json:"row"`
	SeatNumber string     `json:"seat_number"`
	PriceCents int64      `json:"price_cents"`
	Status     SeatStatus `json:"status"`
}

// ErrorResponse standard error model
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request"`
}
