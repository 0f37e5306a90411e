package booking

import "time"

// CreateBookingRequest is the input for POST /bookings (spec §6).
type CreateBookingRequest struct {
	EventID string   `json:"event_id" binding:"required,uuid4" example:"550e8400-e29b-41d4-a716-446655440000"`
	SeatIDs []string `json:"seat_ids" binding:"required,min=1,dive,uuid4" example:"a1,a2"`
}

// ConfirmBookingRequest is the optional body/query for POST
// /bookings/{id}/confirm.
type ConfirmBookingRequest struct {
	PaymentReference string `form:"payment_reference" json:"payment_reference,omitempty"`
}

// EventSummary is the event detail embedded in a booking summary response.
type EventSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	VenueName string    `json:"venue_name"`
	VenueCity string    `json:"venue_city"`
}

// SeatSummary is one seat's detail embedded in a booking summary response.
type SeatSummary struct {
	ID         string  `json:"id"`
	Section    string  `json:"section"`
	Row        string  `json:"row"`
	SeatNumber string  `json:"seat_number"`
	Price      float64 `json:"price"`
}

// Summary is the booking summary response shape from spec §6: id, code,
// event detail, seat detail, total, status, and lifecycle timestamps.
type Summary struct {
	ID          string        `json:"id"`
	BookingCode string        `json:"booking_code" example:"EVT1A2B3C4D"`
	Event       EventSummary  `json:"event"`
	Seats       []SeatSummary `json:"seats"`
	TotalAmount float64       `json:"total_amount"`
	Status      Status        `json:"status"`
	ExpiresAt   time.Time     `json:"expires_at"`
	ConfirmedAt *time.Time    `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// ErrorResponse is the standard error envelope, including the classified
// error kind so clients can branch on it without string matching, and the
// fields specific to a few kinds (spec §7).
type ErrorResponse struct {
	Error             string   `json:"error" example:"one or more seats are no longer available"`
	Kind              string   `json:"kind,omitempty" example:"seats_unavailable"`
	SeatIDs           []string `json:"seat_ids,omitempty"`
	RetryAfterSeconds int      `json:"retry_after_seconds,omitempty"`
	Ref               string   `json:"ref,omitempty"`
}

// ListQuery captures the query parameters for GET /bookings.
type ListQuery struct {
	Status *Status `form:"status"`
	Skip   int     `form:"skip"`
	Limit  int     `form:"limit"`
}
