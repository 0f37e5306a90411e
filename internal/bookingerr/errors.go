// Package bookingerr defines the typed error taxonomy the booking core
// returns to its callers. Classification happens once, at the point an
// error is produced, rather than by pattern-matching messages downstream.
package bookingerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by what the caller should do about it.
type Kind string

const (
	KindRateLimited              Kind = "rate_limited"
	KindReservationUnavailable   Kind = "reservation_unavailable"
	KindSeatsUnavailable         Kind = "seats_unavailable"
	KindEventNotBookable         Kind = "event_not_bookable"
	KindBookingExpired           Kind = "booking_expired"
	KindCancellationWindowClosed Kind = "cancellation_window_closed"
	KindNotFound                 Kind = "not_found"
	KindValidation               Kind = "validation"
	KindInternal                 Kind = "internal"
)

// Source distinguishes which dependency produced an Internal error, for
// the metrics collector's redis/database counters (spec §4.6, §9).
type Source string

const (
	SourceNone        Source = ""
	SourceReservation Source = "redis"
	SourceDurable     Source = "database"
)

// Error is the typed error every booking-service operation returns.
type Error struct {
	Kind    Kind
	Source  Source
	Message string
	// SeatIDs carries the offending seat ids for SeatsUnavailable.
	SeatIDs []string
	// RetryAfterSeconds is set for RateLimited/ReservationUnavailable.
	RetryAfterSeconds int
	// Ref is an opaque support reference logged alongside the full error.
	Ref string
	err error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.err != nil {
		return e.err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.err }

func new_(kind Kind, source Source, msg string, wrapped error) *Error {
	return &Error{Kind: kind, Source: source, Message: msg, err: wrapped}
}

func RateLimited(currentCount int) *Error {
	return &Error{Kind: KindRateLimited, Message: fmt.Sprintf("rate limit exceeded (current=%d)", currentCount)}
}

func ReservationUnavailable(retryAfterSeconds int, cause error) *Error {
	e := new_(KindReservationUnavailable, SourceReservation, "fast reservation store unavailable", cause)
	e.RetryAfterSeconds = retryAfterSeconds
	return e
}

func SeatsUnavailable(seatIDs []string) *Error {
	return &Error{Kind: KindSeatsUnavailable, SeatIDs: seatIDs, Message: "one or more seats are no longer available"}
}

func EventNotBookable(reason string) *Error {
	return &Error{Kind: KindEventNotBookable, Message: reason}
}

func BookingExpired() *Error {
	return &Error{Kind: KindBookingExpired, Message: "booking expired before confirmation"}
}

func CancellationWindowClosed() *Error {
	return &Error{Kind: KindCancellationWindowClosed, Message: "booking cannot be cancelled this close to the event"}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Internal(source Source, ref string, cause error) *Error {
	return &Error{Kind: KindInternal, Source: source, Ref: ref, Message: "internal error, reference " + ref, err: cause}
}

// As extracts a *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindInternal if err is not a *Error.
func KindOf(err error) Kind {
	if be, ok := As(err); ok {
		return be.Kind
	}
	return KindInternal
}
