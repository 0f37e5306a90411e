package booking

import (
	"net/http"
	"strconv"

	"eventbooking/internal/auth"
	"eventbooking/internal/bookingerr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	svc    *Service
	logger *zap.Logger
}

func NewHandler(s *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: s, logger: logger}
}

// Create godoc
// @Summary Create booking
// @Description Reserve a set of seats for an event and create a pending booking
// @Tags bookings
// @Accept json
// @Produce json
// @Param input body CreateBookingRequest true "Booking request"
// @Success 201 {object} Summary
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Seats unavailable or event not bookable"
// @Failure 429 {object} ErrorResponse "Rate limited"
// @Failure 423 {object} ErrorResponse "Reservation store unavailable"
// @Security BearerAuth
// @Router /bookings [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	userID := c.GetString(auth.CtxUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	summary, err := h.svc.CreateBooking(c, userID, req.EventID, req.SeatIDs)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, summary)
}

// Confirm godoc
// @Summary Confirm booking
// @Description Confirm a pending booking, transitioning its seats to booked
// @Tags bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Param input body ConfirmBookingRequest false "Optional payment reference"
// @Success 200 {object} Summary
// @Failure 400 {object} ErrorResponse "Booking not pending"
// @Failure 404 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse "Booking expired"
// @Security BearerAuth
// @Router /bookings/{id}/confirm [post]
func (h *Handler) Confirm(c *gin.Context) {
	id := c.Param("id")
	userID := c.GetString(auth.CtxUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	var req ConfirmBookingRequest
	_ = c.ShouldBind(&req)
	var ref *string
	if req.PaymentReference != "" {
		ref = &req.PaymentReference
	}
	summary, err := h.svc.ConfirmBooking(c, userID, id, ref)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Cancel godoc
// @Summary Cancel booking
// @Description Cancel a pending or confirmed booking, releasing its seats
// @Tags bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} Summary
// @Failure 400 {object} ErrorResponse "Cancellation window closed"
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /bookings/{id}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	id := c.Param("id")
	userID := c.GetString(auth.CtxUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	summary, err := h.svc.CancelBooking(c, userID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Get godoc
// @Summary Get booking
// @Description Get a single booking's detail, scoped to its owner
// @Tags bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} Summary
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /bookings/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id := c.Param("id")
	userID := c.GetString(auth.CtxUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	summary, err := h.svc.GetBooking(c, userID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// List godoc
// @Summary List a user's bookings
// @Tags bookings
// @Produce json
// @Param status query string false "Filter by status"
// @Param skip query int false "Pagination offset"
// @Param limit query int false "Page size"
// @Success 200 {array} Summary
// @Security BearerAuth
// @Router /bookings [get]
func (h *Handler) List(c *gin.Context) {
	userID := c.GetString(auth.CtxUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	var status *Status
	if s := c.Query("status"); s != "" {
		st := Status(s)
		status = &st
	}
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	summaries, err := h.svc.ListUserBookings(c, userID, status, limit, skip)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// respondError maps a classified *bookingerr.Error to its HTTP status and
// envelope (spec §7's error-to-status table), logging internal errors
// with their support reference.
func (h *Handler) respondError(c *gin.Context, err error) {
	be, ok := bookingerr.As(err)
	if !ok {
		h.logger.Error("unclassified booking error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	resp := ErrorResponse{Error: be.Error(), Kind: string(be.Kind), SeatIDs: be.SeatIDs, RetryAfterSeconds: be.RetryAfterSeconds, Ref: be.Ref}

	switch be.Kind {
	case bookingerr.KindValidation, bookingerr.KindCancellationWindowClosed:
		c.JSON(http.StatusBadRequest, resp)
	case bookingerr.KindNotFound:
		c.JSON(http.StatusNotFound, resp)
	case bookingerr.KindRateLimited:
		c.JSON(http.StatusTooManyRequests, resp)
	case bookingerr.KindSeatsUnavailable, bookingerr.KindEventNotBookable:
		c.JSON(http.StatusConflict, resp)
	case bookingerr.KindBookingExpired:
		c.JSON(http.StatusGone, resp)
	case bookingerr.KindReservationUnavailable:
		c.JSON(http.StatusLocked, resp)
	default:
		h.logger.Error("internal booking error", zap.String("ref", be.Ref), zap.Error(be))
		c.JSON(http.StatusInternalServerError, resp)
	}
}
