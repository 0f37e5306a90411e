package event

import (
	"errors"
	"net/http"
	"strconv"

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

// List godoc
// @Summary List events
// @Description Get all available events
// @Tags events
// @Produce json
// @Param limit query int false "Max items to return (default 20, max 100)"
// @Param offset query int false "Offset for pagination (default 0)"
// @Success 200 {array} EventResponse
// @Failure 500 {object} ErrorResponse
// @Router /events [get]
func (h *Handler) List(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "20")
	offsetStr := c.DefaultQuery("offset", "0")
	limit, _ := strconv.Atoi(limitStr)
	offset, _ := strconv.Atoi(offsetStr)
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	evts, err := h.svc.ListPage(c, limit, offset)
	if err != nil {
		h.logger.Error("failed to list events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	out := make([]EventResponse, 0, len(evts))
	for i := range evts {
		resp, err := h.toResponse(c, &evts[i])
		if err != nil {
			h.logger.Error("failed to render event", zap.String("event_id", evts[i].ID), zap.Error(err))
			continue
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

// Get godoc
// @Summary Get event by ID
// @Description Retrieve a single event, including its derived available seat count
// @Tags events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} EventResponse
// @Failure 404 {object} ErrorResponse
// @Router /events/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id := c.Param("id")
	evt, err := h.svc.Get(c, id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
		return
	}
	resp, err := h.toResponse(c, evt)
	if err != nil {
		h.logger.Error("failed to render event", zap.String("event_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Seats godoc
// @Summary List an event's seat map
// @Tags events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {array} SeatResponse
// @Failure 404 {object} ErrorResponse
// @Router /events/{id}/seats [get]
func (h *Handler) Seats(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.svc.Get(c, id); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
		return
	}
	seats, err := h.svc.ListSeats(c, id)
	if err != nil {
		h.logger.Error("failed to list seats", zap.String("event_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	out := make([]SeatResponse, len(seats))
	for i, st := range seats {
		out[i] = seatToResponse(&st)
	}
	c.JSON(http.StatusOK, out)
}

// Create godoc
// @Summary Create event
// @Description Create a new event with its full seat map (Admin only)
// @Tags events
// @Accept json
// @Produce json
// @Param input body CreateEventRequest true "Event data"
// @Success 201 {object} EventResponse
// @Failure 400 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/events [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	e := &Event{
		Name:        req.Name,
		Description: req.Description,
		VenueName:   req.VenueName,
		VenueCity:   req.VenueCity,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Capacity:    len(req.Seats),
		Status:      StatusUpcoming,
	}
	seats := make([]Seat, len(req.Seats))
	for i, si := range req.Seats {
		seats[i] = Seat{
			Section:    si.Section,
			Row:        si.Row,
			SeatNumber: si.SeatNumber,
			PriceCents: si.PriceCents,
		}
	}
	if err := h.svc.Create(c, e, seats); err != nil {
		h.logger.Error("failed to create event", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	resp, err := h.toResponse(c, e)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Update godoc
// @Summary Update event metadata
// @Description Update event metadata (Admin only); capacity and seats are immutable after creation
// @Tags events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param input body UpdateEventRequest true "Updated event data"
// @Success 200 {object} EventResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/events/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	id := c.Param("id")
	var req UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	e, err := h.svc.Get(c, id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
		return
	}
	if req.Name != nil {
		e.Name = *req.Name
	}
	if req.Description != nil {
		e.Description = req.Description
	}
	if req.VenueName != nil {
		e.VenueName = *req.VenueName
	}
	if req.VenueCity != nil {
		e.VenueCity = *req.VenueCity
	}
	if req.StartTime != nil {
		e.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		e.EndTime = *req.EndTime
	}
	if req.Status != nil {
		e.Status = *req.Status
	}
	if err := h.svc.Update(c, e); err != nil {
		h.logger.Error("failed to update event", zap.String("event_id", id), zap.Error(err))
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	resp, err := h.toResponse(c, e)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Delete godoc
// @Summary Delete event
// @Description Delete an event and its seats (Admin only)
// @Tags events
// @Param id path string true "Event ID"
// @Success 204 "No Content"
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/events/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(c, id); err != nil {
		if errors.Is(err, ErrHasConfirmedBookings) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
			return
		}
		h.logger.Error("failed to delete event", zap.String("event_id", id), zap.Error(err))
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) toResponse(c *gin.Context, e *Event) (EventResponse, error) {
	n, err := h.svc.AvailableCount(c, e.ID)
	if err != nil {
		return EventResponse{}, err
	}
	return EventResponse{
		ID:             e.ID,
		Name:           e.Name,
		Description:    e.Description,
		VenueName:      e.VenueName,
		VenueCity:      e.VenueCity,
		StartTime:      e.StartTime,
		EndTime:        e.EndTime,
		Capacity:       e.Capacity,
		AvailableCount: n,
		Status:         e.Status,
	}, nil
}

func seatToResponse(s *Seat) SeatResponse {
	return SeatResponse{
		ID:         s.ID,
		Section:    s.Section,
		Row:        s.Row,
		SeatNumber: s.SeatNumber,
		PriceCents: s.PriceCents,
		Status:     s.Status,
	}
}
