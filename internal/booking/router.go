package booking

import "github.com/gin-gonic/gin"

func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	r.POST("/bookings", h.Create)
	r.GET("/bookings", h.List)
	r.GET("/bookings/:id", h.Get)
	r.POST("/bookings/:id/confirm", h.Confirm)
	r.POST("/bookings/:id/cancel", h.Cancel)
}
