package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wanderly-travel/service-checkout/internal/application"
	"github.com/wanderly-travel/service-checkout/internal/platform/auth"
	"github.com/wanderly-travel/service-checkout/internal/platform/middleware"
	"github.com/wanderly-travel/service-checkout/internal/platform/response"
)

// BookingHandler handles HTTP requests for bookings.
type BookingHandler struct {
	service BookingService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(service BookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

// RegisterRoutes registers booking routes on the given router group.
func (h *BookingHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	bookings := r.Group("/bookings")
	{
		bookings.POST("", middleware.OptionalAuthMiddleware(jwtManager), h.CreateBooking)
		bookings.GET("/lookup", h.LookupBooking)
		bookings.GET("/:id", h.GetBooking)
		bookings.GET("/:id/receipt", h.GetReceipt)
	}
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req application.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var userID *uuid.UUID
	if id, ok := middleware.GetUserID(c); ok {
		userID = &id
	}

	result, err := h.service.Create(c.Request.Context(), userID, c.GetHeader(middleware.HeaderIdempotencyKey), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.Reused {
		response.Success(c, result)
		return
	}
	response.Created(c, result)
}

// GetBooking handles GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return
	}

	dto, err := h.service.Get(c.Request.Context(), bookingID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// LookupBooking handles GET /api/v1/bookings/lookup?booking_id=&email=
func (h *BookingHandler) LookupBooking(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Query("booking_id"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return
	}
	email := c.Query("email")
	if email == "" {
		response.BadRequest(c, "email is required")
		return
	}

	dto, err := h.service.Lookup(c.Request.Context(), bookingID, email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// GetReceipt handles GET /api/v1/bookings/:id/receipt?email=
func (h *BookingHandler) GetReceipt(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return
	}
	email := c.Query("email")
	if email == "" {
		response.BadRequest(c, "email is required")
		return
	}

	pdf, filename, err := h.service.Receipt(c.Request.Context(), bookingID, email)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
