package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wanderly-travel/service-checkout/internal/application"
	"github.com/wanderly-travel/service-checkout/internal/platform/auth"
	"github.com/wanderly-travel/service-checkout/internal/platform/middleware"
	"github.com/wanderly-travel/service-checkout/internal/platform/response"
)

// AdminHandler handles admin HTTP requests for coupons and bookings.
type AdminHandler struct {
	coupons    CouponService
	bookings   BookingService
	payments   PaymentService
	reconciler Reconciler
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(coupons CouponService, bookings BookingService, payments PaymentService, reconciler Reconciler) *AdminHandler {
	return &AdminHandler{
		coupons:    coupons,
		bookings:   bookings,
		payments:   payments,
		reconciler: reconciler,
	}
}

// RegisterRoutes registers admin routes.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	adminRole := middleware.RequireRole(auth.RoleAdmin)

	admin := r.Group("/admin")
	admin.Use(authMW, adminRole)
	{
		admin.POST("/coupons", h.CreateCoupon)
		admin.GET("/coupons", h.ListCoupons)
		admin.POST("/coupons/:code/deactivate", h.DeactivateCoupon)
		admin.GET("/bookings", h.ListBookings)
		admin.POST("/bookings/:id/cancel", h.CancelBooking)
		admin.GET("/bookings/:id/attempts", h.ListAttempts)
	}
}

// CreateCoupon handles POST /api/v1/admin/coupons.
func (h *AdminHandler) CreateCoupon(c *gin.Context) {
	adminID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req application.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.coupons.Create(c.Request.Context(), adminID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto)
}

// ListCoupons handles GET /api/v1/admin/coupons.
func (h *AdminHandler) ListCoupons(c *gin.Context) {
	page, limit := pageParams(c)

	coupons, total, err := h.coupons.List(c.Request.Context(), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, coupons, total, page, limit)
}

// DeactivateCoupon handles POST /api/v1/admin/coupons/:code/deactivate.
func (h *AdminHandler) DeactivateCoupon(c *gin.Context) {
	dto, err := h.coupons.Deactivate(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// ListBookings handles GET /api/v1/admin/bookings.
func (h *AdminHandler) ListBookings(c *gin.Context) {
	page, limit := pageParams(c)

	bookings, total, err := h.bookings.List(c.Request.Context(), c.Query("status"), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, bookings, total, page, limit)
}

// CancelBooking handles POST /api/v1/admin/bookings/:id/cancel.
func (h *AdminHandler) CancelBooking(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return
	}

	var req application.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.reconciler.Cancel(c.Request.Context(), bookingID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// ListAttempts handles GET /api/v1/admin/bookings/:id/attempts.
func (h *AdminHandler) ListAttempts(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return
	}

	attempts, err := h.payments.Attempts(c.Request.Context(), bookingID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, attempts)
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
