package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wanderly-travel/service-checkout/internal/application"
	"github.com/wanderly-travel/service-checkout/internal/platform/middleware"
	"github.com/wanderly-travel/service-checkout/internal/platform/response"
)

// CouponHandler handles the customer-facing coupon endpoints.
type CouponHandler struct {
	service CouponService
	limiter *middleware.IPRateLimiter
	logger  *zap.Logger
}

// NewCouponHandler creates a new CouponHandler. limiter bounds coupon
// previews per client IP.
func NewCouponHandler(service CouponService, limiter *middleware.IPRateLimiter, logger *zap.Logger) *CouponHandler {
	return &CouponHandler{service: service, limiter: limiter, logger: logger}
}

// RegisterRoutes registers coupon routes.
func (h *CouponHandler) RegisterRoutes(r *gin.RouterGroup) {
	coupons := r.Group("/coupons")
	{
		coupons.GET("", h.ListCoupons)
		coupons.POST("/apply", middleware.RateLimitMiddleware(h.limiter, h.logger), h.ApplyCoupon)
	}
}

// ListCoupons handles GET /api/v1/coupons
func (h *CouponHandler) ListCoupons(c *gin.Context) {
	coupons, err := h.service.Catalog(c.Request.Context(), c.Query("product_ref"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, coupons)
}

// ApplyCoupon handles POST /api/v1/coupons/apply. A rejected code is a
// successful response carrying valid=false and the reason.
func (h *CouponHandler) ApplyCoupon(c *gin.Context) {
	var req application.ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	preview, err := h.service.Preview(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, preview)
}
