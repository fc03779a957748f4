package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wanderly-travel/service-checkout/internal/application"
	"github.com/wanderly-travel/service-checkout/internal/platform/auth"
	"github.com/wanderly-travel/service-checkout/internal/platform/middleware"
	"github.com/wanderly-travel/service-checkout/internal/platform/response"
)

// CartHandler handles HTTP requests for carts.
type CartHandler struct {
	service CartService
}

// NewCartHandler creates a new CartHandler.
func NewCartHandler(service CartService) *CartHandler {
	return &CartHandler{service: service}
}

// RegisterRoutes registers cart routes on the given router group.
func (h *CartHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	carts := r.Group("/carts")
	{
		carts.POST("/merge", middleware.AuthMiddleware(jwtManager), h.MergeCart)

		owned := carts.Group("/:owner", middleware.OptionalAuthMiddleware(jwtManager), requireCartAccess())
		owned.GET("", h.GetCart)
		owned.PUT("", h.SaveCart)
		owned.POST("/price", h.PriceCart)
	}
}

// requireCartAccess lets anyone holding a guest token through and restricts
// user carts to their owner.
func requireCartAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		rest, isUser := strings.CutPrefix(c.Param("owner"), "user:")
		if !isUser {
			c.Next()
			return
		}
		userID, ok := middleware.GetUserID(c)
		if !ok {
			response.Unauthorized(c, "sign in to access this cart")
			return
		}
		if userID.String() != rest {
			response.Forbidden(c, "cart belongs to another user")
			return
		}
		c.Next()
	}
}

// GetCart handles GET /api/v1/carts/:owner
func (h *CartHandler) GetCart(c *gin.Context) {
	dto, err := h.service.Load(c.Request.Context(), c.Param("owner"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// SaveCart handles PUT /api/v1/carts/:owner
func (h *CartHandler) SaveCart(c *gin.Context) {
	var req application.SaveCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.service.Save(c.Request.Context(), c.Param("owner"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// PriceCart handles POST /api/v1/carts/:owner/price
func (h *CartHandler) PriceCart(c *gin.Context) {
	var req application.PriceCartRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	dto, err := h.service.Price(c.Request.Context(), c.Param("owner"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// MergeCart handles POST /api/v1/carts/merge
func (h *CartHandler) MergeCart(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req application.MergeCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.service.Merge(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}
