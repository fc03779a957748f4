package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wanderly-travel/service-checkout/internal/adapter"
	"github.com/wanderly-travel/service-checkout/internal/application"
	"github.com/wanderly-travel/service-checkout/internal/platform/response"
)

// maxWebhookBytes bounds the webhook body read into memory.
const maxWebhookBytes = 64 << 10

// PaymentHandler handles HTTP requests for payment operations.
type PaymentHandler struct {
	payments   PaymentService
	reconciler Reconciler
	verifier   WebhookVerifier
	logger     *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler. verifier may be nil, in
// which case the gateway webhook route is not registered.
func NewPaymentHandler(payments PaymentService, reconciler Reconciler, verifier WebhookVerifier, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments:   payments,
		reconciler: reconciler,
		verifier:   verifier,
		logger:     logger,
	}
}

// RegisterRoutes registers all payment routes on the given router group.
func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup) {
	payments := r.Group("/payments")
	{
		payments.POST("/initiate", h.InitiatePayment)
		payments.PUT("/confirm", h.ConfirmPayment)
		if h.verifier != nil {
			payments.POST("/webhook/stripe", h.StripeWebhook)
		}
	}
}

// InitiatePayment handles POST /api/v1/payments/initiate
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	var req application.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.payments.Initiate(c.Request.Context(), req)
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

// ConfirmPayment handles PUT /api/v1/payments/confirm. The booking stays
// pending until the gateway has reported a successful payment.
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	var req application.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.reconciler.Confirm(c.Request.Context(), req.BookingID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// StripeWebhook handles POST /api/v1/payments/webhook/stripe
func (h *PaymentHandler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	if err != nil {
		response.BadRequest(c, "unreadable webhook body")
		return
	}

	signal, err := h.verifier.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, adapter.ErrInvalidSignature) {
			h.logger.Warn("rejected webhook with bad signature", zap.String("client_ip", c.ClientIP()))
			response.Fail(c, http.StatusBadRequest, "invalid_signature", "webhook signature verification failed")
			return
		}
		h.logger.Error("unusable webhook", zap.Error(err))
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	switch signal.Kind {
	case adapter.SignalSucceeded:
		err = h.reconciler.ConfirmFromGateway(ctx, signal.BookingID, signal.SessionID)
	case adapter.SignalFailed:
		err = h.reconciler.MarkFailed(ctx, signal.BookingID, signal.SessionID, signal.Reason)
	default:
		h.logger.Debug("ignoring webhook event", zap.String("event_id", signal.EventID))
	}
	if err != nil {
		h.logger.Error("failed to apply webhook",
			zap.String("event_id", signal.EventID),
			zap.String("booking_id", signal.BookingID.String()),
			zap.Error(err),
		)
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"received": true})
}
