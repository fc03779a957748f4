package handler

import (
	"context"

	"github.com/google/uuid"

	"github.com/wanderly-travel/service-checkout/internal/adapter"
	"github.com/wanderly-travel/service-checkout/internal/application"
)

// CartService is the cart use-case surface the HTTP layer needs.
type CartService interface {
	Load(ctx context.Context, owner string) (*application.CartDTO, error)
	Save(ctx context.Context, owner string, req application.SaveCartRequest) (*application.CartDTO, error)
	Price(ctx context.Context, owner string, req application.PriceCartRequest) (*application.CartDTO, error)
	Merge(ctx context.Context, userID uuid.UUID, req application.MergeCartRequest) (*application.CartDTO, error)
}

// CouponService is the coupon use-case surface.
type CouponService interface {
	Catalog(ctx context.Context, productRef string) ([]application.CouponDTO, error)
	Preview(ctx context.Context, req application.ApplyCouponRequest) (*application.CouponPreviewDTO, error)
	Create(ctx context.Context, createdBy uuid.UUID, req application.CreateCouponRequest) (*application.CouponDTO, error)
	List(ctx context.Context, page, limit int) ([]application.CouponDTO, int64, error)
	Deactivate(ctx context.Context, code string) (*application.CouponDTO, error)
}

// BookingService is the booking use-case surface.
type BookingService interface {
	Create(ctx context.Context, userID *uuid.UUID, submissionKey string, req application.CreateBookingRequest) (*application.CreateBookingResult, error)
	Get(ctx context.Context, id uuid.UUID) (*application.BookingDTO, error)
	Lookup(ctx context.Context, id uuid.UUID, email string) (*application.BookingDTO, error)
	Receipt(ctx context.Context, id uuid.UUID, email string) ([]byte, string, error)
	List(ctx context.Context, status string, page, limit int) ([]application.BookingDTO, int64, error)
}

// PaymentService is the payment-initiation surface.
type PaymentService interface {
	Initiate(ctx context.Context, req application.InitiatePaymentRequest) (*application.InitiatePaymentResult, error)
	Attempts(ctx context.Context, bookingID uuid.UUID) ([]application.PaymentAttemptDTO, error)
}

// Reconciler moves bookings between states on payment outcomes.
type Reconciler interface {
	Confirm(ctx context.Context, bookingID uuid.UUID) (*application.BookingDTO, error)
	ConfirmFromGateway(ctx context.Context, bookingID uuid.UUID, sessionID string) error
	MarkFailed(ctx context.Context, bookingID uuid.UUID, sessionID, reason string) error
	Cancel(ctx context.Context, bookingID uuid.UUID, reason string) (*application.BookingDTO, error)
}

// WebhookVerifier authenticates gateway webhooks.
type WebhookVerifier interface {
	ParseWebhook(payload []byte, signature string) (adapter.WebhookSignal, error)
}

var (
	_ CartService     = (*application.CartService)(nil)
	_ CouponService   = (*application.CouponService)(nil)
	_ BookingService  = (*application.BookingService)(nil)
	_ PaymentService  = (*application.PaymentService)(nil)
	_ Reconciler      = (*application.ReconcilerService)(nil)
	_ WebhookVerifier = (*adapter.StripeGateway)(nil)
)
