package application

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
	"github.com/wanderly-travel/service-checkout/internal/platform/kafka"
)

// EventPublisher publishes CloudEvents to Kafka.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, ce kafka.CloudEvent) error
}

// UnitOfWork runs fn in one database transaction.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// SubmissionGuard deduplicates booking submissions.
type SubmissionGuard interface {
	// Begin claims key. It returns the booking id a finished submission with
	// the same key produced, uuid.Nil when the caller now owns the key, or
	// ErrSubmissionInFlight when another submission is still running.
	Begin(ctx context.Context, key string) (uuid.UUID, error)

	// Complete records the booking created under key and releases the claim.
	Complete(ctx context.Context, key string, bookingID uuid.UUID) error

	// Release drops the claim without recording a result.
	Release(ctx context.Context, key string) error
}

// BookingCache is a short-lived read cache for booking views.
type BookingCache interface {
	Get(ctx context.Context, id uuid.UUID) (*BookingDTO, bool)
	Set(ctx context.Context, dto *BookingDTO)
	Invalidate(ctx context.Context, id uuid.UUID)
}

var (
	ErrSubmissionInFlight = domainerr.New(domainerr.ErrConflict, "submission_in_flight",
		"this booking is already being submitted")
	ErrPricingMismatch = domainerr.New(domainerr.ErrConflict, "pricing_mismatch",
		"prices changed since the cart was priced, please review the order")
	ErrBookingNotPayable = domainerr.New(domainerr.ErrInvalidState, "booking_not_payable",
		"payment cannot be started for this booking")
	ErrReceiptUnavailable = domainerr.New(domainerr.ErrInvalidState, "receipt_unavailable",
		"a receipt is only available for confirmed bookings")
)

func bookingFailed(cause error) error {
	return domainerr.NewUnavailableError("booking_failed", "the booking could not be saved, please retry", cause)
}

func paymentInitiationFailed(cause error) error {
	return domainerr.NewUnavailableError("payment_initiation_failed", "payment could not be started, please retry", cause)
}

func isConflict(err error) bool { return errors.Is(err, domainerr.ErrConflict) }
