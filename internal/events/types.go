// Package events defines the checkout topics, CloudEvent types and payloads,
// and the consumer for inbound payment signals.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Source is the CloudEvents source of everything this service publishes.
const Source = "service-checkout"

// Topics.
const (
	TopicCheckoutEvents = "checkout.events"
	TopicPaymentSignals = "payment.signals"
)

// Outbound event types on TopicCheckoutEvents.
const (
	BookingCreated   = "booking.created"
	BookingConfirmed = "booking.confirmed"
	BookingCancelled = "booking.cancelled"
	PaymentInitiated = "payment.initiated"
	PaymentFailed    = "payment.failed"
	CouponConsumed   = "coupon.consumed"
)

// Inbound signal types on TopicPaymentSignals.
const (
	SignalPaymentSucceeded = "payment.succeeded"
	SignalPaymentFailed    = "payment.failed"
)

type BookingCreatedEvent struct {
	BookingID    uuid.UUID       `json:"booking_id"`
	Reference    string          `json:"reference"`
	Kind         string          `json:"kind"`
	ContactEmail string          `json:"contact_email"`
	ItemCount    int             `json:"item_count"`
	FinalPayable decimal.Decimal `json:"final_payable"`
	CouponCode   string          `json:"coupon_code,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

type BookingConfirmedEvent struct {
	BookingID  uuid.UUID       `json:"booking_id"`
	Reference  string          `json:"reference"`
	AttemptID  uuid.UUID       `json:"attempt_id"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Currency   string          `json:"currency"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type BookingCancelledEvent struct {
	BookingID  uuid.UUID `json:"booking_id"`
	Reference  string    `json:"reference"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

type PaymentInitiatedEvent struct {
	AttemptID  uuid.UUID       `json:"attempt_id"`
	BookingID  uuid.UUID       `json:"booking_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Gateway    string          `json:"gateway"`
	Outcome    string          `json:"outcome"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type PaymentFailedEvent struct {
	AttemptID  uuid.UUID `json:"attempt_id"`
	BookingID  uuid.UUID `json:"booking_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CouponConsumedEvent reports a redemption. OverLimit is set when the usage
// limit was already reached at confirmation time; the payment stands.
type CouponConsumedEvent struct {
	CouponID   uuid.UUID       `json:"coupon_id"`
	Code       string          `json:"code"`
	BookingID  uuid.UUID       `json:"booking_id"`
	Discount   decimal.Decimal `json:"discount"`
	OverLimit  bool            `json:"over_limit"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// PaymentSignal is the payload of both inbound signal types.
type PaymentSignal struct {
	BookingID uuid.UUID `json:"booking_id"`
	SessionID string    `json:"session_id"`
	Reason    string    `json:"reason,omitempty"`
}
