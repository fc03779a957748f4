package payment

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
)

// Status represents the state of a payment attempt.
type Status string

const (
	StatusOutstanding Status = "outstanding"
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
)

// Outcome is what the gateway answered when the attempt was started.
type Outcome string

const (
	OutcomeRedirect         Outcome = "redirect"
	OutcomeImmediateConfirm Outcome = "immediate_confirm"
	OutcomeFailed           Outcome = "failed"
)

// GatewayNone marks attempts that never reached a gateway (zero amount).
const GatewayNone = "none"

// Attempt is one request to a payment gateway for a booking. At most one
// outstanding or succeeded attempt exists per booking.
type Attempt struct {
	id                uuid.UUID
	bookingID         uuid.UUID
	amount            decimal.Decimal
	currency          string
	gateway           string
	externalReference string
	redirectURL       string
	outcome           Outcome
	status            Status
	failureReason     string
	succeededAt       *time.Time
	failedAt          *time.Time
	version           int64
	createdAt         time.Time
	updatedAt         time.Time
}

// NewAttempt creates an outstanding attempt for amount. amount always comes
// from the booking's stored pricing.
func NewAttempt(bookingID uuid.UUID, amount decimal.Decimal, currency, gateway string) (*Attempt, error) {
	if amount.IsNegative() {
		return nil, domainerr.NewValidationError("invalid_amount", "payment amount cannot be negative")
	}
	now := time.Now().UTC()
	return &Attempt{
		id:        uuid.New(),
		bookingID: bookingID,
		amount:    amount,
		currency:  strings.ToUpper(currency),
		gateway:   gateway,
		status:    StatusOutstanding,
		version:   1,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// --- Getters ---

func (a *Attempt) ID() uuid.UUID             { return a.id }
func (a *Attempt) BookingID() uuid.UUID      { return a.bookingID }
func (a *Attempt) Amount() decimal.Decimal   { return a.amount }
func (a *Attempt) Currency() string          { return a.currency }
func (a *Attempt) Gateway() string           { return a.gateway }
func (a *Attempt) ExternalReference() string { return a.externalReference }
func (a *Attempt) RedirectURL() string       { return a.redirectURL }
func (a *Attempt) Outcome() Outcome          { return a.outcome }
func (a *Attempt) Status() Status            { return a.status }
func (a *Attempt) FailureReason() string     { return a.failureReason }
func (a *Attempt) SucceededAt() *time.Time   { return a.succeededAt }
func (a *Attempt) FailedAt() *time.Time      { return a.failedAt }
func (a *Attempt) Version() int64            { return a.version }
func (a *Attempt) CreatedAt() time.Time      { return a.createdAt }
func (a *Attempt) UpdatedAt() time.Time      { return a.updatedAt }

// IsLive reports whether the attempt blocks a new one for the same booking.
func (a *Attempt) IsLive() bool {
	return a.status == StatusOutstanding || a.status == StatusSucceeded
}

// --- Behavior / State Transitions ---

// RecordRedirect stores the gateway session the customer must complete.
func (a *Attempt) RecordRedirect(externalReference, redirectURL string) error {
	if a.status != StatusOutstanding || a.outcome != "" {
		return domainerr.NewInvalidStateError(string(a.status), string(OutcomeRedirect))
	}
	a.externalReference = externalReference
	a.redirectURL = redirectURL
	a.outcome = OutcomeRedirect
	a.updatedAt = time.Now().UTC()
	return nil
}

// RecordImmediateConfirm marks an attempt that needs no customer redirect.
func (a *Attempt) RecordImmediateConfirm(externalReference string) error {
	if a.status != StatusOutstanding || a.outcome != "" {
		return domainerr.NewInvalidStateError(string(a.status), string(OutcomeImmediateConfirm))
	}
	a.externalReference = externalReference
	a.outcome = OutcomeImmediateConfirm
	a.updatedAt = time.Now().UTC()
	return nil
}

// Succeed transitions an outstanding attempt to succeeded. A repeated call
// reports false.
func (a *Attempt) Succeed() (bool, error) {
	switch a.status {
	case StatusSucceeded:
		return false, nil
	case StatusOutstanding:
		now := time.Now().UTC()
		a.status = StatusSucceeded
		a.succeededAt = &now
		a.updatedAt = now
		return true, nil
	default:
		return false, domainerr.NewInvalidStateError(string(a.status), string(StatusSucceeded))
	}
}

// Recover marks a failed attempt succeeded after the gateway reported the
// same session paid. A repeated call reports false.
func (a *Attempt) Recover() (bool, error) {
	switch a.status {
	case StatusSucceeded:
		return false, nil
	case StatusFailed:
		now := time.Now().UTC()
		a.status = StatusSucceeded
		a.succeededAt = &now
		a.updatedAt = now
		return true, nil
	default:
		return false, domainerr.NewInvalidStateError(string(a.status), string(StatusSucceeded))
	}
}

// Fail transitions an outstanding attempt to failed, freeing the booking for
// a new attempt. A repeated call reports false.
func (a *Attempt) Fail(reason string) (bool, error) {
	switch a.status {
	case StatusFailed:
		return false, nil
	case StatusOutstanding:
		now := time.Now().UTC()
		a.status = StatusFailed
		a.outcome = OutcomeFailed
		a.failureReason = reason
		a.failedAt = &now
		a.updatedAt = now
		return true, nil
	default:
		return false, domainerr.NewInvalidStateError(string(a.status), string(StatusFailed))
	}
}

// IncrementVersion bumps the version for optimistic locking.
func (a *Attempt) IncrementVersion() {
	a.version++
	a.updatedAt = time.Now().UTC()
}

// --- Reconstitution ---

// Reconstitute rebuilds an Attempt from persisted data.
func Reconstitute(
	id, bookingID uuid.UUID,
	amount decimal.Decimal,
	currency, gateway, externalReference, redirectURL string,
	outcome Outcome,
	status Status,
	failureReason string,
	succeededAt, failedAt *time.Time,
	version int64,
	createdAt, updatedAt time.Time,
) *Attempt {
	return &Attempt{
		id:                id,
		bookingID:         bookingID,
		amount:            amount,
		currency:          currency,
		gateway:           gateway,
		externalReference: externalReference,
		redirectURL:       redirectURL,
		outcome:           outcome,
		status:            status,
		failureReason:     failureReason,
		succeededAt:       succeededAt,
		failedAt:          failedAt,
		version:           version,
		createdAt:         createdAt,
		updatedAt:         updatedAt,
	}
}
