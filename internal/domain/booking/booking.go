package booking

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wanderly-travel/service-checkout/internal/domain/cart"
	"github.com/wanderly-travel/service-checkout/internal/domain/pricing"
	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
)

var (
	ErrEmptyItems   = domainerr.NewValidationError("empty_cart", "a booking needs at least one item")
	ErrKindMismatch = domainerr.NewValidationError("kind_mismatch", "every item must match the booking kind")
	ErrNoDetails    = domainerr.NewValidationError("missing_details", "booking details are required")
)

// Item is the locked-in price snapshot of one cart line.
type Item struct {
	ProductRef     string           `json:"product_ref"`
	ProductKind    cart.ProductKind `json:"product_kind"`
	Title          string           `json:"title,omitempty"`
	Date           time.Time        `json:"date"`
	AdultCount     int              `json:"adult_count"`
	ChildCount     int              `json:"child_count"`
	PriceKind      cart.PriceKind   `json:"price_kind"`
	AdultUnitPrice decimal.Decimal  `json:"adult_unit_price"`
	ChildUnitPrice decimal.Decimal  `json:"child_unit_price"`
	LineTotal      decimal.Decimal  `json:"line_total"`
	PickupRequired bool             `json:"pickup_required"`
}

// ItemFromEntry snapshots e.
func ItemFromEntry(e cart.Entry) Item {
	return Item{
		ProductRef:     e.ProductRef(),
		ProductKind:    e.ProductKind(),
		Title:          e.Title(),
		Date:           e.Date(),
		AdultCount:     e.AdultCount(),
		ChildCount:     e.ChildCount(),
		PriceKind:      e.PriceKind(),
		AdultUnitPrice: e.AdultUnitPrice(),
		ChildUnitPrice: e.ChildUnitPrice(),
		LineTotal:      e.LineTotal(),
		PickupRequired: e.PickupRequired(),
	}
}

// Booking is the aggregate root for a checkout submission. The envelope is
// shared by every kind; Details carries the kind-specific payload.
type Booking struct {
	id            uuid.UUID
	reference     string
	userID        *uuid.UUID
	contact       Contact
	details       Details
	items         []Item
	pricing       pricing.Snapshot
	couponCode    *string
	status        Status
	paymentStatus PaymentStatus
	cancelReason  string
	confirmedAt   *time.Time
	cancelledAt   *time.Time
	version       int64
	createdAt     time.Time
	updatedAt     time.Time
}

// NewBookingParams holds everything needed to open a booking.
type NewBookingParams struct {
	UserID     *uuid.UUID
	Contact    Contact
	Details    Details
	Items      []cart.Entry
	Pricing    pricing.Snapshot
	CouponCode string
}

// ValidateSubmission runs the checks that need no I/O: non-empty items,
// contact fields, and kind-specific details.
func ValidateSubmission(p NewBookingParams) error {
	if len(p.Items) == 0 {
		return ErrEmptyItems
	}
	if err := structErr(p.Contact.normalized()); err != nil {
		return err
	}
	if p.Details == nil {
		return ErrNoDetails
	}
	for _, e := range p.Items {
		if string(e.ProductKind()) != string(p.Details.Kind()) {
			return ErrKindMismatch
		}
	}
	return p.Details.check(cart.NeedsPickup(p.Items))
}

// NewBooking validates p and creates a pending booking.
func NewBooking(p NewBookingParams) (*Booking, error) {
	if err := ValidateSubmission(p); err != nil {
		return nil, err
	}

	items := make([]Item, len(p.Items))
	for i, e := range p.Items {
		items[i] = ItemFromEntry(e)
	}

	var couponCode *string
	if code := strings.ToUpper(strings.TrimSpace(p.CouponCode)); code != "" {
		couponCode = &code
	}

	id := uuid.New()
	now := time.Now().UTC()
	return &Booking{
		id:            id,
		reference:     ReferenceFor(id),
		userID:        p.UserID,
		contact:       p.Contact.normalized(),
		details:       p.Details,
		items:         items,
		pricing:       p.Pricing,
		couponCode:    couponCode,
		status:        StatusPending,
		paymentStatus: PaymentPending,
		version:       1,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// ReferenceFor derives the customer-facing reference from a booking id.
func ReferenceFor(id uuid.UUID) string {
	return "BK-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:12])
}

// --- Getters ---

func (b *Booking) ID() uuid.UUID                { return b.id }
func (b *Booking) Reference() string            { return b.reference }
func (b *Booking) UserID() *uuid.UUID           { return b.userID }
func (b *Booking) Kind() Kind                   { return b.details.Kind() }
func (b *Booking) Contact() Contact             { return b.contact }
func (b *Booking) Details() Details             { return b.details }
func (b *Booking) Items() []Item                { return slices.Clone(b.items) }
func (b *Booking) Pricing() pricing.Snapshot    { return b.pricing }
func (b *Booking) CouponCode() *string          { return b.couponCode }
func (b *Booking) Status() Status               { return b.status }
func (b *Booking) PaymentStatus() PaymentStatus { return b.paymentStatus }
func (b *Booking) CancelReason() string         { return b.cancelReason }
func (b *Booking) ConfirmedAt() *time.Time      { return b.confirmedAt }
func (b *Booking) CancelledAt() *time.Time      { return b.cancelledAt }
func (b *Booking) Version() int64               { return b.version }
func (b *Booking) CreatedAt() time.Time         { return b.createdAt }
func (b *Booking) UpdatedAt() time.Time         { return b.updatedAt }

// TourDetails returns the tour payload when b is a tour booking.
func (b *Booking) TourDetails() (TourDetails, bool) {
	d, ok := b.details.(TourDetails)
	return d, ok
}

// VisaDetails returns the visa payload when b is a visa booking.
func (b *Booking) VisaDetails() (VisaDetails, bool) {
	d, ok := b.details.(VisaDetails)
	return d, ok
}

// OwnedBy reports whether email matches the booking contact, ignoring case.
func (b *Booking) OwnedBy(email string) bool {
	return strings.EqualFold(strings.TrimSpace(email), b.contact.Email)
}

// IsPayable reports whether a payment may be started for the booking.
func (b *Booking) IsPayable() bool {
	return b.status == StatusPending && b.paymentStatus != PaymentPaid
}

// --- Behavior / State Transitions ---

// Confirm moves a pending booking to confirmed/paid. Confirming an already
// confirmed booking is a no-op and reports false.
func (b *Booking) Confirm() (bool, error) {
	if b.status == StatusConfirmed {
		return false, nil
	}
	if !b.status.CanTransitionTo(StatusConfirmed) {
		return false, domainerr.NewInvalidStateError(string(b.status), string(StatusConfirmed))
	}
	now := time.Now().UTC()
	b.status = StatusConfirmed
	b.paymentStatus = PaymentPaid
	b.confirmedAt = &now
	b.updatedAt = now
	return true, nil
}

// MarkPaymentFailed records a failed payment while keeping the booking
// pending so payment can be retried. It is a no-op outside pending.
func (b *Booking) MarkPaymentFailed() bool {
	if b.status != StatusPending || b.paymentStatus == PaymentFailed {
		return false
	}
	b.paymentStatus = PaymentFailed
	b.updatedAt = time.Now().UTC()
	return true
}

// ReopenPayment returns a failed payment to pending when a new attempt
// starts.
func (b *Booking) ReopenPayment() bool {
	if b.status != StatusPending || b.paymentStatus != PaymentFailed {
		return false
	}
	b.paymentStatus = PaymentPending
	b.updatedAt = time.Now().UTC()
	return true
}

// Cancel moves a pending booking to cancelled.
func (b *Booking) Cancel(reason string) error {
	if !b.status.CanTransitionTo(StatusCancelled) {
		return domainerr.NewInvalidStateError(string(b.status), string(StatusCancelled))
	}
	now := time.Now().UTC()
	b.status = StatusCancelled
	b.cancelReason = strings.TrimSpace(reason)
	b.cancelledAt = &now
	b.updatedAt = now
	return nil
}

// IncrementVersion bumps the version for optimistic locking.
func (b *Booking) IncrementVersion() {
	b.version++
	b.updatedAt = time.Now().UTC()
}

func (b *Booking) String() string {
	return fmt.Sprintf("%s(%s/%s)", b.reference, b.status, b.paymentStatus)
}

// --- Reconstitution ---

// Reconstitute rebuilds a Booking from persisted data.
func Reconstitute(
	id uuid.UUID,
	reference string,
	userID *uuid.UUID,
	contact Contact,
	details Details,
	items []Item,
	snapshot pricing.Snapshot,
	couponCode *string,
	status Status,
	paymentStatus PaymentStatus,
	cancelReason string,
	confirmedAt, cancelledAt *time.Time,
	version int64,
	createdAt, updatedAt time.Time,
) *Booking {
	return &Booking{
		id:            id,
		reference:     reference,
		userID:        userID,
		contact:       contact,
		details:       details,
		items:         items,
		pricing:       snapshot,
		couponCode:    couponCode,
		status:        status,
		paymentStatus: paymentStatus,
		cancelReason:  cancelReason,
		confirmedAt:   confirmedAt,
		cancelledAt:   cancelledAt,
		version:       version,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}
