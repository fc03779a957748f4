package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderly-travel/service-checkout/internal/domain/cart"
	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
)

func money(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func entry(t *testing.T, kind cart.ProductKind, pickup bool) cart.Entry {
	t.Helper()
	e, err := cart.NewEntry(cart.EntryInput{
		ProductRef:     "tour-bali",
		ProductKind:    kind,
		Date:           time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
		AdultCount:     2,
		ChildCount:     1,
		AdultUnitPrice: money("100"),
		ChildUnitPrice: money("50"),
		PickupRequired: pickup,
	})
	require.NoError(t, err)
	return e
}

func validParams(t *testing.T) NewBookingParams {
	items := []cart.Entry{entry(t, cart.ProductTour, true)}
	return NewBookingParams{
		Contact: Contact{Name: "Ana Lima", Email: "Ana@Example.com", Phone: "+628123456789"},
		Details: TourDetails{PickupLocation: "Hotel Kuta", DropLocation: "Airport"},
		Items:   items,
		Pricing: cart.Aggregate(items),
	}
}

func newPending(t *testing.T) *Booking {
	t.Helper()
	b, err := NewBooking(validParams(t))
	require.NoError(t, err)
	return b
}

func TestNewBooking(t *testing.T) {
	b := newPending(t)

	assert.Equal(t, StatusPending, b.Status())
	assert.Equal(t, PaymentPending, b.PaymentStatus())
	assert.Equal(t, KindTour, b.Kind())
	assert.Equal(t, "ana@example.com", b.Contact().Email)
	assert.Regexp(t, `^BK-[0-9A-F]{12}$`, b.Reference())
	assert.Equal(t, int64(1), b.Version())
	assert.Nil(t, b.CouponCode())
	require.Len(t, b.Items(), 1)
	assert.True(t, b.Items()[0].LineTotal.Equal(decimal.NewFromInt(250)))
}

func TestNewBooking_CouponCodeUpperCased(t *testing.T) {
	p := validParams(t)
	p.CouponCode = " save10 "

	b, err := NewBooking(p)
	require.NoError(t, err)
	require.NotNil(t, b.CouponCode())
	assert.Equal(t, "SAVE10", *b.CouponCode())
}

func TestValidateSubmission(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(p *NewBookingParams)
		code   string
	}{
		{"empty items", func(p *NewBookingParams) { p.Items = nil }, "empty_cart"},
		{"missing name", func(p *NewBookingParams) { p.Contact.Name = "  " }, "invalid_name"},
		{"missing email", func(p *NewBookingParams) { p.Contact.Email = "" }, "invalid_email"},
		{"bad email", func(p *NewBookingParams) { p.Contact.Email = "not-an-email" }, "invalid_email"},
		{"missing pickup", func(p *NewBookingParams) { p.Details = TourDetails{DropLocation: "Airport"} }, "missing_pickup"},
		{"no details", func(p *NewBookingParams) { p.Details = nil }, "missing_details"},
		{"kind mismatch", func(p *NewBookingParams) {
			p.Details = VisaDetails{Nationality: "BR", PassportNumber: "FX123456", TravelDate: time.Now()}
		}, "kind_mismatch"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams(t)
			tc.mutate(&p)
			err := ValidateSubmission(p)
			require.Error(t, err)
			assert.ErrorIs(t, err, domainerr.ErrValidation)
			assert.Equal(t, tc.code, domainerr.Code(err))
		})
	}
}

func TestValidateSubmission_PickupOptionalWhenNotRequired(t *testing.T) {
	p := validParams(t)
	p.Items = []cart.Entry{entry(t, cart.ProductTour, false)}
	p.Details = TourDetails{}

	assert.NoError(t, ValidateSubmission(p))
}

func TestNewBooking_Visa(t *testing.T) {
	items := []cart.Entry{entry(t, cart.ProductVisa, false)}
	p := NewBookingParams{
		Contact: Contact{Name: "Ana", Email: "ana@example.com"},
		Details: VisaDetails{Nationality: "BR", PassportNumber: "FX123456", TravelDate: time.Date(2027, 1, 5, 0, 0, 0, 0, time.UTC)},
		Items:   items,
		Pricing: cart.Aggregate(items),
	}

	b, err := NewBooking(p)
	require.NoError(t, err)
	assert.Equal(t, KindVisa, b.Kind())
	v, ok := b.VisaDetails()
	require.True(t, ok)
	assert.Equal(t, "FX123456", v.PassportNumber)
	_, ok = b.TourDetails()
	assert.False(t, ok)

	p.Details = VisaDetails{Nationality: "BR", TravelDate: time.Now()}
	_, err = NewBooking(p)
	assert.Equal(t, "invalid_passportnumber", domainerr.Code(err))
}

func TestConfirm_Idempotent(t *testing.T) {
	b := newPending(t)

	changed, err := b.Confirm()
	require.NoError(t, err)
	assert.True(t, changed)
	first := *b.ConfirmedAt()

	changed, err = b.Confirm()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StatusConfirmed, b.Status())
	assert.Equal(t, PaymentPaid, b.PaymentStatus())
	assert.Equal(t, first, *b.ConfirmedAt())
}

func TestForwardOnly(t *testing.T) {
	b := newPending(t)
	_, err := b.Confirm()
	require.NoError(t, err)

	assert.ErrorIs(t, b.Cancel("late"), domainerr.ErrInvalidState)
	assert.False(t, b.MarkPaymentFailed())
	assert.False(t, b.ReopenPayment())
	assert.Equal(t, StatusConfirmed, b.Status())
	assert.Equal(t, PaymentPaid, b.PaymentStatus())
}

func TestCancelledCannotConfirm(t *testing.T) {
	b := newPending(t)
	require.NoError(t, b.Cancel("customer request"))

	_, err := b.Confirm()
	assert.ErrorIs(t, err, domainerr.ErrInvalidState)
	assert.Equal(t, StatusCancelled, b.Status())
	assert.Equal(t, "customer request", b.CancelReason())
}

func TestPaymentFailureIsRetryable(t *testing.T) {
	b := newPending(t)

	assert.True(t, b.MarkPaymentFailed())
	assert.False(t, b.MarkPaymentFailed())
	assert.Equal(t, StatusPending, b.Status())
	assert.Equal(t, PaymentFailed, b.PaymentStatus())
	assert.True(t, b.IsPayable())

	assert.True(t, b.ReopenPayment())
	assert.Equal(t, PaymentPending, b.PaymentStatus())

	_, err := b.Confirm()
	require.NoError(t, err)
	assert.False(t, b.IsPayable())
}

func TestPriceSnapshotImmutable(t *testing.T) {
	b := newPending(t)
	before := b.Pricing()

	items := b.Items()
	items[0].AdultUnitPrice = decimal.NewFromInt(999)

	// the catalog price changes after checkout
	repriced, err := cart.NewEntry(cart.EntryInput{
		ProductRef: "tour-bali", ProductKind: cart.ProductTour,
		Date: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), AdultCount: 2, ChildCount: 1,
		AdultUnitPrice: money("180"), ChildUnitPrice: money("90"),
	})
	require.NoError(t, err)
	_ = cart.Aggregate([]cart.Entry{repriced})

	assert.True(t, b.Items()[0].AdultUnitPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, b.Pricing().FinalPayable.Equal(before.FinalPayable))
	assert.True(t, b.Pricing().FinalPayable.Equal(decimal.RequireFromString("259.38")))
}

func TestOwnedBy(t *testing.T) {
	b := newPending(t)

	assert.True(t, b.OwnedBy("ANA@example.com "))
	assert.False(t, b.OwnedBy("someone@example.com"))
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusConfirmed))
	assert.True(t, StatusPending.CanTransitionTo(StatusCancelled))
	assert.False(t, StatusConfirmed.CanTransitionTo(StatusPending))
	assert.False(t, StatusConfirmed.CanTransitionTo(StatusCancelled))
	assert.False(t, StatusCancelled.CanTransitionTo(StatusPending))
	assert.True(t, StatusConfirmed.IsTerminal())
}

func TestReferenceFor(t *testing.T) {
	id := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")

	assert.Equal(t, "BK-0F8FAD5BD9CB", ReferenceFor(id))
}
