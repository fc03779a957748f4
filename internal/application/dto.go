package application

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wanderly-travel/service-checkout/internal/domain/booking"
	"github.com/wanderly-travel/service-checkout/internal/domain/cart"
	"github.com/wanderly-travel/service-checkout/internal/domain/coupon"
	"github.com/wanderly-travel/service-checkout/internal/domain/payment"
	"github.com/wanderly-travel/service-checkout/internal/domain/pricing"
	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
)

// --- Cart ---

// CartItemRequest is one cart line as sent by the storefront. Prices are
// pointers so an omitted price can be told apart from zero.
type CartItemRequest struct {
	ProductRef     string           `json:"product_ref"`
	ProductKind    string           `json:"product_kind"`
	Title          string           `json:"title"`
	Date           string           `json:"date"`
	AdultCount     int              `json:"adult_count"`
	ChildCount     int              `json:"child_count"`
	PriceKind      string           `json:"price_kind"`
	AdultUnitPrice *decimal.Decimal `json:"adult_unit_price"`
	ChildUnitPrice *decimal.Decimal `json:"child_unit_price"`
	PickupRequired bool             `json:"pickup_required"`
}

func (r CartItemRequest) toEntry() (cart.Entry, error) {
	var date time.Time
	if strings.TrimSpace(r.Date) != "" {
		d, err := time.Parse(cart.DateLayout, strings.TrimSpace(r.Date))
		if err != nil {
			return cart.Entry{}, domainerr.NewValidationError("invalid_date", "date must be formatted YYYY-MM-DD")
		}
		date = d
	}
	return cart.NewEntry(cart.EntryInput{
		ProductRef:     r.ProductRef,
		ProductKind:    cart.ProductKind(strings.ToLower(r.ProductKind)),
		Title:          r.Title,
		Date:           date,
		AdultCount:     r.AdultCount,
		ChildCount:     r.ChildCount,
		PriceKind:      cart.PriceKind(strings.ToLower(r.PriceKind)),
		AdultUnitPrice: r.AdultUnitPrice,
		ChildUnitPrice: r.ChildUnitPrice,
		PickupRequired: r.PickupRequired,
	})
}

func toEntries(items []CartItemRequest) ([]cart.Entry, error) {
	entries := make([]cart.Entry, 0, len(items))
	for _, it := range items {
		e, err := it.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SaveCartRequest replaces the whole cart.
type SaveCartRequest struct {
	Items []CartItemRequest `json:"items"`
}

// PriceCartRequest optionally previews a coupon against the stored cart.
type PriceCartRequest struct {
	CouponCode string `json:"coupon_code"`
}

// MergeCartRequest names the guest cart to fold into the caller's cart.
type MergeCartRequest struct {
	GuestOwner string `json:"guest_owner" binding:"required"`
}

// CartItemDTO is the API representation of a cart line.
type CartItemDTO struct {
	ProductRef     string          `json:"product_ref"`
	ProductKind    string          `json:"product_kind"`
	Title          string          `json:"title,omitempty"`
	Date           string          `json:"date"`
	AdultCount     int             `json:"adult_count"`
	ChildCount     int             `json:"child_count"`
	PriceKind      string          `json:"price_kind"`
	AdultUnitPrice decimal.Decimal `json:"adult_unit_price"`
	ChildUnitPrice decimal.Decimal `json:"child_unit_price"`
	LineTotal      decimal.Decimal `json:"line_total"`
	PickupRequired bool            `json:"pickup_required"`
}

// CartDTO is a priced cart.
type CartDTO struct {
	Owner   string            `json:"owner"`
	Items   []CartItemDTO     `json:"items"`
	Pricing pricing.Snapshot  `json:"pricing"`
	Coupon  *CouponPreviewDTO `json:"coupon,omitempty"`
}

func toCartDTO(owner cart.Owner, entries []cart.Entry, snap pricing.Snapshot, preview *CouponPreviewDTO) *CartDTO {
	items := make([]CartItemDTO, len(entries))
	for i, e := range entries {
		items[i] = CartItemDTO{
			ProductRef:     e.ProductRef(),
			ProductKind:    string(e.ProductKind()),
			Title:          e.Title(),
			Date:           e.Date().Format(cart.DateLayout),
			AdultCount:     e.AdultCount(),
			ChildCount:     e.ChildCount(),
			PriceKind:      string(e.PriceKind()),
			AdultUnitPrice: e.AdultUnitPrice(),
			ChildUnitPrice: e.ChildUnitPrice(),
			LineTotal:      e.LineTotal(),
			PickupRequired: e.PickupRequired(),
		}
	}
	return &CartDTO{Owner: owner.String(), Items: items, Pricing: snap, Coupon: preview}
}

// --- Coupons ---

// ApplyCouponRequest previews a code against an order amount.
type ApplyCouponRequest struct {
	Code        string          `json:"code"`
	OrderAmount decimal.Decimal `json:"order_amount"`
	ProductRef  string          `json:"product_ref"`
}

// CouponPreviewDTO is the answer to a coupon preview. A rejection is a
// normal answer, not an error.
type CouponPreviewDTO struct {
	Valid       bool            `json:"valid"`
	AppliedCode string          `json:"applied_code,omitempty"`
	Discount    decimal.Decimal `json:"discount"`
	Reason      string          `json:"reason,omitempty"`
	Message     string          `json:"message,omitempty"`
}

func toPreviewDTO(r coupon.Result) *CouponPreviewDTO {
	return &CouponPreviewDTO{
		Valid:       r.Valid(),
		AppliedCode: r.AppliedCode,
		Discount:    r.Discount,
		Reason:      string(r.Reason),
		Message:     r.Reason.Message(),
	}
}

// CreateCouponRequest holds data to create a coupon.
type CreateCouponRequest struct {
	Code                  string           `json:"code" binding:"required"`
	DiscountType          string           `json:"discount_type" binding:"required,oneof=percentage flat"`
	DiscountValue         decimal.Decimal  `json:"discount_value"`
	MinOrderAmount        decimal.Decimal  `json:"min_order_amount"`
	MaxDiscountAmount     *decimal.Decimal `json:"max_discount_amount"`
	ValidFrom             *time.Time       `json:"valid_from"`
	ExpiryDate            time.Time        `json:"expiry_date" binding:"required"`
	TotalUsageLimit       *int             `json:"total_usage_limit"`
	ApplicableProductRefs []string         `json:"applicable_product_refs"`
}

// CouponDTO is the API representation of a coupon.
type CouponDTO struct {
	ID                    uuid.UUID        `json:"id"`
	Code                  string           `json:"code"`
	DiscountType          string           `json:"discount_type"`
	DiscountValue         decimal.Decimal  `json:"discount_value"`
	MinOrderAmount        decimal.Decimal  `json:"min_order_amount"`
	MaxDiscountAmount     *decimal.Decimal `json:"max_discount_amount,omitempty"`
	ValidFrom             *time.Time       `json:"valid_from,omitempty"`
	ExpiryDate            time.Time        `json:"expiry_date"`
	TotalUsageLimit       *int             `json:"total_usage_limit,omitempty"`
	CurrentUses           int              `json:"current_uses"`
	ApplicableProductRefs []string         `json:"applicable_product_refs"`
	IsActive              bool             `json:"is_active"`
	CreatedAt             time.Time        `json:"created_at"`
}

func toCouponDTO(c *coupon.Coupon) CouponDTO {
	return CouponDTO{
		ID:                    c.ID(),
		Code:                  c.Code(),
		DiscountType:          string(c.DiscountType()),
		DiscountValue:         c.DiscountValue(),
		MinOrderAmount:        c.MinOrderAmount(),
		MaxDiscountAmount:     c.MaxDiscountAmount(),
		ValidFrom:             c.ValidFrom(),
		ExpiryDate:            c.ExpiryDate(),
		TotalUsageLimit:       c.TotalUsageLimit(),
		CurrentUses:           c.CurrentUses(),
		ApplicableProductRefs: c.ApplicableProductRefs(),
		IsActive:              c.IsActive(),
		CreatedAt:             c.CreatedAt(),
	}
}

// --- Bookings ---

// VisaRequest is the visa payload of a booking submission.
type VisaRequest struct {
	Nationality    string `json:"nationality"`
	PassportNumber string `json:"passport_number"`
	TravelDate     string `json:"travel_date"`
}

// CreateBookingRequest is a checkout submission. Pricing is the snapshot the
// client displayed; it is only compared against the server's own pricing.
type CreateBookingRequest struct {
	Kind       string               `json:"kind"`
	Contact    booking.Contact      `json:"contact"`
	Tour       *booking.TourDetails `json:"tour,omitempty"`
	Visa       *VisaRequest         `json:"visa,omitempty"`
	Items      []CartItemRequest    `json:"items"`
	Pricing    *pricing.Snapshot    `json:"pricing,omitempty"`
	CouponCode string               `json:"coupon_code"`
	CartOwner  string               `json:"cart_owner"`
}

func (r CreateBookingRequest) details() (booking.Details, error) {
	switch booking.Kind(strings.ToLower(r.Kind)) {
	case booking.KindTour:
		if r.Tour == nil {
			return booking.TourDetails{}, nil
		}
		return *r.Tour, nil
	case booking.KindVisa:
		if r.Visa == nil {
			return nil, booking.ErrNoDetails
		}
		var travel time.Time
		if s := strings.TrimSpace(r.Visa.TravelDate); s != "" {
			t, err := time.Parse(cart.DateLayout, s)
			if err != nil {
				return nil, domainerr.NewValidationError("invalid_travel_date", "travel date must be formatted YYYY-MM-DD")
			}
			travel = t
		}
		return booking.VisaDetails{
			Nationality:    strings.TrimSpace(r.Visa.Nationality),
			PassportNumber: strings.ToUpper(strings.TrimSpace(r.Visa.PassportNumber)),
			TravelDate:     travel,
		}, nil
	default:
		return nil, domainerr.NewValidationError("invalid_kind", "kind must be tour or visa")
	}
}

// VisaDTO is the visa payload with the passport number masked.
type VisaDTO struct {
	Nationality    string    `json:"nationality"`
	PassportNumber string    `json:"passport_number"`
	TravelDate     time.Time `json:"travel_date"`
}

// BookingDTO is the API response representation of a booking.
type BookingDTO struct {
	ID            uuid.UUID            `json:"id"`
	Reference     string               `json:"reference"`
	Kind          string               `json:"kind"`
	Status        string               `json:"status"`
	PaymentStatus string               `json:"payment_status"`
	Contact       booking.Contact      `json:"contact"`
	Tour          *booking.TourDetails `json:"tour,omitempty"`
	Visa          *VisaDTO             `json:"visa,omitempty"`
	Items         []booking.Item       `json:"items"`
	Pricing       pricing.Snapshot     `json:"pricing"`
	CouponCode    *string              `json:"coupon_code,omitempty"`
	CancelReason  string               `json:"cancel_reason,omitempty"`
	ConfirmedAt   *time.Time           `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time           `json:"cancelled_at,omitempty"`
	Version       int64                `json:"version"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func toBookingDTO(b *booking.Booking) *BookingDTO {
	dto := &BookingDTO{
		ID:            b.ID(),
		Reference:     b.Reference(),
		Kind:          string(b.Kind()),
		Status:        string(b.Status()),
		PaymentStatus: string(b.PaymentStatus()),
		Contact:       b.Contact(),
		Items:         b.Items(),
		Pricing:       b.Pricing(),
		CouponCode:    b.CouponCode(),
		CancelReason:  b.CancelReason(),
		ConfirmedAt:   b.ConfirmedAt(),
		CancelledAt:   b.CancelledAt(),
		Version:       b.Version(),
		CreatedAt:     b.CreatedAt(),
		UpdatedAt:     b.UpdatedAt(),
	}
	if d, ok := b.TourDetails(); ok {
		dto.Tour = &d
	}
	if d, ok := b.VisaDetails(); ok {
		dto.Visa = &VisaDTO{
			Nationality:    d.Nationality,
			PassportNumber: maskPassport(d.PassportNumber),
			TravelDate:     d.TravelDate,
		}
	}
	return dto
}

func maskPassport(p string) string {
	if len(p) <= 3 {
		return strings.Repeat("*", len(p))
	}
	return strings.Repeat("*", len(p)-3) + p[len(p)-3:]
}

// CreateBookingResult is returned by BookingService.Create. Reused is set
// when a repeated submission returned the booking created the first time.
type CreateBookingResult struct {
	Booking *BookingDTO `json:"booking"`
	Reused  bool        `json:"reused"`
}

// CancelBookingRequest holds the admin's cancellation reason.
type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// --- Payments ---

// InitiatePaymentRequest starts payment for a booking. The amount always
// comes from the stored booking.
type InitiatePaymentRequest struct {
	BookingID uuid.UUID `json:"booking_id" binding:"required"`
}

// ConfirmPaymentRequest asks the reconciler to settle a booking.
type ConfirmPaymentRequest struct {
	BookingID uuid.UUID `json:"booking_id" binding:"required"`
}

// PaymentAttemptDTO is the API representation of a payment attempt.
type PaymentAttemptDTO struct {
	ID                uuid.UUID       `json:"id"`
	BookingID         uuid.UUID       `json:"booking_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Gateway           string          `json:"gateway"`
	ExternalReference string          `json:"external_reference,omitempty"`
	Outcome           string          `json:"outcome"`
	Status            string          `json:"status"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func toAttemptDTO(a *payment.Attempt) PaymentAttemptDTO {
	return PaymentAttemptDTO{
		ID:                a.ID(),
		BookingID:         a.BookingID(),
		Amount:            a.Amount(),
		Currency:          a.Currency(),
		Gateway:           a.Gateway(),
		ExternalReference: a.ExternalReference(),
		Outcome:           string(a.Outcome()),
		Status:            string(a.Status()),
		FailureReason:     a.FailureReason(),
		CreatedAt:         a.CreatedAt(),
		UpdatedAt:         a.UpdatedAt(),
	}
}

// InitiatePaymentResult tells the storefront where to send the customer:
// to RedirectURL, or straight to confirmation when ImmediateConfirm is set.
type InitiatePaymentResult struct {
	Attempt          PaymentAttemptDTO `json:"attempt"`
	RedirectURL      string            `json:"redirect_url,omitempty"`
	ImmediateConfirm bool              `json:"immediate_confirm"`
	Reused           bool              `json:"reused"`
}

func toInitiateResult(a *payment.Attempt, reused bool) *InitiatePaymentResult {
	return &InitiatePaymentResult{
		Attempt:          toAttemptDTO(a),
		RedirectURL:      a.RedirectURL(),
		ImmediateConfirm: a.Outcome() == payment.OutcomeImmediateConfirm,
		Reused:           reused,
	}
}
