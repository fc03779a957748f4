package coupon

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wanderly-travel/service-checkout/internal/domain/pricing"
	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
)

// DiscountType represents the type of discount.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFlat       DiscountType = "flat"
)

var hundred = decimal.NewFromInt(100)

// Coupon is the aggregate root for discount codes. Checkout only reads it;
// the usage counter is advanced exclusively through Repository.Consume.
type Coupon struct {
	id                    uuid.UUID
	code                  string
	discountType          DiscountType
	discountValue         decimal.Decimal
	minOrderAmount        decimal.Decimal
	maxDiscountAmount     *decimal.Decimal
	validFrom             *time.Time
	expiryDate            time.Time
	totalUsageLimit       *int
	currentUses           int
	applicableProductRefs []string
	isActive              bool
	createdBy             uuid.UUID
	createdAt             time.Time
	updatedAt             time.Time
}

// NewCouponParams holds the admin-supplied fields of a coupon.
type NewCouponParams struct {
	Code                  string
	DiscountType          DiscountType
	DiscountValue         decimal.Decimal
	MinOrderAmount        decimal.Decimal
	MaxDiscountAmount     *decimal.Decimal
	ValidFrom             *time.Time
	ExpiryDate            time.Time
	TotalUsageLimit       *int
	ApplicableProductRefs []string
	CreatedBy             uuid.UUID
}

// NewCoupon validates p and creates an active coupon.
func NewCoupon(p NewCouponParams) (*Coupon, error) {
	code := NormalizeCode(p.Code)
	if code == "" {
		return nil, domainerr.NewValidationError("invalid_coupon", "coupon code is required")
	}
	if len(code) > 50 {
		return nil, domainerr.NewValidationError("invalid_coupon", "coupon code is too long")
	}
	if p.DiscountType != DiscountPercentage && p.DiscountType != DiscountFlat {
		return nil, domainerr.NewValidationError("invalid_coupon", fmt.Sprintf("invalid discount type: %s", p.DiscountType))
	}
	if !p.DiscountValue.IsPositive() {
		return nil, domainerr.NewValidationError("invalid_coupon", "discount value must be positive")
	}
	if p.DiscountType == DiscountPercentage && p.DiscountValue.GreaterThan(hundred) {
		return nil, domainerr.NewValidationError("invalid_coupon", "percentage discount cannot exceed 100")
	}
	if p.MinOrderAmount.IsNegative() {
		return nil, domainerr.NewValidationError("invalid_coupon", "minimum order amount cannot be negative")
	}
	if p.MaxDiscountAmount != nil && !p.MaxDiscountAmount.IsPositive() {
		return nil, domainerr.NewValidationError("invalid_coupon", "maximum discount must be positive when set")
	}
	if p.ExpiryDate.IsZero() {
		return nil, domainerr.NewValidationError("invalid_coupon", "expiry date is required")
	}
	if p.ValidFrom != nil && p.ExpiryDate.Before(*p.ValidFrom) {
		return nil, domainerr.NewValidationError("invalid_coupon", "expiry date must be after valid from")
	}
	if p.TotalUsageLimit != nil && *p.TotalUsageLimit < 1 {
		return nil, domainerr.NewValidationError("invalid_coupon", "usage limit must be at least 1 when set")
	}

	refs := make([]string, 0, len(p.ApplicableProductRefs))
	for _, r := range p.ApplicableProductRefs {
		if r = strings.TrimSpace(r); r != "" && !slices.Contains(refs, r) {
			refs = append(refs, r)
		}
	}

	now := time.Now().UTC()
	return &Coupon{
		id:                    uuid.New(),
		code:                  code,
		discountType:          p.DiscountType,
		discountValue:         p.DiscountValue,
		minOrderAmount:        p.MinOrderAmount,
		maxDiscountAmount:     p.MaxDiscountAmount,
		validFrom:             p.ValidFrom,
		expiryDate:            p.ExpiryDate.UTC(),
		totalUsageLimit:       p.TotalUsageLimit,
		applicableProductRefs: refs,
		isActive:              true,
		createdBy:             p.CreatedBy,
		createdAt:             now,
		updatedAt:             now,
	}, nil
}

// NormalizeCode is the canonical stored form of a code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsExpired reports whether now falls outside the validity window.
func (c *Coupon) IsExpired(now time.Time) bool {
	if c.validFrom != nil && now.Before(*c.validFrom) {
		return true
	}
	return now.After(c.expiryDate)
}

// IsExhausted reports whether the usage limit, if any, has been reached.
func (c *Coupon) IsExhausted() bool {
	return c.totalUsageLimit != nil && c.currentUses >= *c.totalUsageLimit
}

// AppliesTo reports whether any of productRefs is in scope. An unscoped
// coupon applies to everything.
func (c *Coupon) AppliesTo(productRefs ...string) bool {
	if len(c.applicableProductRefs) == 0 {
		return true
	}
	for _, ref := range productRefs {
		if slices.Contains(c.applicableProductRefs, ref) {
			return true
		}
	}
	return false
}

// Discount computes the discount for orderAmount. The result is rounded to
// cents and always within [0, orderAmount].
func (c *Coupon) Discount(orderAmount decimal.Decimal) decimal.Decimal {
	if !orderAmount.IsPositive() {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch c.discountType {
	case DiscountPercentage:
		discount = orderAmount.Mul(c.discountValue).Div(hundred)
		if c.maxDiscountAmount != nil && discount.GreaterThan(*c.maxDiscountAmount) {
			discount = *c.maxDiscountAmount
		}
	case DiscountFlat:
		discount = decimal.Min(c.discountValue, orderAmount)
	}

	discount = pricing.Round2(discount)
	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(orderAmount) {
		return orderAmount
	}
	return discount
}

// Deactivate hides the coupon from checkout.
func (c *Coupon) Deactivate() error {
	if !c.isActive {
		return domainerr.NewConflictError("coupon is already inactive")
	}
	c.isActive = false
	c.updatedAt = time.Now().UTC()
	return nil
}

func (c *Coupon) ID() uuid.UUID                       { return c.id }
func (c *Coupon) Code() string                        { return c.code }
func (c *Coupon) DiscountType() DiscountType          { return c.discountType }
func (c *Coupon) DiscountValue() decimal.Decimal      { return c.discountValue }
func (c *Coupon) MinOrderAmount() decimal.Decimal     { return c.minOrderAmount }
func (c *Coupon) MaxDiscountAmount() *decimal.Decimal { return c.maxDiscountAmount }
func (c *Coupon) ValidFrom() *time.Time               { return c.validFrom }
func (c *Coupon) ExpiryDate() time.Time               { return c.expiryDate }
func (c *Coupon) TotalUsageLimit() *int               { return c.totalUsageLimit }
func (c *Coupon) CurrentUses() int                    { return c.currentUses }
func (c *Coupon) ApplicableProductRefs() []string     { return slices.Clone(c.applicableProductRefs) }
func (c *Coupon) IsActive() bool                      { return c.isActive }
func (c *Coupon) CreatedBy() uuid.UUID                { return c.createdBy }
func (c *Coupon) CreatedAt() time.Time                { return c.createdAt }
func (c *Coupon) UpdatedAt() time.Time                { return c.updatedAt }

// Reconstitute rebuilds a Coupon from persistence.
func Reconstitute(
	id uuid.UUID,
	code string,
	discountType DiscountType,
	discountValue, minOrderAmount decimal.Decimal,
	maxDiscountAmount *decimal.Decimal,
	validFrom *time.Time,
	expiryDate time.Time,
	totalUsageLimit *int,
	currentUses int,
	applicableProductRefs []string,
	isActive bool,
	createdBy uuid.UUID,
	createdAt, updatedAt time.Time,
) *Coupon {
	return &Coupon{
		id:                    id,
		code:                  code,
		discountType:          discountType,
		discountValue:         discountValue,
		minOrderAmount:        minOrderAmount,
		maxDiscountAmount:     maxDiscountAmount,
		validFrom:             validFrom,
		expiryDate:            expiryDate,
		totalUsageLimit:       totalUsageLimit,
		currentUses:           currentUses,
		applicableProductRefs: applicableProductRefs,
		isActive:              isActive,
		createdBy:             createdBy,
		createdAt:             createdAt,
		updatedAt:             updatedAt,
	}
}
