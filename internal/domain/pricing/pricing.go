// Package pricing holds the money math shared by the cart, coupon and booking
// aggregates. All values are decimals; rounding to cents happens only at the
// fee and final-amount boundary.
package pricing

import (
	"github.com/shopspring/decimal"
)

// FeeRate is the transaction fee charged on every order subtotal.
var FeeRate = decimal.RequireFromString("0.0375")

// Round2 rounds half away from zero to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Snapshot is the priced view of an order. Once copied into a booking it is
// never recomputed.
type Snapshot struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	TransactionFeeRate decimal.Decimal `json:"transaction_fee_rate"`
	TransactionFee     decimal.Decimal `json:"transaction_fee"`
	CouponDiscount     decimal.Decimal `json:"coupon_discount"`
	FinalPayable       decimal.Decimal `json:"final_payable"`
}

// Compute prices a subtotal without any discount.
func Compute(subtotal decimal.Decimal) Snapshot {
	fee := Round2(subtotal.Mul(FeeRate))
	return Snapshot{
		Subtotal:           subtotal,
		TransactionFeeRate: FeeRate,
		TransactionFee:     fee,
		CouponDiscount:     decimal.Zero,
		FinalPayable:       nonNegative(Round2(subtotal.Add(fee))),
	}
}

// WithDiscount returns a copy carrying discount. The discount is clamped to
// [0, subtotal+fee] so FinalPayable never goes negative.
func (s Snapshot) WithDiscount(discount decimal.Decimal) Snapshot {
	gross := s.Subtotal.Add(s.TransactionFee)
	discount = Round2(discount)
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(gross) {
		discount = gross
	}
	s.CouponDiscount = discount
	s.FinalPayable = nonNegative(Round2(gross.Sub(discount)))
	return s
}

// WithoutDiscount removes any applied discount.
func (s Snapshot) WithoutDiscount() Snapshot {
	return s.WithDiscount(decimal.Zero)
}

// Matches reports whether other prices the order identically to s, comparing
// at cent precision.
func (s Snapshot) Matches(other Snapshot) bool {
	return Round2(s.Subtotal).Equal(Round2(other.Subtotal)) &&
		s.TransactionFee.Equal(Round2(other.TransactionFee)) &&
		s.CouponDiscount.Equal(Round2(other.CouponDiscount)) &&
		s.FinalPayable.Equal(Round2(other.FinalPayable))
}

// IsFree reports whether nothing is payable.
func (s Snapshot) IsFree() bool {
	return !s.FinalPayable.IsPositive()
}

// MinorUnits converts an amount to the smallest currency unit for gateways.
func MinorUnits(amount decimal.Decimal) int64 {
	return Round2(amount).Shift(2).IntPart()
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
