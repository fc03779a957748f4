package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

// RejectionReason explains why a code cannot be applied.
type RejectionReason string

const (
	ReasonEmptyCode     RejectionReason = "empty_code"
	ReasonNotFound      RejectionReason = "not_found"
	ReasonExpired       RejectionReason = "expired"
	ReasonLimitReached  RejectionReason = "limit_reached"
	ReasonBelowMinimum  RejectionReason = "below_minimum"
	ReasonNotApplicable RejectionReason = "not_applicable"
)

var reasonMessages = map[RejectionReason]string{
	ReasonEmptyCode:     "enter a coupon code",
	ReasonNotFound:      "coupon code not found",
	ReasonExpired:       "coupon has expired",
	ReasonLimitReached:  "coupon usage limit reached",
	ReasonBelowMinimum:  "order amount is below the coupon minimum",
	ReasonNotApplicable: "coupon does not apply to these products",
}

// Message is a user-facing description of r.
func (r RejectionReason) Message() string { return reasonMessages[r] }

// Result is the outcome of previewing a code against an order.
type Result struct {
	AppliedCode string
	Discount    decimal.Decimal
	Reason      RejectionReason
}

// Valid reports whether the code was accepted.
func (r Result) Valid() bool { return r.Reason == "" }

func rejected(reason RejectionReason) Result {
	return Result{Discount: decimal.Zero, Reason: reason}
}

// Preview runs the ordered eligibility checks for code against orderAmount.
// c is the looked-up coupon, nil when none matched. The first failing check
// wins. Preview never mutates c.
func Preview(c *Coupon, code string, orderAmount decimal.Decimal, productRefs []string, now time.Time) Result {
	if NormalizeCode(code) == "" {
		return rejected(ReasonEmptyCode)
	}
	if c == nil || !c.IsActive() {
		return rejected(ReasonNotFound)
	}
	if c.IsExpired(now) {
		return rejected(ReasonExpired)
	}
	if c.IsExhausted() {
		return rejected(ReasonLimitReached)
	}
	if orderAmount.LessThan(c.MinOrderAmount()) {
		return rejected(ReasonBelowMinimum)
	}
	if !c.AppliesTo(productRefs...) {
		return rejected(ReasonNotApplicable)
	}
	return Result{AppliedCode: c.Code(), Discount: c.Discount(orderAmount)}
}
