package coupon

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository defines persistence operations for coupons.
type Repository interface {
	Save(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	// FindByCode matches case-insensitively and returns a not-found
	// DomainError when nothing matches.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// FindActive returns active, in-window, non-exhausted coupons.
	FindActive(ctx context.Context, now time.Time) ([]*Coupon, error)
	List(ctx context.Context, page, limit int) ([]*Coupon, int64, error)
	// Consume records usage and advances the counter atomically. It reports
	// false without error when the booking already consumed the coupon.
	Consume(ctx context.Context, usage Usage) (bool, error)
}

// Usage is one confirmed booking's redemption of a coupon.
type Usage struct {
	ID        uuid.UUID
	CouponID  uuid.UUID
	BookingID uuid.UUID
	Discount  decimal.Decimal
	UsedAt    time.Time
}

// NewUsage creates a Usage stamped now.
func NewUsage(couponID, bookingID uuid.UUID, discount decimal.Decimal) Usage {
	return Usage{
		ID:        uuid.New(),
		CouponID:  couponID,
		BookingID: bookingID,
		Discount:  discount,
		UsedAt:    time.Now().UTC(),
	}
}
