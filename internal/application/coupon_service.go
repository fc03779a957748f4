package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wanderly-travel/service-checkout/internal/domain/coupon"
	"github.com/wanderly-travel/service-checkout/internal/events"
	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
)

// CouponService handles coupon preview, consumption and the admin catalog.
type CouponService struct {
	repo   coupon.Repository
	now    func() time.Time
	logger *zap.Logger
}

// NewCouponService creates a new CouponService.
func NewCouponService(repo coupon.Repository, logger *zap.Logger) *CouponService {
	return &CouponService{repo: repo, now: time.Now, logger: logger}
}

// Preview checks a code against an order amount without side effects.
func (s *CouponService) Preview(ctx context.Context, req ApplyCouponRequest) (*CouponPreviewDTO, error) {
	var refs []string
	if ref := strings.TrimSpace(req.ProductRef); ref != "" {
		refs = []string{ref}
	}
	result, _, err := s.Evaluate(ctx, req.Code, req.OrderAmount, refs)
	if err != nil {
		return nil, err
	}
	return toPreviewDTO(result), nil
}

// Evaluate looks the code up and runs the eligibility checks. The coupon is
// returned when one matched, even if it was rejected.
func (s *CouponService) Evaluate(ctx context.Context, code string, orderAmount decimal.Decimal, productRefs []string) (coupon.Result, *coupon.Coupon, error) {
	now := s.now().UTC()
	if coupon.NormalizeCode(code) == "" {
		return coupon.Preview(nil, code, orderAmount, productRefs, now), nil, nil
	}

	c, err := s.repo.FindByCode(ctx, coupon.NormalizeCode(code))
	if err != nil {
		if !domainerr.IsNotFound(err) {
			return coupon.Result{}, nil, domainerr.NewUnavailableError("coupon_lookup_failed",
				"coupons cannot be checked right now", err)
		}
		c = nil
	}
	return coupon.Preview(c, code, orderAmount, productRefs, now), c, nil
}

// Catalog lists coupons a customer can currently use, optionally limited to
// those that apply to productRef.
func (s *CouponService) Catalog(ctx context.Context, productRef string) ([]CouponDTO, error) {
	coupons, err := s.repo.FindActive(ctx, s.now().UTC())
	if err != nil {
		return nil, err
	}

	productRef = strings.TrimSpace(productRef)
	dtos := make([]CouponDTO, 0, len(coupons))
	for _, c := range coupons {
		if productRef != "" && !c.AppliesTo(productRef) {
			continue
		}
		dtos = append(dtos, toCouponDTO(c))
	}
	return dtos, nil
}

// Consume records the coupon redemption for a confirmed booking. It must run
// inside the confirmation transaction. A repeated call for the same booking
// returns nil. A coupon whose limit was already reached is still recorded
// and flagged OverLimit.
func (s *CouponService) Consume(ctx context.Context, code string, bookingID uuid.UUID, discount decimal.Decimal) (*events.CouponConsumedEvent, error) {
	c, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if domainerr.IsNotFound(err) {
			s.logger.Warn("coupon on confirmed booking no longer exists",
				zap.String("code", code),
				zap.String("booking_id", bookingID.String()),
			)
			return nil, nil
		}
		return nil, fmt.Errorf("find coupon %s: %w", code, err)
	}

	overLimit := c.IsExhausted()
	consumed, err := s.repo.Consume(ctx, coupon.NewUsage(c.ID(), bookingID, discount))
	if err != nil {
		return nil, fmt.Errorf("consume coupon %s: %w", code, err)
	}
	if !consumed {
		return nil, nil
	}

	if overLimit {
		s.logger.Warn("coupon consumed beyond its usage limit",
			zap.String("code", c.Code()),
			zap.String("booking_id", bookingID.String()),
			zap.Int("current_uses", c.CurrentUses()),
		)
	}

	return &events.CouponConsumedEvent{
		CouponID:   c.ID(),
		Code:       c.Code(),
		BookingID:  bookingID,
		Discount:   discount,
		OverLimit:  overLimit,
		OccurredAt: s.now().UTC(),
	}, nil
}

// --- Admin methods ---

// Create creates a new coupon.
func (s *CouponService) Create(ctx context.Context, createdBy uuid.UUID, req CreateCouponRequest) (*CouponDTO, error) {
	c, err := coupon.NewCoupon(coupon.NewCouponParams{
		Code:                  req.Code,
		DiscountType:          coupon.DiscountType(strings.ToLower(req.DiscountType)),
		DiscountValue:         req.DiscountValue,
		MinOrderAmount:        req.MinOrderAmount,
		MaxDiscountAmount:     req.MaxDiscountAmount,
		ValidFrom:             req.ValidFrom,
		ExpiryDate:            req.ExpiryDate,
		TotalUsageLimit:       req.TotalUsageLimit,
		ApplicableProductRefs: req.ApplicableProductRefs,
		CreatedBy:             createdBy,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save coupon: %w", err)
	}

	s.logger.Info("coupon created", zap.String("code", c.Code()), zap.String("created_by", createdBy.String()))
	dto := toCouponDTO(c)
	return &dto, nil
}

// List returns a page of coupons, newest first.
func (s *CouponService) List(ctx context.Context, page, limit int) ([]CouponDTO, int64, error) {
	coupons, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}

	dtos := make([]CouponDTO, len(coupons))
	for i, c := range coupons {
		dtos[i] = toCouponDTO(c)
	}
	return dtos, total, nil
}

// Deactivate hides a coupon from checkout.
func (s *CouponService) Deactivate(ctx context.Context, code string) (*CouponDTO, error) {
	c, err := s.repo.FindByCode(ctx, coupon.NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	if err := c.Deactivate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update coupon: %w", err)
	}

	s.logger.Info("coupon deactivated", zap.String("code", c.Code()))
	dto := toCouponDTO(c)
	return &dto, nil
}
