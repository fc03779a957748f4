package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wanderly-travel/service-checkout/internal/domain/cart"
)

// CartService handles cart storage and pricing.
type CartService struct {
	carts   cart.Repository
	coupons *CouponService
	logger  *zap.Logger
}

// NewCartService creates a new CartService.
func NewCartService(carts cart.Repository, coupons *CouponService, logger *zap.Logger) *CartService {
	return &CartService{carts: carts, coupons: coupons, logger: logger}
}

// Load returns the priced cart of owner. A cart that was never saved is
// empty.
func (s *CartService) Load(ctx context.Context, owner string) (*CartDTO, error) {
	o, err := cart.ParseOwner(owner)
	if err != nil {
		return nil, err
	}
	entries, err := s.carts.Load(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return toCartDTO(o, entries, cart.Aggregate(entries), nil), nil
}

// Save replaces the cart of owner.
func (s *CartService) Save(ctx context.Context, owner string, req SaveCartRequest) (*CartDTO, error) {
	o, err := cart.ParseOwner(owner)
	if err != nil {
		return nil, err
	}
	entries, err := toEntries(req.Items)
	if err != nil {
		return nil, err
	}
	if err := cart.CheckSize(entries); err != nil {
		return nil, err
	}

	if err := s.carts.Save(ctx, o, entries); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	return toCartDTO(o, entries, cart.Aggregate(entries), nil), nil
}

// Price prices the stored cart and, when code is given, previews the coupon
// against its subtotal.
func (s *CartService) Price(ctx context.Context, owner string, req PriceCartRequest) (*CartDTO, error) {
	o, err := cart.ParseOwner(owner)
	if err != nil {
		return nil, err
	}
	entries, err := s.carts.Load(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	snap := cart.Aggregate(entries)
	if req.CouponCode == "" {
		return toCartDTO(o, entries, snap, nil), nil
	}

	result, _, err := s.coupons.Evaluate(ctx, req.CouponCode, snap.Subtotal, cart.ProductRefs(entries))
	if err != nil {
		return nil, err
	}
	if result.Valid() {
		snap = snap.WithDiscount(result.Discount)
	}
	return toCartDTO(o, entries, snap, toPreviewDTO(result)), nil
}

// Merge folds a guest cart into the signed-in user's cart.
func (s *CartService) Merge(ctx context.Context, userID uuid.UUID, req MergeCartRequest) (*CartDTO, error) {
	guest, err := cart.ParseOwner(req.GuestOwner)
	if err != nil {
		return nil, err
	}
	if !guest.IsGuest() {
		return nil, cart.ErrInvalidOwner
	}

	user := cart.UserOwner(userID)
	merged, err := s.carts.Merge(ctx, guest, user)
	if err != nil {
		return nil, fmt.Errorf("merge cart: %w", err)
	}

	s.logger.Info("guest cart merged",
		zap.String("user_id", userID.String()),
		zap.Int("entries", len(merged)),
	)
	return toCartDTO(user, merged, cart.Aggregate(merged), nil), nil
}
