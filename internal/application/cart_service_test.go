package application

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderly-travel/service-checkout/internal/domain/cart"
	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
)

const guest = "guest:browser-token-1"

func TestCartSaveAndPrice(t *testing.T) {
	e := newEnv(save10(t, nil))

	saved, err := e.cartSvc.Save(context.Background(), guest, SaveCartRequest{Items: scenarioItems()})
	require.NoError(t, err)
	assert.True(t, saved.Pricing.FinalPayable.Equal(decimal.RequireFromString("259.38")))

	loaded, err := e.cartSvc.Load(context.Background(), guest)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, "2026-12-01", loaded.Items[0].Date)
	assert.True(t, loaded.Items[0].LineTotal.Equal(decimal.NewFromInt(250)))

	priced, err := e.cartSvc.Price(context.Background(), guest, PriceCartRequest{CouponCode: "SAVE10"})
	require.NoError(t, err)
	require.NotNil(t, priced.Coupon)
	assert.True(t, priced.Coupon.Valid)
	assert.True(t, priced.Pricing.CouponDiscount.Equal(decimal.NewFromInt(25)))
	assert.True(t, priced.Pricing.FinalPayable.Equal(decimal.RequireFromString("234.38")))
}

func TestCartPrice_RejectedCouponKeepsFullPrice(t *testing.T) {
	e := newEnv()
	_, err := e.cartSvc.Save(context.Background(), guest, SaveCartRequest{Items: scenarioItems()})
	require.NoError(t, err)

	priced, err := e.cartSvc.Price(context.Background(), guest, PriceCartRequest{CouponCode: "EXPIRED1"})

	require.NoError(t, err)
	assert.False(t, priced.Coupon.Valid)
	assert.True(t, priced.Pricing.CouponDiscount.IsZero())
	assert.True(t, priced.Pricing.FinalPayable.Equal(decimal.RequireFromString("259.38")))
}

func TestCartSave_MissingPriceRejected(t *testing.T) {
	e := newEnv()
	items := scenarioItems()
	items[0].ChildUnitPrice = nil

	_, err := e.cartSvc.Save(context.Background(), guest, SaveCartRequest{Items: items})

	assert.Equal(t, "missing_price", domainerr.Code(err))
	assert.Empty(t, e.carts.rows)
}

func TestCartSave_InvalidOwnerAndDate(t *testing.T) {
	e := newEnv()

	_, err := e.cartSvc.Save(context.Background(), "robot:1", SaveCartRequest{Items: scenarioItems()})
	assert.ErrorIs(t, err, cart.ErrInvalidOwner)

	items := scenarioItems()
	items[0].Date = "01/12/2026"
	_, err = e.cartSvc.Save(context.Background(), guest, SaveCartRequest{Items: items})
	assert.Equal(t, "invalid_date", domainerr.Code(err))
}

func TestCartMerge_UserEntriesWin(t *testing.T) {
	e := newEnv()
	userID := uuid.New()
	userOwner := cart.UserOwner(userID).String()

	userItems := scenarioItems()
	userItems[0].AdultCount = 4
	_, err := e.cartSvc.Save(context.Background(), userOwner, SaveCartRequest{Items: userItems})
	require.NoError(t, err)

	guestItems := append(scenarioItems(), CartItemRequest{
		ProductRef: "tour-lombok", ProductKind: "tour", Date: "2026-12-05",
		AdultCount: 1, AdultUnitPrice: dec("70"),
	})
	_, err = e.cartSvc.Save(context.Background(), guest, SaveCartRequest{Items: guestItems})
	require.NoError(t, err)

	merged, err := e.cartSvc.Merge(context.Background(), userID, MergeCartRequest{GuestOwner: guest})
	require.NoError(t, err)

	require.Len(t, merged.Items, 2)
	assert.Equal(t, 4, merged.Items[0].AdultCount)
	assert.Equal(t, "tour-lombok", merged.Items[1].ProductRef)
	assert.Equal(t, userOwner, merged.Owner)

	left, err := e.cartSvc.Load(context.Background(), guest)
	require.NoError(t, err)
	assert.Empty(t, left.Items)
}

func TestCartMerge_RequiresGuestSource(t *testing.T) {
	e := newEnv()
	_, err := e.cartSvc.Merge(context.Background(), uuid.New(), MergeCartRequest{GuestOwner: cart.UserOwner(uuid.New()).String()})
	assert.ErrorIs(t, err, cart.ErrInvalidOwner)
}
