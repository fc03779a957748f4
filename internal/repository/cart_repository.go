package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/wanderly-travel/service-checkout/internal/domain/cart"
	"github.com/wanderly-travel/service-checkout/internal/platform/cache"
)

// cartLine is the stored form of a cart.Entry.
type cartLine struct {
	ProductRef     string          `json:"product_ref"`
	ProductKind    string          `json:"product_kind"`
	Title          string          `json:"title,omitempty"`
	Date           time.Time       `json:"date"`
	AdultCount     int             `json:"adult_count"`
	ChildCount     int             `json:"child_count"`
	PriceKind      string          `json:"price_kind"`
	AdultUnitPrice decimal.Decimal `json:"adult_unit_price"`
	ChildUnitPrice decimal.Decimal `json:"child_unit_price"`
	PickupRequired bool            `json:"pickup_required,omitempty"`
}

// RedisCartRepository implements cart.Repository on Redis. Each cart is one
// JSON value under cart:{owner} with a sliding 30-day TTL.
type RedisCartRepository struct {
	rdb *redis.Client
}

// NewRedisCartRepository creates a RedisCartRepository.
func NewRedisCartRepository(rdb *redis.Client) *RedisCartRepository {
	return &RedisCartRepository{rdb: rdb}
}

// Load returns the entries of owner, or nil when the cart does not exist.
func (r *RedisCartRepository) Load(ctx context.Context, owner cart.Owner) ([]cart.Entry, error) {
	return loadCart(ctx, r.rdb, cartKey(owner))
}

// Save replaces the cart of owner. An empty cart deletes the key.
func (r *RedisCartRepository) Save(ctx context.Context, owner cart.Owner, entries []cart.Entry) error {
	if len(entries) == 0 {
		return r.Clear(ctx, owner)
	}
	raw, err := encodeCart(entries)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, cartKey(owner), raw, cache.TTLCart).Err()
}

// Clear deletes the cart of owner.
func (r *RedisCartRepository) Clear(ctx context.Context, owner cart.Owner) error {
	return r.rdb.Del(ctx, cartKey(owner)).Err()
}

// Merge folds the guest cart into the user cart under WATCH so a concurrent
// write to either key aborts and retries the merge.
func (r *RedisCartRepository) Merge(ctx context.Context, guest, user cart.Owner) ([]cart.Entry, error) {
	guestKey, userKey := cartKey(guest), cartKey(user)

	var merged []cart.Entry
	txf := func(tx *redis.Tx) error {
		guestEntries, err := loadCart(ctx, tx, guestKey)
		if err != nil {
			return err
		}
		userEntries, err := loadCart(ctx, tx, userKey)
		if err != nil {
			return err
		}

		merged = cart.Merge(userEntries, guestEntries)
		raw, err := encodeCart(merged)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(merged) > 0 {
				pipe.Set(ctx, userKey, raw, cache.TTLCart)
			}
			pipe.Del(ctx, guestKey)
			return nil
		})
		return err
	}

	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, guestKey, userKey)
		if err == nil {
			return merged, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, fmt.Errorf("merge carts: %w", err)
		}
	}
	return nil, fmt.Errorf("merge carts: %w", redis.TxFailedErr)
}

func cartKey(owner cart.Owner) string {
	return cache.Key(cache.KeyCart, owner.String())
}

func loadCart(ctx context.Context, c redis.Cmdable, key string) ([]cart.Entry, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var lines []cartLine
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", key, err)
	}

	entries := make([]cart.Entry, len(lines))
	for i, l := range lines {
		entries[i] = cart.Reconstitute(
			l.ProductRef, cart.ProductKind(l.ProductKind), l.Title, l.Date,
			l.AdultCount, l.ChildCount, cart.PriceKind(l.PriceKind),
			l.AdultUnitPrice, l.ChildUnitPrice, l.PickupRequired,
		)
	}
	return entries, nil
}

func encodeCart(entries []cart.Entry) ([]byte, error) {
	lines := make([]cartLine, len(entries))
	for i, e := range entries {
		lines[i] = cartLine{
			ProductRef:     e.ProductRef(),
			ProductKind:    string(e.ProductKind()),
			Title:          e.Title(),
			Date:           e.Date(),
			AdultCount:     e.AdultCount(),
			ChildCount:     e.ChildCount(),
			PriceKind:      string(e.PriceKind()),
			AdultUnitPrice: e.AdultUnitPrice(),
			ChildUnitPrice: e.ChildUnitPrice(),
			PickupRequired: e.PickupRequired(),
		}
	}
	return json.Marshal(lines)
}
