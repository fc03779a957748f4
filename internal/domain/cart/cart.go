package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wanderly-travel/service-checkout/internal/domain/pricing"
	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
)

// Owner is the storage key of a cart: "guest:<token>" or "user:<uuid>".
type Owner string

var ErrInvalidOwner = domainerr.NewValidationError("invalid_owner", "cart owner must be guest:<token> or user:<uuid>")

// GuestOwner returns the owner for an anonymous browser token.
func GuestOwner(token string) Owner { return Owner("guest:" + token) }

// UserOwner returns the owner for a signed-in user.
func UserOwner(id uuid.UUID) Owner { return Owner("user:" + id.String()) }

// ParseOwner validates s.
func ParseOwner(s string) (Owner, error) {
	prefix, rest, ok := strings.Cut(s, ":")
	if !ok || rest == "" {
		return "", ErrInvalidOwner
	}
	switch prefix {
	case "guest":
		if len(rest) < 8 || len(rest) > 128 {
			return "", ErrInvalidOwner
		}
	case "user":
		if _, err := uuid.Parse(rest); err != nil {
			return "", ErrInvalidOwner
		}
	default:
		return "", ErrInvalidOwner
	}
	return Owner(s), nil
}

// IsGuest reports whether o is an anonymous cart.
func (o Owner) IsGuest() bool { return strings.HasPrefix(string(o), "guest:") }

func (o Owner) String() string { return string(o) }

// Subtotal sums line totals without intermediate rounding.
func Subtotal(entries []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.LineTotal())
	}
	return total
}

// Aggregate prices entries. An empty cart prices to zero.
func Aggregate(entries []Entry) pricing.Snapshot {
	return pricing.Compute(Subtotal(entries))
}

// NeedsPickup reports whether any entry requires a pickup/drop location.
func NeedsPickup(entries []Entry) bool {
	for _, e := range entries {
		if e.PickupRequired() {
			return true
		}
	}
	return false
}

// ProductRefs lists the distinct product references in cart order.
func ProductRefs(entries []Entry) []string {
	seen := make(map[string]struct{}, len(entries))
	refs := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.ProductRef()]; ok {
			continue
		}
		seen[e.ProductRef()] = struct{}{}
		refs = append(refs, e.ProductRef())
	}
	return refs
}

// Merge combines a signed-in user's cart with the guest cart they built
// before logging in. The user's entries win on a (product, date) conflict;
// remaining guest entries are appended in guest order.
func Merge(user, guest []Entry) []Entry {
	merged := make([]Entry, 0, len(user)+len(guest))
	seen := make(map[string]struct{}, len(user)+len(guest))
	for _, e := range user {
		merged = append(merged, e)
		seen[e.Key()] = struct{}{}
	}
	for _, e := range guest {
		if _, ok := seen[e.Key()]; ok {
			continue
		}
		merged = append(merged, e)
		seen[e.Key()] = struct{}{}
	}
	return merged
}

// MaxEntries bounds the number of lines a cart may hold.
const MaxEntries = 50

// CheckSize rejects oversized carts.
func CheckSize(entries []Entry) error {
	if len(entries) > MaxEntries {
		return domainerr.NewValidationError("cart_too_large", fmt.Sprintf("a cart holds at most %d entries", MaxEntries))
	}
	return nil
}

// Repository stores carts between page loads.
type Repository interface {
	Load(ctx context.Context, owner Owner) ([]Entry, error)
	Save(ctx context.Context, owner Owner, entries []Entry) error
	Clear(ctx context.Context, owner Owner) error
	// Merge folds the guest cart into the user cart, persists the result and
	// clears the guest cart.
	Merge(ctx context.Context, guest, user Owner) ([]Entry, error)
}
