package cart

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
)

// ProductKind identifies the catalog a product belongs to.
type ProductKind string

const (
	ProductTour ProductKind = "tour"
	ProductVisa ProductKind = "visa"
)

// PriceKind separates promotional free items from regular priced ones.
type PriceKind string

const (
	Priced PriceKind = "priced"
	Free   PriceKind = "free"
)

// DateLayout is the wire format of an entry's travel date.
const DateLayout = "2006-01-02"

var (
	ErrMissingProduct     = domainerr.NewValidationError("invalid_entry", "product reference is required")
	ErrUnknownProductKind = domainerr.NewValidationError("invalid_entry", "product kind must be tour or visa")
	ErrMissingDate        = domainerr.NewValidationError("invalid_entry", "travel date is required")
	ErrNegativeCount      = domainerr.NewValidationError("invalid_entry", "guest counts cannot be negative")
	ErrNoGuests           = domainerr.NewValidationError("no_guests", "an entry needs at least one guest")
	ErrUnknownPriceKind   = domainerr.NewValidationError("invalid_entry", "price kind must be priced or free")
	ErrMissingPrice       = domainerr.NewValidationError("missing_price", "a unit price is required for every guest category booked")
	ErrNegativePrice      = domainerr.NewValidationError("invalid_entry", "unit prices cannot be negative")
	ErrSubCentPrice       = domainerr.NewValidationError("invalid_entry", "unit prices cannot have more than 2 decimal places")
	ErrPricedFreeEntry    = domainerr.NewValidationError("invalid_entry", "a free entry cannot carry a price")
)

// EntryInput is the raw, possibly incomplete, line item as submitted by a
// client. Nil prices mean the client sent none.
type EntryInput struct {
	ProductRef     string
	ProductKind    ProductKind
	Title          string
	Date           time.Time
	AdultCount     int
	ChildCount     int
	PriceKind      PriceKind
	AdultUnitPrice *decimal.Decimal
	ChildUnitPrice *decimal.Decimal
	PickupRequired bool
}

// Entry is one normalized cart line.
type Entry struct {
	productRef     string
	productKind    ProductKind
	title          string
	date           time.Time
	adultCount     int
	childCount     int
	priceKind      PriceKind
	adultUnitPrice decimal.Decimal
	childUnitPrice decimal.Decimal
	pickupRequired bool
}

// NewEntry validates in and returns a normalized Entry. A priced entry must
// carry a unit price for every guest category it books; a free entry must
// carry none.
func NewEntry(in EntryInput) (Entry, error) {
	ref := strings.TrimSpace(in.ProductRef)
	if ref == "" {
		return Entry{}, ErrMissingProduct
	}
	if in.ProductKind != ProductTour && in.ProductKind != ProductVisa {
		return Entry{}, ErrUnknownProductKind
	}
	if in.Date.IsZero() {
		return Entry{}, ErrMissingDate
	}
	if in.AdultCount < 0 || in.ChildCount < 0 {
		return Entry{}, ErrNegativeCount
	}
	if in.AdultCount+in.ChildCount < 1 {
		return Entry{}, ErrNoGuests
	}

	kind := in.PriceKind
	if kind == "" {
		kind = Priced
	}

	e := Entry{
		productRef:     ref,
		productKind:    in.ProductKind,
		title:          strings.TrimSpace(in.Title),
		date:           truncateDay(in.Date),
		adultCount:     in.AdultCount,
		childCount:     in.ChildCount,
		priceKind:      kind,
		adultUnitPrice: decimal.Zero,
		childUnitPrice: decimal.Zero,
		pickupRequired: in.PickupRequired,
	}

	switch kind {
	case Free:
		for _, p := range []*decimal.Decimal{in.AdultUnitPrice, in.ChildUnitPrice} {
			if p != nil && !p.IsZero() {
				return Entry{}, ErrPricedFreeEntry
			}
		}
	case Priced:
		adult, err := unitPrice(in.AdultUnitPrice, in.AdultCount)
		if err != nil {
			return Entry{}, err
		}
		child, err := unitPrice(in.ChildUnitPrice, in.ChildCount)
		if err != nil {
			return Entry{}, err
		}
		e.adultUnitPrice, e.childUnitPrice = adult, child
	default:
		return Entry{}, ErrUnknownPriceKind
	}

	return e, nil
}

func unitPrice(p *decimal.Decimal, count int) (decimal.Decimal, error) {
	if p == nil {
		if count > 0 {
			return decimal.Zero, ErrMissingPrice
		}
		return decimal.Zero, nil
	}
	if p.IsNegative() {
		return decimal.Zero, ErrNegativePrice
	}
	if !p.Equal(p.Round(2)) {
		return decimal.Zero, ErrSubCentPrice
	}
	return *p, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LineTotal is adultUnitPrice*adultCount + childUnitPrice*childCount at full
// precision.
func (e Entry) LineTotal() decimal.Decimal {
	adults := e.adultUnitPrice.Mul(decimal.NewFromInt(int64(e.adultCount)))
	children := e.childUnitPrice.Mul(decimal.NewFromInt(int64(e.childCount)))
	return adults.Add(children)
}

// Key identifies the line for merge purposes.
func (e Entry) Key() string {
	return e.productRef + "@" + e.date.Format(DateLayout)
}

func (e Entry) ProductRef() string              { return e.productRef }
func (e Entry) ProductKind() ProductKind        { return e.productKind }
func (e Entry) Title() string                   { return e.title }
func (e Entry) Date() time.Time                 { return e.date }
func (e Entry) AdultCount() int                 { return e.adultCount }
func (e Entry) ChildCount() int                 { return e.childCount }
func (e Entry) PriceKind() PriceKind            { return e.priceKind }
func (e Entry) AdultUnitPrice() decimal.Decimal { return e.adultUnitPrice }
func (e Entry) ChildUnitPrice() decimal.Decimal { return e.childUnitPrice }
func (e Entry) PickupRequired() bool            { return e.pickupRequired }
func (e Entry) IsFree() bool                    { return e.priceKind == Free }

// Reconstitute rebuilds an Entry from storage without re-validating it.
func Reconstitute(
	productRef string,
	productKind ProductKind,
	title string,
	date time.Time,
	adultCount, childCount int,
	priceKind PriceKind,
	adultUnitPrice, childUnitPrice decimal.Decimal,
	pickupRequired bool,
) Entry {
	return Entry{
		productRef:     productRef,
		productKind:    productKind,
		title:          title,
		date:           date,
		adultCount:     adultCount,
		childCount:     childCount,
		priceKind:      priceKind,
		adultUnitPrice: adultUnitPrice,
		childUnitPrice: childUnitPrice,
		pickupRequired: pickupRequired,
	}
}
