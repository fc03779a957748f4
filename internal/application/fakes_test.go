package application

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wanderly-travel/service-checkout/internal/adapter"
	"github.com/wanderly-travel/service-checkout/internal/domain/booking"
	"github.com/wanderly-travel/service-checkout/internal/domain/cart"
	"github.com/wanderly-travel/service-checkout/internal/domain/coupon"
	"github.com/wanderly-travel/service-checkout/internal/domain/payment"
	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
	"github.com/wanderly-travel/service-checkout/internal/platform/kafka"
	"github.com/wanderly-travel/service-checkout/internal/saga"
)

// --- bookings ---

type memBookings struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]*booking.Booking
	calls     int
	conflicts int // Save calls that fail as a taken reference
}

func newMemBookings() *memBookings { return &memBookings{rows: map[uuid.UUID]*booking.Booking{}} }

func copyBooking(b *booking.Booking) *booking.Booking {
	c := *b
	return &c
}

func (r *memBookings) Save(_ context.Context, b *booking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.conflicts > 0 {
		r.conflicts--
		return domainerr.NewConflictError("booking reference already exists")
	}
	r.rows[b.ID()] = copyBooking(b)
	return nil
}

func (r *memBookings) Update(_ context.Context, b *booking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	cur, ok := r.rows[b.ID()]
	if !ok || cur.Version() != b.Version()-1 {
		return domainerr.NewConflictError("booking was modified by another transaction")
	}
	r.rows[b.ID()] = copyBooking(b)
	return nil
}

func (r *memBookings) FindByID(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	b, ok := r.rows[id]
	if !ok {
		return nil, domainerr.NewNotFoundError("booking", id.String())
	}
	return copyBooking(b), nil
}

func (r *memBookings) FindByReference(_ context.Context, ref string) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.rows {
		if b.Reference() == ref {
			return copyBooking(b), nil
		}
	}
	return nil, domainerr.NewNotFoundError("booking", ref)
}

func (r *memBookings) List(_ context.Context, status booking.Status, page, limit int) ([]*booking.Booking, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*booking.Booking
	for _, b := range r.rows {
		if status == "" || b.Status() == status {
			out = append(out, copyBooking(b))
		}
	}
	return out, int64(len(out)), nil
}

// --- attempts ---

type memAttempts struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*payment.Attempt
}

func newMemAttempts() *memAttempts { return &memAttempts{rows: map[uuid.UUID]*payment.Attempt{}} }

func copyAttempt(a *payment.Attempt) *payment.Attempt {
	c := *a
	return &c
}

func (r *memAttempts) FindByID(_ context.Context, id uuid.UUID) (*payment.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, domainerr.NewNotFoundError("payment attempt", id.String())
	}
	return copyAttempt(a), nil
}

func (r *memAttempts) FindLiveByBookingID(_ context.Context, bookingID uuid.UUID) (*payment.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if a.BookingID() == bookingID && a.IsLive() {
			return copyAttempt(a), nil
		}
	}
	return nil, domainerr.NewNotFoundError("payment attempt", bookingID.String())
}

func (r *memAttempts) FindByExternalReference(_ context.Context, ref string) (*payment.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if ref != "" && a.ExternalReference() == ref {
			return copyAttempt(a), nil
		}
	}
	return nil, domainerr.NewNotFoundError("payment attempt", ref)
}

func (r *memAttempts) ListByBookingID(_ context.Context, bookingID uuid.UUID) ([]*payment.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*payment.Attempt
	for _, a := range r.rows {
		if a.BookingID() == bookingID {
			out = append(out, copyAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	return out, nil
}

func (r *memAttempts) Save(_ context.Context, a *payment.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.rows {
		if other.BookingID() == a.BookingID() && other.IsLive() {
			return domainerr.NewConflictError("booking already has a live payment attempt")
		}
	}
	r.rows[a.ID()] = copyAttempt(a)
	return nil
}

func (r *memAttempts) Update(_ context.Context, a *payment.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[a.ID()]
	if !ok || cur.Version() != a.Version()-1 {
		return domainerr.NewConflictError("payment attempt was modified by another transaction")
	}
	r.rows[a.ID()] = copyAttempt(a)
	return nil
}

func (r *memAttempts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// --- coupons ---

type memCoupons struct {
	mu     sync.Mutex
	rows   map[string]*coupon.Coupon
	usages map[[2]uuid.UUID]coupon.Usage
	calls  int
}

func newMemCoupons(cs ...*coupon.Coupon) *memCoupons {
	r := &memCoupons{rows: map[string]*coupon.Coupon{}, usages: map[[2]uuid.UUID]coupon.Usage{}}
	for _, c := range cs {
		r.rows[c.Code()] = c
	}
	return r
}

func (r *memCoupons) Save(_ context.Context, c *coupon.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[c.Code()]; ok {
		return domainerr.NewConflictError("coupon code already exists")
	}
	r.rows[c.Code()] = c
	return nil
}

func (r *memCoupons) Update(_ context.Context, c *coupon.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[c.Code()] = c
	return nil
}

func (r *memCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	c, ok := r.rows[coupon.NormalizeCode(code)]
	if !ok {
		return nil, domainerr.NewNotFoundError("coupon", code)
	}
	return reload(c, c.CurrentUses()), nil
}

func (r *memCoupons) FindActive(_ context.Context, now time.Time) ([]*coupon.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*coupon.Coupon
	for _, c := range r.rows {
		if c.IsActive() && !c.IsExpired(now) && !c.IsExhausted() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code() < out[j].Code() })
	return out, nil
}

func (r *memCoupons) List(_ context.Context, page, limit int) ([]*coupon.Coupon, int64, error) {
	out, _ := r.FindActive(context.Background(), testNow)
	return out, int64(len(out)), nil
}

func (r *memCoupons) Consume(_ context.Context, u coupon.Usage) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]uuid.UUID{u.CouponID, u.BookingID}
	if _, ok := r.usages[key]; ok {
		return false, nil
	}
	r.usages[key] = u
	for code, c := range r.rows {
		if c.ID() == u.CouponID {
			r.rows[code] = reload(c, c.CurrentUses()+1)
		}
	}
	return true, nil
}

func (r *memCoupons) uses(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[code].CurrentUses()
}

func reload(c *coupon.Coupon, uses int) *coupon.Coupon {
	return coupon.Reconstitute(
		c.ID(), c.Code(), c.DiscountType(), c.DiscountValue(), c.MinOrderAmount(),
		c.MaxDiscountAmount(), c.ValidFrom(), c.ExpiryDate(), c.TotalUsageLimit(), uses,
		c.ApplicableProductRefs(), c.IsActive(), c.CreatedBy(), c.CreatedAt(), c.UpdatedAt(),
	)
}

// --- carts ---

type memCarts struct {
	mu    sync.Mutex
	rows  map[cart.Owner][]cart.Entry
	calls int
}

func newMemCarts() *memCarts { return &memCarts{rows: map[cart.Owner][]cart.Entry{}} }

func (r *memCarts) Load(_ context.Context, o cart.Owner) ([]cart.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.rows[o], nil
}

func (r *memCarts) Save(_ context.Context, o cart.Owner, entries []cart.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.rows[o] = entries
	return nil
}

func (r *memCarts) Clear(_ context.Context, o cart.Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	delete(r.rows, o)
	return nil
}

func (r *memCarts) Merge(_ context.Context, guest, user cart.Owner) ([]cart.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	merged := cart.Merge(r.rows[user], r.rows[guest])
	r.rows[user] = merged
	delete(r.rows, guest)
	return merged, nil
}

// --- coordination ---

type memGuard struct {
	mu       sync.Mutex
	inFlight map[string]bool
	done     map[string]uuid.UUID
	calls    int
}

func newMemGuard() *memGuard {
	return &memGuard{inFlight: map[string]bool{}, done: map[string]uuid.UUID{}}
}

func (g *memGuard) Begin(_ context.Context, key string) (uuid.UUID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if id, ok := g.done[key]; ok {
		return id, nil
	}
	if g.inFlight[key] {
		return uuid.Nil, ErrSubmissionInFlight
	}
	g.inFlight[key] = true
	return uuid.Nil, nil
}

func (g *memGuard) Complete(_ context.Context, key string, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.done[key] = id
	delete(g.inFlight, key)
	return nil
}

func (g *memGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, key)
	return nil
}

type memCache struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*BookingDTO
}

func newMemCache() *memCache { return &memCache{rows: map[uuid.UUID]*BookingDTO{}} }

func (c *memCache) Get(_ context.Context, id uuid.UUID) (*BookingDTO, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dto, ok := c.rows[id]
	return dto, ok
}

func (c *memCache) Set(_ context.Context, dto *BookingDTO) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[dto.ID] = dto
}

func (c *memCache) Invalidate(_ context.Context, id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rows, id)
}

type directUOW struct{}

func (directUOW) Do(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.CloudEvent
}

func (p *recordingPublisher) PublishEvent(_ context.Context, _ string, ce kafka.CloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ce)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// --- fixture ---

type env struct {
	bookings   *memBookings
	attempts   *memAttempts
	coupons    *memCoupons
	carts      *memCarts
	guard      *memGuard
	cache      *memCache
	events     *recordingPublisher
	gateway    *adapter.MockGateway
	couponSvc  *CouponService
	cartSvc    *CartService
	bookingSvc *BookingService
	paymentSvc *PaymentService
	reconciler *ReconcilerService
}

var testNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func newEnv(cs ...*coupon.Coupon) *env {
	logger := zap.NewNop()
	e := &env{
		bookings: newMemBookings(),
		attempts: newMemAttempts(),
		coupons:  newMemCoupons(cs...),
		carts:    newMemCarts(),
		guard:    newMemGuard(),
		cache:    newMemCache(),
		events:   &recordingPublisher{},
		gateway:  adapter.NewMockGateway("http://pay.test/checkout", false, logger),
	}
	e.couponSvc = NewCouponService(e.coupons, logger)
	e.couponSvc.now = func() time.Time { return testNow }
	e.cartSvc = NewCartService(e.carts, e.couponSvc, logger)
	e.bookingSvc = NewBookingService(e.bookings, e.carts, e.couponSvc, e.guard, e.cache, directUOW{}, e.events, "USD", logger)
	sagaSvc := saga.NewCheckoutSagaService(e.attempts, e.bookings, e.gateway, directUOW{}, e.events, "USD", time.Second, logger)
	e.paymentSvc = NewPaymentService(e.bookings, e.attempts, sagaSvc, e.cache, logger)
	e.reconciler = NewReconcilerService(e.bookings, e.attempts, e.couponSvc, e.gateway, directUOW{}, e.events, e.cache, time.Second, logger)
	return e
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func save10(t *testing.T, limit *int) *coupon.Coupon {
	t.Helper()
	c, err := coupon.NewCoupon(coupon.NewCouponParams{
		Code:            "SAVE10",
		DiscountType:    coupon.DiscountPercentage,
		DiscountValue:   decimal.NewFromInt(10),
		MinOrderAmount:  decimal.NewFromInt(200),
		ExpiryDate:      testNow.AddDate(0, 1, 0),
		TotalUsageLimit: limit,
	})
	if err != nil {
		t.Fatalf("coupon: %v", err)
	}
	return c
}

// scenarioItems is Scenario A's cart: 2 adults at 100 and 1 child at 50.
func scenarioItems() []CartItemRequest {
	return []CartItemRequest{{
		ProductRef:     "tour-bali-sunrise",
		ProductKind:    "tour",
		Title:          "Bali sunrise trek",
		Date:           "2026-12-01",
		AdultCount:     2,
		ChildCount:     1,
		AdultUnitPrice: dec("100"),
		ChildUnitPrice: dec("50"),
	}}
}

func tourRequest() CreateBookingRequest {
	return CreateBookingRequest{
		Kind:    "tour",
		Contact: booking.Contact{Name: "Ana Silva", Email: "Ana@Example.com", Phone: "+6281234567"},
		Items:   scenarioItems(),
	}
}

var bookingTour = booking.TourDetails{PickupLocation: "Hotel Kuta Beach", DropLocation: "Ngurah Rai airport"}
