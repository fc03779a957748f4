package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wanderly-travel/service-checkout/internal/domain/booking"
	"github.com/wanderly-travel/service-checkout/internal/domain/cart"
	"github.com/wanderly-travel/service-checkout/internal/domain/coupon"
	"github.com/wanderly-travel/service-checkout/internal/events"
	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
	"github.com/wanderly-travel/service-checkout/internal/platform/kafka"
	"github.com/wanderly-travel/service-checkout/internal/receipt"
)

// BookingService creates bookings and serves the booking views.
type BookingService struct {
	bookings  booking.Repository
	carts     cart.Repository
	coupons   *CouponService
	guard     SubmissionGuard
	cache     BookingCache
	uow       UnitOfWork
	publisher EventPublisher
	currency  string
	logger    *zap.Logger
}

// NewBookingService creates a new BookingService.
func NewBookingService(
	bookings booking.Repository,
	carts cart.Repository,
	coupons *CouponService,
	guard SubmissionGuard,
	cache BookingCache,
	uow UnitOfWork,
	publisher EventPublisher,
	currency string,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		bookings:  bookings,
		carts:     carts,
		coupons:   coupons,
		guard:     guard,
		cache:     cache,
		uow:       uow,
		publisher: publisher,
		currency:  currency,
		logger:    logger,
	}
}

// Create validates and re-prices a submission and stores it as a pending
// booking. submissionKey is the client's Idempotency-Key, scoped to the
// caller; a repeated key returns the first booking without re-pricing.
// Without a key the cart owner, or else a fingerprint of the submission,
// only guards against concurrent submits.
func (s *BookingService) Create(ctx context.Context, userID *uuid.UUID, submissionKey string, req CreateBookingRequest) (*CreateBookingResult, error) {
	if len(req.Items) == 0 {
		return nil, booking.ErrEmptyItems
	}

	entries, err := toEntries(req.Items)
	if err != nil {
		return nil, err
	}
	if err := cart.CheckSize(entries); err != nil {
		return nil, err
	}
	details, err := req.details()
	if err != nil {
		return nil, err
	}

	var owner cart.Owner
	if req.CartOwner != "" {
		if owner, err = cart.ParseOwner(req.CartOwner); err != nil {
			return nil, err
		}
	}

	params := booking.NewBookingParams{
		UserID:  userID,
		Contact: req.Contact,
		Details: details,
		Items:   entries,
	}
	if err := booking.ValidateSubmission(params); err != nil {
		return nil, err
	}

	// a finished key returns its booking without re-pricing
	key, remember := claimKey(userID, submissionKey, owner, req, entries)
	existingID, err := s.guard.Begin(ctx, key)
	if err != nil {
		return nil, err
	}
	if existingID != uuid.Nil {
		existing, err := s.bookings.FindByID(ctx, existingID)
		if err != nil {
			return nil, err
		}
		s.logger.Info("repeated booking submission", zap.String("booking_id", existingID.String()))
		return &CreateBookingResult{Booking: toBookingDTO(existing), Reused: true}, nil
	}

	b, err := s.create(ctx, params, req)
	if err != nil {
		if rerr := s.guard.Release(context.WithoutCancel(ctx), key); rerr != nil {
			s.logger.Warn("failed to release submission key", zap.Error(rerr))
		}
		return nil, err
	}

	if remember {
		if err := s.guard.Complete(ctx, key, b.ID()); err != nil {
			s.logger.Warn("failed to record submission key", zap.String("booking_id", b.ID().String()), zap.Error(err))
		}
	} else if err := s.guard.Release(ctx, key); err != nil {
		s.logger.Warn("failed to release submission key", zap.Error(err))
	}

	s.logger.Info("booking created",
		zap.String("booking_id", b.ID().String()),
		zap.String("reference", b.Reference()),
		zap.String("final_payable", b.Pricing().FinalPayable.String()),
	)

	s.publishCreated(ctx, b)
	s.clearCart(ctx, owner, userID)

	return &CreateBookingResult{Booking: toBookingDTO(b)}, nil
}

// create prices the submission on the server, re-checks its coupon and
// stores the booking with its item snapshot.
func (s *BookingService) create(ctx context.Context, params booking.NewBookingParams, req CreateBookingRequest) (*booking.Booking, error) {
	snap := cart.Aggregate(params.Items)
	if strings.TrimSpace(req.CouponCode) != "" {
		result, _, err := s.coupons.Evaluate(ctx, req.CouponCode, snap.Subtotal, cart.ProductRefs(params.Items))
		if err != nil {
			return nil, err
		}
		if !result.Valid() {
			return nil, domainerr.NewValidationError("coupon_rejected", result.Reason.Message())
		}
		snap = snap.WithDiscount(result.Discount)
		params.CouponCode = result.AppliedCode
	}
	if req.Pricing != nil && !snap.Matches(*req.Pricing) {
		s.logger.Info("client pricing is stale",
			zap.String("client_final", req.Pricing.FinalPayable.String()),
			zap.String("server_final", snap.FinalPayable.String()),
		)
		return nil, ErrPricingMismatch
	}
	params.Pricing = snap

	for attempt := 1; ; attempt++ {
		b, err := booking.NewBooking(params)
		if err != nil {
			return nil, err
		}
		err = s.uow.Do(ctx, func(ctx context.Context) error {
			return s.bookings.Save(ctx, b)
		})
		if err == nil {
			return b, nil
		}
		if isConflict(err) && attempt < maxReferenceAttempts {
			s.logger.Warn("booking reference taken, retrying with a new id", zap.String("reference", b.Reference()))
			continue
		}
		s.logger.Error("failed to save booking", zap.Error(err))
		return nil, bookingFailed(err)
	}
}

const maxReferenceAttempts = 3

// claimKey scopes a client key to the caller so two customers sending the
// same key never share a booking. Only client keys are remembered once the
// booking exists.
func claimKey(userID *uuid.UUID, submissionKey string, owner cart.Owner, req CreateBookingRequest, entries []cart.Entry) (string, bool) {
	scope := "email:" + strings.ToLower(strings.TrimSpace(req.Contact.Email))
	if userID != nil {
		scope = "user:" + userID.String()
	}
	switch {
	case submissionKey != "":
		return "key:" + scope + ":" + submissionKey, true
	case owner != "":
		return "owner:" + owner.String(), false
	default:
		return "submission:" + scope + ":" + fingerprint(req, entries), false
	}
}

// fingerprint hashes what a double-clicked submit repeats verbatim.
func fingerprint(req CreateBookingRequest, entries []cart.Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|", strings.ToLower(req.Kind), coupon.NormalizeCode(req.CouponCode))
	for _, e := range entries {
		fmt.Fprintf(h, "%s|%d|%d|%s|%s|%s;", e.Key(), e.AdultCount(), e.ChildCount(),
			e.PriceKind(), e.AdultUnitPrice().String(), e.ChildUnitPrice().String())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// clearCart empties the cart the booking was built from. A user cart is only
// cleared for its own user.
func (s *BookingService) clearCart(ctx context.Context, owner cart.Owner, userID *uuid.UUID) {
	if owner == "" {
		return
	}
	if !owner.IsGuest() && (userID == nil || cart.UserOwner(*userID) != owner) {
		s.logger.Warn("cart owner does not match the caller, cart kept", zap.String("owner", owner.String()))
		return
	}
	if err := s.carts.Clear(ctx, owner); err != nil {
		s.logger.Warn("failed to clear cart", zap.String("owner", owner.String()), zap.Error(err))
	}
}

func (s *BookingService) publishCreated(ctx context.Context, b *booking.Booking) {
	payload := events.BookingCreatedEvent{
		BookingID:    b.ID(),
		Reference:    b.Reference(),
		Kind:         string(b.Kind()),
		ContactEmail: b.Contact().Email,
		ItemCount:    len(b.Items()),
		FinalPayable: b.Pricing().FinalPayable,
		OccurredAt:   time.Now().UTC(),
	}
	if b.CouponCode() != nil {
		payload.CouponCode = *b.CouponCode()
	}
	ce, err := kafka.NewCloudEvent(events.Source, events.BookingCreated, payload)
	if err != nil {
		s.logger.Error("failed to create cloud event", zap.Error(err))
		return
	}
	if err := s.publisher.PublishEvent(ctx, events.TopicCheckoutEvents, ce.WithSubject(b.ID().String())); err != nil {
		s.logger.Error("failed to publish booking created event", zap.Error(err))
	}
}

// Get returns a booking by id. Only confirmed and cancelled views are
// cached.
func (s *BookingService) Get(ctx context.Context, id uuid.UUID) (*BookingDTO, error) {
	if dto, ok := s.cache.Get(ctx, id); ok {
		return dto, nil
	}

	b, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toBookingDTO(b)
	// a pending view may already be stale by the time it is written
	if b.Status().IsTerminal() {
		s.cache.Set(ctx, dto)
	}
	return dto, nil
}

// Lookup returns a booking to a guest who proves ownership with the contact
// email. A mismatch is reported as not found.
func (s *BookingService) Lookup(ctx context.Context, id uuid.UUID, email string) (*BookingDTO, error) {
	dto, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(email) == "" || !strings.EqualFold(strings.TrimSpace(email), dto.Contact.Email) {
		return nil, domainerr.NewNotFoundError("booking", id.String())
	}
	return dto, nil
}

// Receipt renders the PDF receipt of a confirmed booking after the same
// ownership check as Lookup.
func (s *BookingService) Receipt(ctx context.Context, id uuid.UUID, email string) ([]byte, string, error) {
	b, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !b.OwnedBy(email) {
		return nil, "", domainerr.NewNotFoundError("booking", id.String())
	}
	if b.Status() != booking.StatusConfirmed {
		return nil, "", ErrReceiptUnavailable
	}

	pdf, err := receipt.Render(b, s.currency, time.Now())
	if err != nil {
		return nil, "", err
	}
	return pdf, receipt.Filename(b), nil
}

// --- Admin methods ---

// List returns a page of bookings, newest first. status may be empty.
func (s *BookingService) List(ctx context.Context, status string, page, limit int) ([]BookingDTO, int64, error) {
	st := booking.Status(strings.ToLower(status))
	switch st {
	case "", booking.StatusPending, booking.StatusConfirmed, booking.StatusCancelled:
	default:
		return nil, 0, domainerr.NewValidationError("invalid_status", "unknown booking status")
	}

	bookings, total, err := s.bookings.List(ctx, st, page, limit)
	if err != nil {
		return nil, 0, err
	}

	dtos := make([]BookingDTO, len(bookings))
	for i, b := range bookings {
		dtos[i] = *toBookingDTO(b)
	}
	return dtos, total, nil
}
