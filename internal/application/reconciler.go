package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wanderly-travel/service-checkout/internal/adapter"
	"github.com/wanderly-travel/service-checkout/internal/domain/booking"
	"github.com/wanderly-travel/service-checkout/internal/domain/payment"
	"github.com/wanderly-travel/service-checkout/internal/events"
	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
	"github.com/wanderly-travel/service-checkout/internal/platform/kafka"
)

// ReconcilerService moves bookings through pending -> confirmed | cancelled
// in response to payment signals. Every transition is idempotent.
type ReconcilerService struct {
	bookings       booking.Repository
	attempts       payment.AttemptRepository
	coupons        *CouponService
	gateway        adapter.PaymentGateway
	uow            UnitOfWork
	publisher      EventPublisher
	cache          BookingCache
	gatewayTimeout time.Duration
	logger         *zap.Logger
}

// NewReconcilerService creates a new ReconcilerService.
func NewReconcilerService(
	bookings booking.Repository,
	attempts payment.AttemptRepository,
	coupons *CouponService,
	gateway adapter.PaymentGateway,
	uow UnitOfWork,
	publisher EventPublisher,
	cache BookingCache,
	gatewayTimeout time.Duration,
	logger *zap.Logger,
) *ReconcilerService {
	return &ReconcilerService{
		bookings:       bookings,
		attempts:       attempts,
		coupons:        coupons,
		gateway:        gateway,
		uow:            uow,
		publisher:      publisher,
		cache:          cache,
		gatewayTimeout: gatewayTimeout,
		logger:         logger,
	}
}

// Confirm settles a booking when there is evidence of payment: an
// immediate-confirm attempt, or a gateway session reported paid. Without
// evidence the booking is returned unchanged, still pending. Confirming a
// confirmed booking returns it as is.
func (s *ReconcilerService) Confirm(ctx context.Context, bookingID uuid.UUID) (*BookingDTO, error) {
	b, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	switch b.Status() {
	case booking.StatusConfirmed:
		return toBookingDTO(b), nil
	case booking.StatusCancelled:
		return nil, domainerr.NewInvalidStateError(string(b.Status()), string(booking.StatusConfirmed))
	}

	a, err := s.attempts.FindLiveByBookingID(ctx, b.ID())
	if err != nil {
		if domainerr.IsNotFound(err) {
			return toBookingDTO(b), nil
		}
		return nil, err
	}

	if a.Status() == payment.StatusSucceeded || a.Outcome() == payment.OutcomeImmediateConfirm {
		return s.confirm(ctx, b, a)
	}
	if a.Outcome() != payment.OutcomeRedirect {
		return toBookingDTO(b), nil
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	state, err := s.gateway.SessionStatus(gctx, a.ExternalReference())
	cancel()
	if err != nil {
		s.logger.Warn("gateway status unavailable, booking stays pending",
			zap.String("booking_id", b.ID().String()),
			zap.String("session_id", a.ExternalReference()),
			zap.Error(err),
		)
		return toBookingDTO(b), nil
	}

	switch state {
	case adapter.SessionPaid:
		return s.confirm(ctx, b, a)
	case adapter.SessionExpired:
		if _, err := s.markFailed(ctx, b, a, "checkout session expired"); err != nil {
			return nil, err
		}
		return s.reload(ctx, b.ID())
	default:
		return toBookingDTO(b), nil
	}
}

// ConfirmFromGateway applies a payment-succeeded signal pushed by the
// gateway. sessionID, when set, must match the booking's live attempt, or a
// failed attempt when the booking has no live one.
func (s *ReconcilerService) ConfirmFromGateway(ctx context.Context, bookingID uuid.UUID, sessionID string) error {
	b, a, err := s.resolve(ctx, bookingID, sessionID)
	if err != nil || b == nil {
		return err
	}

	switch b.Status() {
	case booking.StatusConfirmed:
		return nil
	case booking.StatusCancelled:
		s.logger.Error("payment received for cancelled booking, refund required",
			zap.String("booking_id", b.ID().String()),
			zap.String("session_id", sessionID),
		)
		return nil
	}
	if a == nil {
		if a, err = s.failedAttempt(ctx, b, sessionID); err != nil {
			return err
		}
		if a == nil {
			s.logger.Warn("payment signal without a live attempt ignored",
				zap.String("booking_id", b.ID().String()),
				zap.String("session_id", sessionID),
			)
			return nil
		}
		s.logger.Warn("payment succeeded on an attempt marked failed, recovering",
			zap.String("booking_id", b.ID().String()),
			zap.String("attempt_id", a.ID().String()),
			zap.String("session_id", sessionID),
		)
	}

	_, err = s.confirm(ctx, b, a)
	return err
}

// failedAttempt returns the failed attempt of b that owns sessionID. It is
// only consulted when b has no live attempt, so recovering it keeps at most
// one live attempt per booking.
func (s *ReconcilerService) failedAttempt(ctx context.Context, b *booking.Booking, sessionID string) (*payment.Attempt, error) {
	if sessionID == "" {
		return nil, nil
	}
	a, err := s.attempts.FindByExternalReference(ctx, sessionID)
	if err != nil {
		if domainerr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if a.BookingID() != b.ID() || a.Status() != payment.StatusFailed {
		return nil, nil
	}
	return a, nil
}

// MarkFailed records an external payment failure. The booking stays pending
// so the customer can retry. Signals for confirmed or cancelled bookings, or
// for a session other than the live one, are ignored.
func (s *ReconcilerService) MarkFailed(ctx context.Context, bookingID uuid.UUID, sessionID, reason string) error {
	b, a, err := s.resolve(ctx, bookingID, sessionID)
	if err != nil || b == nil {
		return err
	}
	if b.Status() != booking.StatusPending {
		return nil
	}
	if a != nil && a.Status() == payment.StatusSucceeded {
		return nil
	}
	if reason == "" {
		reason = "payment failed"
	}
	_, err = s.markFailed(ctx, b, a, reason)
	return err
}

// Cancel cancels a pending booking and closes its open payment.
func (s *ReconcilerService) Cancel(ctx context.Context, bookingID uuid.UUID, reason string) (*BookingDTO, error) {
	b, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	a, err := s.attempts.FindLiveByBookingID(ctx, b.ID())
	if err != nil && !domainerr.IsNotFound(err) {
		return nil, err
	}
	if a != nil && a.Status() == payment.StatusSucceeded {
		return nil, domainerr.NewInvalidStateError("paid", string(booking.StatusCancelled))
	}

	if err := b.Cancel(reason); err != nil {
		return nil, err
	}

	err = s.uow.Do(ctx, func(ctx context.Context) error {
		b.IncrementVersion()
		if err := s.bookings.Update(ctx, b); err != nil {
			return err
		}
		if a == nil {
			return nil
		}
		if _, err := a.Fail("booking cancelled"); err != nil {
			return err
		}
		a.IncrementVersion()
		return s.attempts.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	if a != nil && a.Gateway() != payment.GatewayNone && a.ExternalReference() != "" {
		gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
		if err := s.gateway.ExpireCheckout(gctx, a.ExternalReference()); err != nil {
			s.logger.Warn("failed to expire checkout session", zap.String("session_id", a.ExternalReference()), zap.Error(err))
		}
		cancel()
	}

	s.cache.Invalidate(ctx, b.ID())
	s.logger.Info("booking cancelled", zap.String("booking_id", b.ID().String()), zap.String("reason", b.CancelReason()))
	s.publish(ctx, events.BookingCancelled, b.ID(), events.BookingCancelledEvent{
		BookingID:  b.ID(),
		Reference:  b.Reference(),
		Reason:     b.CancelReason(),
		OccurredAt: time.Now().UTC(),
	})
	return toBookingDTO(b), nil
}

// resolve loads the booking a signal refers to and its live attempt. The
// booking id may be missing when only the gateway session is known. A nil
// booking without error means the signal is ignored.
func (s *ReconcilerService) resolve(ctx context.Context, bookingID uuid.UUID, sessionID string) (*booking.Booking, *payment.Attempt, error) {
	if bookingID == uuid.Nil {
		if sessionID == "" {
			return nil, nil, domainerr.NewValidationError("invalid_signal", "signal names neither booking nor session")
		}
		byRef, err := s.attempts.FindByExternalReference(ctx, sessionID)
		if err != nil {
			if domainerr.IsNotFound(err) {
				s.logger.Warn("signal for unknown session ignored", zap.String("session_id", sessionID))
				return nil, nil, nil
			}
			return nil, nil, err
		}
		bookingID = byRef.BookingID()
	}

	b, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if domainerr.IsNotFound(err) {
			s.logger.Warn("signal for unknown booking ignored", zap.String("booking_id", bookingID.String()))
			return nil, nil, nil
		}
		return nil, nil, err
	}

	a, err := s.attempts.FindLiveByBookingID(ctx, b.ID())
	if err != nil {
		if domainerr.IsNotFound(err) {
			return b, nil, nil
		}
		return nil, nil, err
	}
	if sessionID != "" && a.ExternalReference() != sessionID {
		s.logger.Warn("signal for a stale session ignored",
			zap.String("booking_id", b.ID().String()),
			zap.String("session_id", sessionID),
			zap.String("live_session_id", a.ExternalReference()),
		)
		return nil, nil, nil
	}
	return b, a, nil
}

// confirm commits booking confirmation, attempt success and coupon
// consumption in one transaction. A lost optimistic-lock race returns the
// winner's state.
func (s *ReconcilerService) confirm(ctx context.Context, b *booking.Booking, a *payment.Attempt) (*BookingDTO, error) {
	var consumed *events.CouponConsumedEvent
	changed := false

	err := s.uow.Do(ctx, func(ctx context.Context) error {
		ok, err := b.Confirm()
		if err != nil || !ok {
			return err
		}
		b.IncrementVersion()
		if err := s.bookings.Update(ctx, b); err != nil {
			return err
		}

		settle := a.Succeed
		if a.Status() == payment.StatusFailed {
			settle = a.Recover
		}
		if ok, err := settle(); err != nil {
			return err
		} else if ok {
			a.IncrementVersion()
			if err := s.attempts.Update(ctx, a); err != nil {
				return err
			}
		}

		if code := b.CouponCode(); code != nil {
			consumed, err = s.coupons.Consume(ctx, *code, b.ID(), b.Pricing().CouponDiscount)
			if err != nil {
				return err
			}
		}
		changed = true
		return nil
	})
	if err != nil {
		if isConflict(err) {
			s.logger.Info("booking confirmed concurrently, returning current state", zap.String("booking_id", b.ID().String()))
			return s.reload(ctx, b.ID())
		}
		s.logger.Error("failed to confirm booking", zap.String("booking_id", b.ID().String()), zap.Error(err))
		return nil, err
	}

	s.cache.Invalidate(ctx, b.ID())
	if changed {
		s.logger.Info("booking confirmed",
			zap.String("booking_id", b.ID().String()),
			zap.String("attempt_id", a.ID().String()),
		)
		s.publish(ctx, events.BookingConfirmed, b.ID(), events.BookingConfirmedEvent{
			BookingID:  b.ID(),
			Reference:  b.Reference(),
			AttemptID:  a.ID(),
			AmountPaid: a.Amount(),
			Currency:   a.Currency(),
			OccurredAt: time.Now().UTC(),
		})
		if consumed != nil {
			s.publish(ctx, events.CouponConsumed, b.ID(), *consumed)
		}
	}
	return toBookingDTO(b), nil
}

// markFailed fails the live attempt, if any, and flags the booking payment
// as failed. It reports whether anything changed.
func (s *ReconcilerService) markFailed(ctx context.Context, b *booking.Booking, a *payment.Attempt, reason string) (bool, error) {
	changed := false
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		if a != nil {
			ok, err := a.Fail(reason)
			if err != nil {
				return err
			}
			if ok {
				a.IncrementVersion()
				if err := s.attempts.Update(ctx, a); err != nil {
					return err
				}
				changed = true
			}
		}
		if b.MarkPaymentFailed() {
			b.IncrementVersion()
			if err := s.bookings.Update(ctx, b); err != nil {
				return err
			}
			changed = true
		}
		return nil
	})
	if err != nil {
		if isConflict(err) {
			return false, nil
		}
		return false, err
	}
	if !changed {
		return false, nil
	}

	s.cache.Invalidate(ctx, b.ID())
	s.logger.Info("payment marked failed", zap.String("booking_id", b.ID().String()), zap.String("reason", reason))

	payload := events.PaymentFailedEvent{BookingID: b.ID(), Reason: reason, OccurredAt: time.Now().UTC()}
	if a != nil {
		payload.AttemptID = a.ID()
	}
	s.publish(ctx, events.PaymentFailed, b.ID(), payload)
	return true, nil
}

func (s *ReconcilerService) reload(ctx context.Context, id uuid.UUID) (*BookingDTO, error) {
	s.cache.Invalidate(ctx, id)
	b, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toBookingDTO(b), nil
}

func (s *ReconcilerService) publish(ctx context.Context, eventType string, subject uuid.UUID, payload any) {
	ce, err := kafka.NewCloudEvent(events.Source, eventType, payload)
	if err == nil {
		err = s.publisher.PublishEvent(ctx, events.TopicCheckoutEvents, ce.WithSubject(subject.String()))
	}
	if err != nil {
		s.logger.Error("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}
