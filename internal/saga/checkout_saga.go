package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wanderly-travel/service-checkout/internal/adapter"
	"github.com/wanderly-travel/service-checkout/internal/domain/booking"
	"github.com/wanderly-travel/service-checkout/internal/domain/payment"
	"github.com/wanderly-travel/service-checkout/internal/domain/pricing"
	"github.com/wanderly-travel/service-checkout/internal/events"
	"github.com/wanderly-travel/service-checkout/internal/platform/kafka"
)

// Publisher publishes CloudEvents.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, ce kafka.CloudEvent) error
}

// UnitOfWork runs fn in one database transaction.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// ErrAttemptNotSaved marks failures that happened before an attempt was
// stored, such as losing the race for the booking's single live attempt.
var ErrAttemptNotSaved = errors.New("payment attempt not saved")

// CheckoutSagaService orchestrates the payment initiation workflow.
type CheckoutSagaService struct {
	attempts       payment.AttemptRepository
	bookings       booking.Repository
	gateway        adapter.PaymentGateway
	uow            UnitOfWork
	publisher      Publisher
	currency       string
	gatewayTimeout time.Duration
	logger         *zap.Logger
}

// NewCheckoutSagaService creates a CheckoutSagaService.
func NewCheckoutSagaService(
	attempts payment.AttemptRepository,
	bookings booking.Repository,
	gateway adapter.PaymentGateway,
	uow UnitOfWork,
	publisher Publisher,
	currency string,
	gatewayTimeout time.Duration,
	logger *zap.Logger,
) *CheckoutSagaService {
	return &CheckoutSagaService{
		attempts:       attempts,
		bookings:       bookings,
		gateway:        gateway,
		uow:            uow,
		publisher:      publisher,
		currency:       currency,
		gatewayTimeout: gatewayTimeout,
		logger:         logger,
	}
}

// InitiatePayment stores a new attempt for b and, unless nothing is payable,
// opens a gateway checkout session for it. On failure the attempt is left
// failed so the booking can be retried, and any opened session is expired.
func (s *CheckoutSagaService) InitiatePayment(ctx context.Context, b *booking.Booking) (*payment.Attempt, error) {
	amount := b.Pricing().FinalPayable
	gatewayName := s.gateway.Name()
	if b.Pricing().IsFree() {
		gatewayName = payment.GatewayNone
	}

	a, err := payment.NewAttempt(b.ID(), amount, s.currency, gatewayName)
	if err != nil {
		return nil, err
	}

	if gatewayName == payment.GatewayNone {
		return s.initiateImmediate(ctx, b, a)
	}

	var session adapter.CheckoutSession
	saved := false

	saga := New("initiate_payment", s.logger)

	// Step 1: store the attempt and reopen a previously failed payment
	saga.AddStep(Step{
		Name: "save_attempt",
		Execute: func(ctx context.Context) error {
			if err := s.saveAttempt(ctx, b, a); err != nil {
				return errors.Join(ErrAttemptNotSaved, err)
			}
			saved = true
			return nil
		},
		Compensate: func(ctx context.Context) error {
			return s.failAttempt(ctx, a, "payment initiation did not complete")
		},
	})

	// Step 2: open the hosted checkout session
	saga.AddStep(Step{
		Name: "create_checkout_session",
		Execute: func(ctx context.Context) error {
			gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
			defer cancel()

			var err error
			session, err = s.gateway.CreateCheckout(gctx, adapter.CheckoutRequest{
				AttemptID:     a.ID(),
				BookingID:     b.ID(),
				Reference:     b.Reference(),
				AmountMinor:   pricing.MinorUnits(amount),
				Currency:      a.Currency(),
				CustomerEmail: b.Contact().Email,
				Description:   fmt.Sprintf("%d item(s), %s booking", len(b.Items()), b.Kind()),
			})
			return err
		},
		Compensate: func(ctx context.Context) error {
			if session.ID == "" {
				return nil
			}
			gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
			defer cancel()
			return s.gateway.ExpireCheckout(gctx, session.ID)
		},
	})

	// Step 3: record the redirect on the attempt
	saga.AddStep(Step{
		Name: "record_outcome",
		Execute: func(ctx context.Context) error {
			if err := a.RecordRedirect(session.ID, session.RedirectURL); err != nil {
				return err
			}
			a.IncrementVersion()
			return s.attempts.Update(ctx, a)
		},
	})

	if err := saga.Execute(ctx); err != nil {
		if saved {
			s.publishFailed(ctx, a, err.Error())
		}
		return nil, err
	}

	s.publishInitiated(ctx, a)
	return a, nil
}

func (s *CheckoutSagaService) initiateImmediate(ctx context.Context, b *booking.Booking, a *payment.Attempt) (*payment.Attempt, error) {
	if err := a.RecordImmediateConfirm(""); err != nil {
		return nil, err
	}
	if err := s.saveAttempt(ctx, b, a); err != nil {
		return nil, errors.Join(ErrAttemptNotSaved, err)
	}
	s.logger.Info("zero amount booking, no gateway session needed",
		zap.String("booking_id", b.ID().String()),
	)
	s.publishInitiated(ctx, a)
	return a, nil
}

func (s *CheckoutSagaService) saveAttempt(ctx context.Context, b *booking.Booking, a *payment.Attempt) error {
	return s.uow.Do(ctx, func(ctx context.Context) error {
		if err := s.attempts.Save(ctx, a); err != nil {
			return err
		}
		if b.ReopenPayment() {
			b.IncrementVersion()
			return s.bookings.Update(ctx, b)
		}
		return nil
	})
}

// failAttempt reloads the attempt so a half-applied in-memory transition
// cannot cause a version conflict.
func (s *CheckoutSagaService) failAttempt(ctx context.Context, a *payment.Attempt, reason string) error {
	fresh, err := s.attempts.FindByID(ctx, a.ID())
	if err != nil {
		return err
	}
	changed, err := fresh.Fail(reason)
	if err != nil || !changed {
		return err
	}
	fresh.IncrementVersion()
	if err := s.attempts.Update(ctx, fresh); err != nil {
		return err
	}
	*a = *fresh
	return nil
}

func (s *CheckoutSagaService) publishInitiated(ctx context.Context, a *payment.Attempt) {
	s.publish(ctx, events.PaymentInitiated, a.BookingID().String(), events.PaymentInitiatedEvent{
		AttemptID:  a.ID(),
		BookingID:  a.BookingID(),
		Amount:     a.Amount(),
		Currency:   a.Currency(),
		Gateway:    a.Gateway(),
		Outcome:    string(a.Outcome()),
		OccurredAt: time.Now().UTC(),
	})
}

func (s *CheckoutSagaService) publishFailed(ctx context.Context, a *payment.Attempt, reason string) {
	s.publish(ctx, events.PaymentFailed, a.BookingID().String(), events.PaymentFailedEvent{
		AttemptID:  a.ID(),
		BookingID:  a.BookingID(),
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
}

// publish logs failures and never returns them.
func (s *CheckoutSagaService) publish(ctx context.Context, eventType, subject string, payload any) {
	ce, err := kafka.NewCloudEvent(events.Source, eventType, payload)
	if err != nil {
		s.logger.Error("failed to create cloud event", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := s.publisher.PublishEvent(ctx, events.TopicCheckoutEvents, ce.WithSubject(subject)); err != nil {
		s.logger.Error("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}
