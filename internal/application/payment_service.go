package application

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wanderly-travel/service-checkout/internal/domain/booking"
	"github.com/wanderly-travel/service-checkout/internal/domain/payment"
	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
	"github.com/wanderly-travel/service-checkout/internal/saga"
)

// PaymentService is the application service that starts payments.
type PaymentService struct {
	bookings booking.Repository
	attempts payment.AttemptRepository
	sagaSvc  *saga.CheckoutSagaService
	cache    BookingCache
	logger   *zap.Logger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	bookings booking.Repository,
	attempts payment.AttemptRepository,
	sagaSvc *saga.CheckoutSagaService,
	cache BookingCache,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		bookings: bookings,
		attempts: attempts,
		sagaSvc:  sagaSvc,
		cache:    cache,
		logger:   logger,
	}
}

// Initiate starts payment for a pending booking. When the booking already has
// an outstanding or succeeded attempt, that attempt is returned with Reused
// set and nothing new is created.
func (s *PaymentService) Initiate(ctx context.Context, req InitiatePaymentRequest) (*InitiatePaymentResult, error) {
	b, err := s.bookings.FindByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if !b.IsPayable() {
		return nil, ErrBookingNotPayable
	}

	live, err := s.attempts.FindLiveByBookingID(ctx, b.ID())
	switch {
	case err == nil:
		return toInitiateResult(live, true), nil
	case !domainerr.IsNotFound(err):
		return nil, err
	}

	s.logger.Info("initiating payment",
		zap.String("booking_id", b.ID().String()),
		zap.String("amount", b.Pricing().FinalPayable.String()),
	)

	a, err := s.sagaSvc.InitiatePayment(ctx, b)
	s.cache.Invalidate(ctx, b.ID())
	if err != nil {
		if errors.Is(err, saga.ErrAttemptNotSaved) && isConflict(err) {
			// a concurrent initiate stored its attempt first
			if live, lerr := s.attempts.FindLiveByBookingID(ctx, b.ID()); lerr == nil {
				return toInitiateResult(live, true), nil
			}
		}
		s.logger.Error("failed to initiate payment", zap.String("booking_id", b.ID().String()), zap.Error(err))
		return nil, paymentInitiationFailed(err)
	}

	return toInitiateResult(a, false), nil
}

// Attempts lists every payment attempt of a booking, oldest first.
func (s *PaymentService) Attempts(ctx context.Context, bookingID uuid.UUID) ([]PaymentAttemptDTO, error) {
	attempts, err := s.attempts.ListByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	dtos := make([]PaymentAttemptDTO, len(attempts))
	for i, a := range attempts {
		dtos[i] = toAttemptDTO(a)
	}
	return dtos, nil
}
