package payment

import (
	"context"

	"github.com/google/uuid"
)

// AttemptRepository defines the persistence contract for payment attempts.
type AttemptRepository interface {
	// FindByID retrieves an attempt by its unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*Attempt, error)

	// FindLiveByBookingID returns the outstanding or succeeded attempt of a
	// booking, or a not-found DomainError.
	FindLiveByBookingID(ctx context.Context, bookingID uuid.UUID) (*Attempt, error)

	// FindByExternalReference looks an attempt up by its gateway session id.
	FindByExternalReference(ctx context.Context, ref string) (*Attempt, error)

	// ListByBookingID returns every attempt of a booking, oldest first.
	ListByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*Attempt, error)

	// Save persists a new attempt. A second live attempt for the same booking
	// yields a conflict error.
	Save(ctx context.Context, a *Attempt) error

	// Update persists changes with optimistic locking.
	Update(ctx context.Context, a *Attempt) error
}
