package booking

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence contract for Booking aggregates.
type Repository interface {
	// Save persists a new booking together with its item snapshot.
	Save(ctx context.Context, b *Booking) error

	// Update persists a transition with optimistic locking. The caller must
	// have called IncrementVersion; a stale version yields a conflict error.
	Update(ctx context.Context, b *Booking) error

	// FindByID returns a not-found DomainError when the booking is missing.
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// FindByReference looks a booking up by its BK- reference.
	FindByReference(ctx context.Context, reference string) (*Booking, error)

	// List returns bookings newest first for the admin screens.
	List(ctx context.Context, status Status, page, limit int) ([]*Booking, int64, error)
}
