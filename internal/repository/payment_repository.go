package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wanderly-travel/service-checkout/internal/domain/payment"
	"github.com/wanderly-travel/service-checkout/internal/platform/database"
	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
)

// liveStatuses are the attempt statuses covered by the one-live-attempt index.
var liveStatuses = []string{string(payment.StatusOutstanding), string(payment.StatusSucceeded)}

// PaymentAttemptModel is the GORM persistence model for the payment_attempts table.
type PaymentAttemptModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	BookingID         uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_payment_attempts_live,where:status <> 'failed'"`
	Amount            decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency          string          `gorm:"type:varchar(3);not null"`
	Gateway           string          `gorm:"type:varchar(20);not null"`
	ExternalReference string          `gorm:"type:varchar(255);index"`
	RedirectURL       string          `gorm:"type:text"`
	Outcome           string          `gorm:"type:varchar(20)"`
	Status            string          `gorm:"type:varchar(20);not null;default:'outstanding'"`
	FailureReason     string          `gorm:"type:text"`
	SucceededAt       *time.Time      `gorm:"type:timestamptz"`
	FailedAt          *time.Time      `gorm:"type:timestamptz"`
	Version           int64           `gorm:"not null;default:1"`
	CreatedAt         time.Time       `gorm:"type:timestamptz;not null;default:now()"`
	UpdatedAt         time.Time       `gorm:"type:timestamptz;not null;default:now()"`
}

// TableName specifies the table name for GORM.
func (PaymentAttemptModel) TableName() string {
	return "payment_attempts"
}

// AttemptRepositoryImpl is the GORM-based implementation of payment.AttemptRepository.
type AttemptRepositoryImpl struct {
	db *gorm.DB
}

// NewAttemptRepository creates a new GORM-based payment attempt repository.
func NewAttemptRepository(db *gorm.DB) *AttemptRepositoryImpl {
	return &AttemptRepositoryImpl{db: db}
}

// FindByID retrieves an attempt by its unique ID.
func (r *AttemptRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*payment.Attempt, error) {
	return r.findOne(ctx, id.String(), "id = ?", id)
}

// FindLiveByBookingID retrieves the outstanding or succeeded attempt of a booking.
func (r *AttemptRepositoryImpl) FindLiveByBookingID(ctx context.Context, bookingID uuid.UUID) (*payment.Attempt, error) {
	return r.findOne(ctx, bookingID.String(), "booking_id = ? AND status IN ?", bookingID, liveStatuses)
}

// FindByExternalReference retrieves an attempt by its gateway session id.
func (r *AttemptRepositoryImpl) FindByExternalReference(ctx context.Context, ref string) (*payment.Attempt, error) {
	if ref == "" {
		return nil, domainerr.NewNotFoundError("PaymentAttempt", "<empty reference>")
	}
	return r.findOne(ctx, ref, "external_reference = ?", ref)
}

func (r *AttemptRepositoryImpl) findOne(ctx context.Context, label string, query string, args ...any) (*payment.Attempt, error) {
	var model PaymentAttemptModel
	if err := database.Conn(ctx, r.db).Where(query, args...).Order("created_at DESC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerr.NewNotFoundError("PaymentAttempt", label)
		}
		return nil, err
	}
	return toAttemptDomain(&model), nil
}

// ListByBookingID retrieves every attempt of a booking, oldest first.
func (r *AttemptRepositoryImpl) ListByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*payment.Attempt, error) {
	var models []PaymentAttemptModel
	err := database.Conn(ctx, r.db).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]*payment.Attempt, len(models))
	for i := range models {
		attempts[i] = toAttemptDomain(&models[i])
	}
	return attempts, nil
}

// Save persists a new attempt. The partial unique index rejects a second
// live attempt for the same booking.
func (r *AttemptRepositoryImpl) Save(ctx context.Context, a *payment.Attempt) error {
	model := toAttemptModel(a)
	if err := database.Conn(ctx, r.db).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domainerr.NewConflictError("booking already has a live payment attempt")
		}
		return err
	}
	return nil
}

// Update persists changes to an existing attempt with optimistic locking.
func (r *AttemptRepositoryImpl) Update(ctx context.Context, a *payment.Attempt) error {
	model := toAttemptModel(a)
	previousVersion := a.Version() - 1

	result := database.Conn(ctx, r.db).
		Model(&PaymentAttemptModel{}).
		Where("id = ? AND version = ?", model.ID, previousVersion).
		Select("external_reference", "redirect_url", "outcome", "status", "failure_reason",
			"succeeded_at", "failed_at", "version", "updated_at").
		Updates(model)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return domainerr.NewConflictError("booking already has a live payment attempt")
		}
		return result.Error
	}

	if result.RowsAffected == 0 {
		return domainerr.NewConflictError("payment attempt was modified by another transaction")
	}

	return nil
}

// toAttemptDomain maps a PaymentAttemptModel to the domain Attempt.
func toAttemptDomain(model *PaymentAttemptModel) *payment.Attempt {
	return payment.Reconstitute(
		model.ID,
		model.BookingID,
		model.Amount,
		model.Currency,
		model.Gateway,
		model.ExternalReference,
		model.RedirectURL,
		payment.Outcome(model.Outcome),
		payment.Status(model.Status),
		model.FailureReason,
		model.SucceededAt,
		model.FailedAt,
		model.Version,
		model.CreatedAt,
		model.UpdatedAt,
	)
}

// toAttemptModel maps a domain Attempt to a PaymentAttemptModel for persistence.
func toAttemptModel(a *payment.Attempt) *PaymentAttemptModel {
	return &PaymentAttemptModel{
		ID:                a.ID(),
		BookingID:         a.BookingID(),
		Amount:            a.Amount(),
		Currency:          a.Currency(),
		Gateway:           a.Gateway(),
		ExternalReference: a.ExternalReference(),
		RedirectURL:       a.RedirectURL(),
		Outcome:           string(a.Outcome()),
		Status:            string(a.Status()),
		FailureReason:     a.FailureReason(),
		SucceededAt:       a.SucceededAt(),
		FailedAt:          a.FailedAt(),
		Version:           a.Version(),
		CreatedAt:         a.CreatedAt(),
		UpdatedAt:         a.UpdatedAt(),
	}
}
