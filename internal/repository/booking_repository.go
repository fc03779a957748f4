package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wanderly-travel/service-checkout/internal/domain/booking"
	"github.com/wanderly-travel/service-checkout/internal/domain/cart"
	"github.com/wanderly-travel/service-checkout/internal/domain/pricing"
	"github.com/wanderly-travel/service-checkout/internal/platform/database"
	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
)

// BookingModel is the GORM persistence model for the bookings table.
type BookingModel struct {
	ID                 uuid.UUID            `gorm:"type:uuid;primaryKey"`
	Reference          string               `gorm:"type:varchar(16);uniqueIndex;not null"`
	Kind               string               `gorm:"type:varchar(10);not null"`
	UserID             *uuid.UUID           `gorm:"type:uuid;index"`
	ContactName        string               `gorm:"type:varchar(120);not null"`
	ContactEmail       string               `gorm:"type:varchar(254);not null;index"`
	ContactPhone       string               `gorm:"type:varchar(32)"`
	TourDetails        *booking.TourDetails `gorm:"type:jsonb;serializer:json"`
	VisaDetails        *booking.VisaDetails `gorm:"type:jsonb;serializer:json"`
	Subtotal           decimal.Decimal      `gorm:"type:numeric(12,2);not null"`
	TransactionFeeRate decimal.Decimal      `gorm:"type:numeric(6,4);not null"`
	TransactionFee     decimal.Decimal      `gorm:"type:numeric(12,2);not null"`
	CouponDiscount     decimal.Decimal      `gorm:"type:numeric(12,2);not null;default:0"`
	FinalPayable       decimal.Decimal      `gorm:"type:numeric(12,2);not null"`
	CouponCode         *string              `gorm:"type:varchar(50)"`
	Status             string               `gorm:"type:varchar(20);not null;default:'pending';index"`
	PaymentStatus      string               `gorm:"type:varchar(20);not null;default:'pending'"`
	CancelReason       string               `gorm:"type:text"`
	ConfirmedAt        *time.Time           `gorm:"type:timestamptz"`
	CancelledAt        *time.Time           `gorm:"type:timestamptz"`
	Version            int64                `gorm:"not null;default:1"`
	CreatedAt          time.Time            `gorm:"type:timestamptz;not null;default:now()"`
	UpdatedAt          time.Time            `gorm:"type:timestamptz;not null;default:now()"`
	Items              []BookingItemModel   `gorm:"foreignKey:BookingID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for GORM.
func (BookingModel) TableName() string {
	return "bookings"
}

// BookingItemModel is one locked-in cart line of a booking.
type BookingItemModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	BookingID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	Position       int             `gorm:"not null"`
	ProductRef     string          `gorm:"type:varchar(100);not null"`
	ProductKind    string          `gorm:"type:varchar(10);not null"`
	Title          string          `gorm:"type:varchar(255)"`
	TravelDate     time.Time       `gorm:"type:date;not null"`
	AdultCount     int             `gorm:"not null"`
	ChildCount     int             `gorm:"not null"`
	PriceKind      string          `gorm:"type:varchar(10);not null"`
	AdultUnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	ChildUnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	LineTotal      decimal.Decimal `gorm:"type:numeric(14,4);not null"`
	PickupRequired bool            `gorm:"not null;default:false"`
}

// TableName specifies the table name for GORM.
func (BookingItemModel) TableName() string {
	return "booking_items"
}

// columns an Update may touch; the envelope and price snapshot are write-once.
var bookingMutableColumns = []string{
	"status", "payment_status", "cancel_reason", "confirmed_at", "cancelled_at", "version", "updated_at",
}

// BookingRepositoryImpl is the GORM-based implementation of booking.Repository.
type BookingRepositoryImpl struct {
	db *gorm.DB
}

// NewBookingRepository creates a new GORM-based booking repository.
func NewBookingRepository(db *gorm.DB) *BookingRepositoryImpl {
	return &BookingRepositoryImpl{db: db}
}

// Save persists a new booking together with its items.
func (r *BookingRepositoryImpl) Save(ctx context.Context, b *booking.Booking) error {
	model := toBookingModel(b)
	if err := database.Conn(ctx, r.db).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domainerr.NewConflictError("booking reference already exists")
		}
		return err
	}
	return nil
}

// Update persists a status transition with optimistic locking.
func (r *BookingRepositoryImpl) Update(ctx context.Context, b *booking.Booking) error {
	model := toBookingModel(b)
	previousVersion := b.Version() - 1

	result := database.Conn(ctx, r.db).
		Model(&BookingModel{}).
		Where("id = ? AND version = ?", model.ID, previousVersion).
		Select(bookingMutableColumns).
		Updates(model)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return domainerr.NewConflictError("booking was modified by another transaction")
	}

	return nil
}

// FindByID retrieves a booking by its unique ID.
func (r *BookingRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return r.findOne(ctx, "id = ?", id, id.String())
}

// FindByReference retrieves a booking by its BK- reference.
func (r *BookingRepositoryImpl) FindByReference(ctx context.Context, reference string) (*booking.Booking, error) {
	return r.findOne(ctx, "reference = ?", reference, reference)
}

func (r *BookingRepositoryImpl) findOne(ctx context.Context, query string, arg any, label string) (*booking.Booking, error) {
	var model BookingModel
	err := database.Conn(ctx, r.db).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where(query, arg).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerr.NewNotFoundError("Booking", label)
		}
		return nil, err
	}
	return toBookingDomain(&model), nil
}

// List retrieves bookings newest first, optionally filtered by status.
func (r *BookingRepositoryImpl) List(ctx context.Context, status booking.Status, page, limit int) ([]*booking.Booking, int64, error) {
	filter := func(db *gorm.DB) *gorm.DB {
		if status != "" {
			return db.Where("status = ?", string(status))
		}
		return db
	}
	conn := database.Conn(ctx, r.db)

	var total int64
	if err := conn.Model(&BookingModel{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []BookingModel
	offset := (page - 1) * limit
	err := conn.Scopes(filter).Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	bookings := make([]*booking.Booking, len(models))
	for i := range models {
		bookings[i] = toBookingDomain(&models[i])
	}
	return bookings, total, nil
}

// toBookingDomain maps a BookingModel to the domain Booking aggregate.
func toBookingDomain(model *BookingModel) *booking.Booking {
	var details booking.Details
	switch {
	case model.VisaDetails != nil:
		details = *model.VisaDetails
	case model.TourDetails != nil:
		details = *model.TourDetails
	default:
		details = booking.TourDetails{}
	}

	items := make([]booking.Item, len(model.Items))
	for i, m := range model.Items {
		items[i] = booking.Item{
			ProductRef:     m.ProductRef,
			ProductKind:    cart.ProductKind(m.ProductKind),
			Title:          m.Title,
			Date:           m.TravelDate.UTC(),
			AdultCount:     m.AdultCount,
			ChildCount:     m.ChildCount,
			PriceKind:      cart.PriceKind(m.PriceKind),
			AdultUnitPrice: m.AdultUnitPrice,
			ChildUnitPrice: m.ChildUnitPrice,
			LineTotal:      m.LineTotal,
			PickupRequired: m.PickupRequired,
		}
	}

	return booking.Reconstitute(
		model.ID,
		model.Reference,
		model.UserID,
		booking.Contact{Name: model.ContactName, Email: model.ContactEmail, Phone: model.ContactPhone},
		details,
		items,
		pricing.Snapshot{
			Subtotal:           model.Subtotal,
			TransactionFeeRate: model.TransactionFeeRate,
			TransactionFee:     model.TransactionFee,
			CouponDiscount:     model.CouponDiscount,
			FinalPayable:       model.FinalPayable,
		},
		model.CouponCode,
		booking.Status(model.Status),
		booking.PaymentStatus(model.PaymentStatus),
		model.CancelReason,
		model.ConfirmedAt,
		model.CancelledAt,
		model.Version,
		model.CreatedAt,
		model.UpdatedAt,
	)
}

// toBookingModel maps a domain Booking aggregate to a BookingModel.
func toBookingModel(b *booking.Booking) *BookingModel {
	contact := b.Contact()
	snap := b.Pricing()

	model := &BookingModel{
		ID:                 b.ID(),
		Reference:          b.Reference(),
		Kind:               string(b.Kind()),
		UserID:             b.UserID(),
		ContactName:        contact.Name,
		ContactEmail:       contact.Email,
		ContactPhone:       contact.Phone,
		Subtotal:           snap.Subtotal,
		TransactionFeeRate: snap.TransactionFeeRate,
		TransactionFee:     snap.TransactionFee,
		CouponDiscount:     snap.CouponDiscount,
		FinalPayable:       snap.FinalPayable,
		CouponCode:         b.CouponCode(),
		Status:             string(b.Status()),
		PaymentStatus:      string(b.PaymentStatus()),
		CancelReason:       b.CancelReason(),
		ConfirmedAt:        b.ConfirmedAt(),
		CancelledAt:        b.CancelledAt(),
		Version:            b.Version(),
		CreatedAt:          b.CreatedAt(),
		UpdatedAt:          b.UpdatedAt(),
	}
	if d, ok := b.TourDetails(); ok {
		model.TourDetails = &d
	}
	if d, ok := b.VisaDetails(); ok {
		model.VisaDetails = &d
	}

	for i, it := range b.Items() {
		model.Items = append(model.Items, BookingItemModel{
			ID:             uuid.New(),
			BookingID:      b.ID(),
			Position:       i,
			ProductRef:     it.ProductRef,
			ProductKind:    string(it.ProductKind),
			Title:          it.Title,
			TravelDate:     it.Date,
			AdultCount:     it.AdultCount,
			ChildCount:     it.ChildCount,
			PriceKind:      string(it.PriceKind),
			AdultUnitPrice: it.AdultUnitPrice,
			ChildUnitPrice: it.ChildUnitPrice,
			LineTotal:      it.LineTotal,
			PickupRequired: it.PickupRequired,
		})
	}
	return model
}
