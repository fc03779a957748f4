package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wanderly-travel/service-checkout/internal/domain/coupon"
	"github.com/wanderly-travel/service-checkout/internal/platform/database"
	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
)

// CouponModel is the GORM model for the coupons table.
type CouponModel struct {
	ID                    uuid.UUID           `gorm:"type:uuid;primaryKey"`
	Code                  string              `gorm:"type:varchar(50);uniqueIndex;not null"`
	DiscountType          string              `gorm:"type:varchar(20);not null"`
	DiscountValue         decimal.Decimal     `gorm:"type:numeric(12,2);not null"`
	MinOrderAmount        decimal.Decimal     `gorm:"type:numeric(12,2);not null;default:0"`
	MaxDiscountAmount     decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	ValidFrom             *time.Time          `gorm:"type:timestamptz"`
	ExpiryDate            time.Time           `gorm:"type:timestamptz;not null"`
	TotalUsageLimit       *int
	CurrentUses           int       `gorm:"not null;default:0"`
	ApplicableProductRefs []string  `gorm:"type:jsonb;serializer:json"`
	IsActive              bool      `gorm:"not null;default:true"`
	CreatedBy             uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt             time.Time `gorm:"not null"`
	UpdatedAt             time.Time `gorm:"not null"`
}

// TableName sets the table name.
func (CouponModel) TableName() string { return "coupons" }

// CouponUsageModel is the GORM model for the coupon_usages table.
type CouponUsageModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CouponID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_coupon_usage_booking"`
	BookingID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_coupon_usage_booking"`
	Discount  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	UsedAt    time.Time       `gorm:"not null"`
}

// TableName sets the table name.
func (CouponUsageModel) TableName() string { return "coupon_usages" }

// GormCouponRepository implements coupon.Repository using GORM.
type GormCouponRepository struct {
	db *gorm.DB
}

// NewGormCouponRepository creates a new GormCouponRepository.
func NewGormCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

// Save persists a new coupon.
func (r *GormCouponRepository) Save(ctx context.Context, c *coupon.Coupon) error {
	model := toCouponModel(c)
	if err := database.Conn(ctx, r.db).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domainerr.NewConflictError("coupon code already exists")
		}
		return err
	}
	return nil
}

// Update writes the admin-editable flags. The usage counter is left alone;
// only Consume moves it.
func (r *GormCouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	model := toCouponModel(c)
	return database.Conn(ctx, r.db).
		Model(&CouponModel{ID: model.ID}).
		Select("is_active", "updated_at").
		Updates(&model).Error
}

// FindByCode returns a coupon by its code, ignoring case.
func (r *GormCouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	var model CouponModel
	if err := database.Conn(ctx, r.db).Where("code = ?", coupon.NormalizeCode(code)).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerr.NewNotFoundError("Coupon", code)
		}
		return nil, err
	}
	return toCouponDomain(&model), nil
}

// FindActive returns coupons usable at now.
func (r *GormCouponRepository) FindActive(ctx context.Context, now time.Time) ([]*coupon.Coupon, error) {
	var models []CouponModel
	err := database.Conn(ctx, r.db).
		Where("is_active = ? AND expiry_date >= ?", true, now).
		Where("valid_from IS NULL OR valid_from <= ?", now).
		Where("total_usage_limit IS NULL OR current_uses < total_usage_limit").
		Order("code ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toCouponDomains(models), nil
}

// List returns a page of coupons, newest first.
func (r *GormCouponRepository) List(ctx context.Context, page, limit int) ([]*coupon.Coupon, int64, error) {
	conn := database.Conn(ctx, r.db)

	var total int64
	if err := conn.Model(&CouponModel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []CouponModel
	offset := (page - 1) * limit
	if err := conn.Order("created_at DESC").Offset(offset).Limit(limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	return toCouponDomains(models), total, nil
}

// Consume inserts the usage row and advances current_uses in one statement
// pair. The (coupon_id, booking_id) unique index turns a replay into a no-op.
func (r *GormCouponRepository) Consume(ctx context.Context, u coupon.Usage) (bool, error) {
	conn := database.Conn(ctx, r.db)

	usage := CouponUsageModel{
		ID:        u.ID,
		CouponID:  u.CouponID,
		BookingID: u.BookingID,
		Discount:  u.Discount,
		UsedAt:    u.UsedAt,
	}
	result := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&usage)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	err := conn.Model(&CouponModel{}).
		Where("id = ?", u.CouponID).
		Updates(map[string]any{
			"current_uses": gorm.Expr("current_uses + 1"),
			"updated_at":   time.Now().UTC(),
		}).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

func toCouponDomains(models []CouponModel) []*coupon.Coupon {
	coupons := make([]*coupon.Coupon, len(models))
	for i := range models {
		coupons[i] = toCouponDomain(&models[i])
	}
	return coupons
}

func toCouponModel(c *coupon.Coupon) CouponModel {
	var maxDiscount decimal.NullDecimal
	if m := c.MaxDiscountAmount(); m != nil {
		maxDiscount = decimal.NewNullDecimal(*m)
	}
	return CouponModel{
		ID:                    c.ID(),
		Code:                  c.Code(),
		DiscountType:          string(c.DiscountType()),
		DiscountValue:         c.DiscountValue(),
		MinOrderAmount:        c.MinOrderAmount(),
		MaxDiscountAmount:     maxDiscount,
		ValidFrom:             c.ValidFrom(),
		ExpiryDate:            c.ExpiryDate(),
		TotalUsageLimit:       c.TotalUsageLimit(),
		CurrentUses:           c.CurrentUses(),
		ApplicableProductRefs: c.ApplicableProductRefs(),
		IsActive:              c.IsActive(),
		CreatedBy:             c.CreatedBy(),
		CreatedAt:             c.CreatedAt(),
		UpdatedAt:             c.UpdatedAt(),
	}
}

func toCouponDomain(m *CouponModel) *coupon.Coupon {
	var maxDiscount *decimal.Decimal
	if m.MaxDiscountAmount.Valid {
		d := m.MaxDiscountAmount.Decimal
		maxDiscount = &d
	}
	return coupon.Reconstitute(
		m.ID, m.Code, coupon.DiscountType(m.DiscountType), m.DiscountValue, m.MinOrderAmount,
		maxDiscount, m.ValidFrom, m.ExpiryDate.UTC(), m.TotalUsageLimit, m.CurrentUses,
		m.ApplicableProductRefs, m.IsActive, m.CreatedBy, m.CreatedAt, m.UpdatedAt,
	)
}
