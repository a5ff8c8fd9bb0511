package balances

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tabkeeper-backend/pkg/db/models"
)

// Repository reads and settles purchase units for balance math.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListUnpaid(ctx context.Context, userID *uuid.UUID) ([]models.PurchaseUnit, error)
	ListUnits(ctx context.Context, userID *uuid.UUID) ([]models.PurchaseUnit, error)
	MarkPaid(ctx context.Context, ids []uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a balance repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// ListUnpaid returns unpaid units in creation order. A nil userID covers every user.
func (r *repository) ListUnpaid(ctx context.Context, userID *uuid.UUID) ([]models.PurchaseUnit, error) {
	q := r.db.WithContext(ctx).Where("paid = ?", false)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	var units []models.PurchaseUnit
	if err := q.Order("created_at ASC").Order("id ASC").Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}

func (r *repository) ListUnits(ctx context.Context, userID *uuid.UUID) ([]models.PurchaseUnit, error) {
	q := r.db.WithContext(ctx).Model(&models.PurchaseUnit{})
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	var units []models.PurchaseUnit
	if err := q.Order("created_at ASC").Order("id ASC").Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}

// MarkPaid flips the given units that are still unpaid and reports how many changed.
func (r *repository) MarkPaid(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.PurchaseUnit{}).
		Where("id IN ? AND paid = ?", ids, false).
		UpdateColumn("paid", true)
	return res.RowsAffected, res.Error
}
