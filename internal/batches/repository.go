package batches

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/tabkeeper-backend/pkg/db"
	"github.com/angelmondragon/tabkeeper-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
)

// Repository manages persistence for cost batches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListAvailable(ctx context.Context, productID uuid.UUID) ([]models.Batch, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.Batch, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Batch, error)
	Create(ctx context.Context, batch *models.Batch) error
	Decrement(ctx context.Context, id uuid.UUID, amount int) error
	Increment(ctx context.Context, id uuid.UUID, amount int) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a batch repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// ListAvailable returns batches with stock in FIFO order: created_at, then id.
func (r *repository) ListAvailable(ctx context.Context, productID uuid.UUID) ([]models.Batch, error) {
	var rows []models.Batch
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND quantity > 0", productID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.Batch, error) {
	var rows []models.Batch
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	var batch models.Batch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "batch not found")
		}
		return nil, err
	}
	return &batch, nil
}

func (r *repository) Create(ctx context.Context, batch *models.Batch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

// Decrement subtracts amount only while enough stock remains. A guard miss means
// another writer consumed the stock after it was planned.
func (r *repository) Decrement(ctx context.Context, id uuid.UUID, amount int) error {
	if amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "decrement amount must be positive")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("id = ? AND quantity >= ?", id, amount).
		UpdateColumn("quantity", gorm.Expr("quantity - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "batch stock changed concurrently").
			WithDetails(map[string]any{"batch_id": id.String(), "amount": amount})
	}
	return nil
}

// Increment adds amount and reports whether the batch still exists.
func (r *repository) Increment(ctx context.Context, id uuid.UUID, amount int) (bool, error) {
	if amount <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "increment amount must be positive")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("id = ?", id).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Batch{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
	}
	return nil
}
