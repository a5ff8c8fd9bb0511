package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tabkeeper-backend/pkg/db/models"
	"github.com/angelmondragon/tabkeeper-backend/pkg/pagination"
)

// Repository manages purchase units and undo records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ReserveSeq(ctx context.Context, n int) (int64, error)
	CreateUnits(ctx context.Context, units []models.PurchaseUnit) error
	ListByActionGroup(ctx context.Context, groupID uuid.UUID) ([]models.PurchaseUnit, error)
	DeleteByActionGroup(ctx context.Context, groupID uuid.UUID) (int64, error)
	LatestUnit(ctx context.Context, afterSeq *int64, userID *uuid.UUID) (*models.PurchaseUnit, error)
	LatestUndo(ctx context.Context, userID *uuid.UUID) (*models.UndoEvent, error)
	FindUndoByActionGroup(ctx context.Context, groupID uuid.UUID) (*models.UndoEvent, error)
	CreateUndoEvent(ctx context.Context, event *models.UndoEvent) error
	ListUnits(ctx context.Context, filter UnitFilter) ([]models.PurchaseUnit, error)
}

const purchaseSeqCounter = "purchase_units"

// UnitFilter narrows a chronological unit listing.
type UnitFilter struct {
	UserID        *uuid.UUID
	ActionGroupID *uuid.UUID
	Cursor        *pagination.Cursor
	Limit         int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// ReserveSeq advances the purchase sequence by n and returns the first value of the
// reserved range. The counter row stays locked until the surrounding transaction ends.
func (r *repository) ReserveSeq(ctx context.Context, n int) (int64, error) {
	if n < 1 {
		return 0, errors.New("sequence reservation must be positive")
	}
	db := r.db.WithContext(ctx)
	bump := func() (int64, error) {
		res := db.Model(&models.LedgerCounter{}).
			Where("name = ?", purchaseSeqCounter).
			UpdateColumn("value", gorm.Expr("value + ?", n))
		return res.RowsAffected, res.Error
	}

	bumped, err := bump()
	if err != nil {
		return 0, err
	}
	if bumped == 0 {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.LedgerCounter{Name: purchaseSeqCounter}).Error; err != nil {
			return 0, err
		}
		if bumped, err = bump(); err != nil {
			return 0, err
		}
		if bumped == 0 {
			return 0, errors.New("purchase sequence counter missing")
		}
	}

	var counter models.LedgerCounter
	if err := db.Where("name = ?", purchaseSeqCounter).Take(&counter).Error; err != nil {
		return 0, err
	}
	return counter.Value - int64(n) + 1, nil
}

func (r *repository) CreateUnits(ctx context.Context, units []models.PurchaseUnit) error {
	if len(units) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&units).Error
}

func (r *repository) ListByActionGroup(ctx context.Context, groupID uuid.UUID) ([]models.PurchaseUnit, error) {
	var units []models.PurchaseUnit
	if err := r.db.WithContext(ctx).
		Where("action_group_id = ?", groupID).
		Order("seq ASC").
		Order("id ASC").
		Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}

func (r *repository) DeleteByActionGroup(ctx context.Context, groupID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("action_group_id = ?", groupID).Delete(&models.PurchaseUnit{})
	return res.RowsAffected, res.Error
}

// LatestUnit returns the unit with the highest seq above afterSeq, or nil.
func (r *repository) LatestUnit(ctx context.Context, afterSeq *int64, userID *uuid.UUID) (*models.PurchaseUnit, error) {
	q := r.db.WithContext(ctx).Model(&models.PurchaseUnit{})
	if afterSeq != nil {
		q = q.Where("seq > ?", *afterSeq)
	}
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	var units []models.PurchaseUnit
	if err := q.Order("seq DESC").Order("id DESC").Limit(1).Find(&units).Error; err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, nil
	}
	return &units[0], nil
}

func (r *repository) LatestUndo(ctx context.Context, userID *uuid.UUID) (*models.UndoEvent, error) {
	q := r.db.WithContext(ctx).Model(&models.UndoEvent{})
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	var events []models.UndoEvent
	if err := q.Order("undone_seq DESC").Order("created_at DESC").Limit(1).Find(&events).Error; err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func (r *repository) FindUndoByActionGroup(ctx context.Context, groupID uuid.UUID) (*models.UndoEvent, error) {
	var events []models.UndoEvent
	if err := r.db.WithContext(ctx).Where("action_group_id = ?", groupID).Limit(1).Find(&events).Error; err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func (r *repository) CreateUndoEvent(ctx context.Context, event *models.UndoEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListUnits(ctx context.Context, filter UnitFilter) ([]models.PurchaseUnit, error) {
	q := r.db.WithContext(ctx).Model(&models.PurchaseUnit{})
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.ActionGroupID != nil {
		q = q.Where("action_group_id = ?", *filter.ActionGroupID)
	}
	q = pagination.After(q, filter.Cursor)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var units []models.PurchaseUnit
	if err := q.Order("created_at ASC").Order("id ASC").Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}
