package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tabkeeper-backend/pkg/enums"
)

// Batch is a restock lot. Only Quantity changes after creation; CreatedAt then ID
// define FIFO order.
type Batch struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ProductID    uuid.UUID          `gorm:"column:product_id;type:uuid;not null;index:idx_batches_fifo,priority:1"`
	Quantity     int                `gorm:"column:quantity;not null;default:0;check:chk_batches_quantity,quantity >= 0"`
	UnitCost     decimal.Decimal    `gorm:"column:unit_cost;type:numeric(12,2);not null"`
	DepositKind  *enums.DepositKind `gorm:"column:deposit_kind;type:text"`
	DepositValue decimal.Decimal    `gorm:"column:deposit_value;type:numeric(12,2);not null;default:0"`
	CreatedAt    time.Time          `gorm:"column:created_at;not null;index:idx_batches_fifo,priority:2"`
}

func (b *Batch) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return nil
}
