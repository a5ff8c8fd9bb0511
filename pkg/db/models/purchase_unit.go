package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PurchaseUnit is one physical unit consumed by a user. Every unit written by one
// purchase call shares ActionGroupID and CreatedAt. Seq is handed out by the
// purchase sequence counter in commit order, one value per unit in FIFO plan order.
type PurchaseUnit struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index:idx_purchase_units_user_paid,priority:1"`
	ProductID        uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	BatchID          uuid.UUID       `gorm:"column:batch_id;type:uuid;not null"`
	CostAtPurchase   decimal.Decimal `gorm:"column:cost_at_purchase;type:numeric(12,2);not null"`
	ChargeAtPurchase decimal.Decimal `gorm:"column:charge_at_purchase;type:numeric(12,2);not null"`
	ActionGroupID    uuid.UUID       `gorm:"column:action_group_id;type:uuid;not null;index"`
	Paid             bool            `gorm:"column:paid;not null;default:false;index:idx_purchase_units_user_paid,priority:2"`
	Seq              int64           `gorm:"column:seq;not null;default:0;index"`
	CreatedAt        time.Time       `gorm:"column:created_at;not null;index"`
}

func (u *PurchaseUnit) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
