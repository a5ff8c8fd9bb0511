package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tabkeeper-backend/pkg/enums"
)

// Payment is a lump amount paid by a user. Immutable; delete is the only mutation.
// Manual payments count as credit until the next settlement.
type Payment struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index:idx_payments_user_created,priority:1"`
	Amount    decimal.Decimal   `gorm:"column:amount;type:numeric(12,2);not null"`
	Kind      enums.PaymentKind `gorm:"column:kind;type:text;not null;default:manual"`
	Note      *string           `gorm:"column:note"`
	CreatedAt time.Time         `gorm:"column:created_at;not null;index:idx_payments_user_created,priority:2"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Kind == "" {
		p.Kind = enums.PaymentKindManual
	}
	return nil
}
