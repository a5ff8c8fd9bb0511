package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseLoggedEvent is emitted once per committed purchase action group.
type PurchaseLoggedEvent struct {
	ActionGroupID uuid.UUID       `json:"action_group_id"`
	UserID        uuid.UUID       `json:"user_id"`
	ProductID     uuid.UUID       `json:"product_id"`
	ProductName   string          `json:"product_name"`
	UnitsLogged   int             `json:"units_logged"`
	ChargeTotal   decimal.Decimal `json:"charge_total"`
	LoggedAt      time.Time       `json:"logged_at"`
}

// PurchaseUndoneEvent is emitted when an action group is reversed.
type PurchaseUndoneEvent struct {
	ActionGroupID uuid.UUID   `json:"action_group_id"`
	UserID        uuid.UUID   `json:"user_id"`
	ProductIDs    []uuid.UUID `json:"product_ids"`
	UnitsReversed int         `json:"units_reversed"`
	RestoredToNew int         `json:"restored_to_new_batches"`
	UndoneAt      time.Time   `json:"undone_at"`
}

// BatchAddedEvent is emitted when stock is received.
type BatchAddedEvent struct {
	BatchID   uuid.UUID       `json:"batch_id"`
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// BatchDeletedEvent is emitted when a batch is removed.
type BatchDeletedEvent struct {
	BatchID   uuid.UUID `json:"batch_id"`
	ProductID uuid.UUID `json:"product_id"`
	Remaining int       `json:"remaining"`
}

// PaymentRecordedEvent is emitted for manual payments and settlements.
type PaymentRecordedEvent struct {
	PaymentID uuid.UUID       `json:"payment_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// PaymentDeletedEvent is emitted when a payment row is removed.
type PaymentDeletedEvent struct {
	PaymentID uuid.UUID       `json:"payment_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// TabSettledEvent is emitted when a user's unpaid units are flipped to paid.
type TabSettledEvent struct {
	UserID       uuid.UUID       `json:"user_id"`
	PaymentID    uuid.UUID       `json:"payment_id"`
	Amount       decimal.Decimal `json:"amount"`
	UnitsSettled int             `json:"units_settled"`
}
