package enums

import "fmt"

// OutboxAggregateType identifies the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateActionGroup OutboxAggregateType = "action_group"
	AggregateBatch       OutboxAggregateType = "batch"
	AggregatePayment     OutboxAggregateType = "payment"
	AggregateUser        OutboxAggregateType = "user"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateActionGroup,
	AggregateBatch,
	AggregatePayment,
	AggregateUser,
}

// IsValid reports whether the value matches the canonical aggregate types.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType names the domain events written to the outbox.
type OutboxEventType string

const (
	EventPurchaseLogged  OutboxEventType = "purchase_logged"
	EventPurchaseUndone  OutboxEventType = "purchase_undone"
	EventBatchAdded      OutboxEventType = "batch_added"
	EventBatchDeleted    OutboxEventType = "batch_deleted"
	EventPaymentRecorded OutboxEventType = "payment_recorded"
	EventPaymentDeleted  OutboxEventType = "payment_deleted"
	EventTabSettled      OutboxEventType = "tab_settled"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPurchaseLogged,
	EventPurchaseUndone,
	EventBatchAdded,
	EventBatchDeleted,
	EventPaymentRecorded,
	EventPaymentDeleted,
	EventTabSettled,
}

// IsValid reports whether the value matches the canonical event types.
func (t OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
