package allocator

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tabkeeper-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
)

// PlanEntry consumes Count units from one batch.
type PlanEntry struct {
	BatchID  uuid.UUID       `json:"batch_id"`
	Count    int             `json:"count"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// BuildPlan drains batches oldest first. batches must already be in FIFO order and
// hold only positive quantities. Nothing is returned unless qty can be met in full.
func BuildPlan(batches []models.Batch, qty int) ([]PlanEntry, error) {
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"quantity": qty})
	}

	available := 0
	for _, b := range batches {
		available += b.Quantity
	}
	if available < qty {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock for this product").
			WithDetails(map[string]any{"requested": qty, "available": available})
	}

	plan := make([]PlanEntry, 0, len(batches))
	remaining := qty
	for _, b := range batches {
		if remaining == 0 {
			break
		}
		if b.Quantity <= 0 {
			continue
		}
		count := min(remaining, b.Quantity)
		plan = append(plan, PlanEntry{BatchID: b.ID, Count: count, UnitCost: b.UnitCost})
		remaining -= count
	}
	return plan, nil
}

// Units is the total number of units the plan consumes.
func Units(plan []PlanEntry) int {
	total := 0
	for _, entry := range plan {
		total += entry.Count
	}
	return total
}
