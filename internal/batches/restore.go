package batches

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tabkeeper-backend/pkg/db/models"
)

// Restore puts qty units back on batchID, or creates a replacement batch at
// unitCost when the original was deleted. It reports whether a batch was created.
func Restore(ctx context.Context, repo Repository, productID, batchID uuid.UUID, qty int, unitCost decimal.Decimal, at time.Time) (bool, error) {
	found, err := repo.Increment(ctx, batchID, qty)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}
	replacement := &models.Batch{
		ProductID: productID,
		Quantity:  qty,
		UnitCost:  unitCost,
		CreatedAt: at,
	}
	if err := repo.Create(ctx, replacement); err != nil {
		return false, err
	}
	return true, nil
}
