package allocator

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tabkeeper-backend/internal/batches"
	"github.com/angelmondragon/tabkeeper-backend/internal/catalog"
	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
)

// Service plans FIFO allocations and maintains the projected unit price. Methods
// taking a tx run inside the caller's transaction; a nil tx uses the base connection.
type Service struct {
	batches batches.Repository
	catalog catalog.Repository
}

// NewService wires an allocator over the batch and catalog repositories.
func NewService(batchRepo batches.Repository, catalogRepo catalog.Repository) (*Service, error) {
	if batchRepo == nil {
		return nil, errors.New("batch repository required")
	}
	if catalogRepo == nil {
		return nil, errors.New("catalog repository required")
	}
	return &Service{batches: batchRepo, catalog: catalogRepo}, nil
}

// Plan is the read-only preview of an allocation.
func (s *Service) Plan(ctx context.Context, productID uuid.UUID, qty int) ([]PlanEntry, error) {
	return s.PlanTx(ctx, nil, productID, qty)
}

// PlanTx computes a plan from a fresh read of available batches.
func (s *Service) PlanTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) ([]PlanEntry, error) {
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"quantity": qty})
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if _, err := s.catalog.WithTx(tx).FindProduct(ctx, productID); err != nil {
		return nil, err
	}
	available, err := s.batches.WithTx(tx).ListAvailable(ctx, productID)
	if err != nil {
		return nil, err
	}
	return BuildPlan(available, qty)
}

// ProjectUnitPrice stores the unit cost of the oldest batch with stock as the
// product's current price. With no stock left the cached price is kept and ok is false.
func (s *Service) ProjectUnitPrice(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (decimal.Decimal, bool, error) {
	available, err := s.batches.WithTx(tx).ListAvailable(ctx, productID)
	if err != nil {
		return decimal.Zero, false, err
	}
	if len(available) == 0 {
		return decimal.Zero, false, nil
	}
	price := available[0].UnitCost
	if err := s.catalog.WithTx(tx).UpdateUnitPrice(ctx, productID, price); err != nil {
		return decimal.Zero, false, err
	}
	return price, true, nil
}
