package batches

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tabkeeper-backend/internal/catalog"
	"github.com/angelmondragon/tabkeeper-backend/pkg/db/models"
	"github.com/angelmondragon/tabkeeper-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
	"github.com/angelmondragon/tabkeeper-backend/pkg/logger"
	"github.com/angelmondragon/tabkeeper-backend/pkg/outbox"
	"github.com/angelmondragon/tabkeeper-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tabkeeper-backend/pkg/types"
)

// Service defines the restock-facing batch operations.
type Service interface {
	Add(ctx context.Context, input AddBatchInput) (*models.Batch, error)
	Delete(ctx context.Context, batchID uuid.UUID) error
	List(ctx context.Context, productID uuid.UUID) ([]models.Batch, error)
	ListAvailable(ctx context.Context, productID uuid.UUID) ([]models.Batch, error)
}

// PriceProjector refreshes a product's cached unit price after a stock mutation.
type PriceProjector interface {
	ProjectUnitPrice(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (decimal.Decimal, bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Deposit describes the returnable container attached to a batch.
type Deposit struct {
	Kind  enums.DepositKind
	Value decimal.Decimal
}

// AddBatchInput captures a restock.
type AddBatchInput struct {
	ProductID uuid.UUID
	Quantity  int
	UnitCost  decimal.Decimal
	Deposit   *Deposit
}

// ServiceParams groups the batch service dependencies.
type ServiceParams struct {
	Repo      Repository
	Catalog   catalog.Repository
	Projector PriceProjector
	Tx        txRunner
	Outbox    outbox.Emitter
	Logger    *logger.Logger
	Clock     types.Clock
}

type service struct {
	repo      Repository
	catalog   catalog.Repository
	projector PriceProjector
	tx        txRunner
	outbox    outbox.Emitter
	logg      *logger.Logger
	now       types.Clock
}

// NewService wires the batch service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("batch repository required")
	}
	if params.Catalog == nil {
		return nil, errors.New("catalog repository required")
	}
	if params.Projector == nil {
		return nil, errors.New("price projector required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	clock := params.Clock
	if clock == nil {
		clock = types.SystemClock
	}
	return &service{
		repo:      params.Repo,
		catalog:   params.Catalog,
		projector: params.Projector,
		tx:        params.Tx,
		outbox:    params.Outbox,
		logg:      params.Logger,
		now:       clock,
	}, nil
}

func (s *service) Add(ctx context.Context, input AddBatchInput) (*models.Batch, error) {
	if err := validateAdd(input); err != nil {
		return nil, err
	}

	batch := &models.Batch{
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		UnitCost:  input.UnitCost,
	}
	if input.Deposit != nil {
		kind := input.Deposit.Kind
		batch.DepositKind = &kind
		batch.DepositValue = input.Deposit.Value
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.catalog.WithTx(tx).LockProduct(ctx, input.ProductID); err != nil {
			return err
		}
		batch.CreatedAt = s.now()
		if err := s.repo.WithTx(tx).Create(ctx, batch); err != nil {
			return err
		}
		if _, _, err := s.projector.ProjectUnitPrice(ctx, tx, input.ProductID); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBatchAdded,
			AggregateType: enums.AggregateBatch,
			AggregateID:   batch.ID,
			OccurredAt:    batch.CreatedAt,
			Data: payloads.BatchAddedEvent{
				BatchID:   batch.ID,
				ProductID: batch.ProductID,
				Quantity:  batch.Quantity,
				UnitCost:  batch.UnitCost,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx, "batches.added", map[string]any{
		"batch_id":   batch.ID.String(),
		"product_id": batch.ProductID.String(),
		"quantity":   batch.Quantity,
		"unit_cost":  types.FormatMoney(batch.UnitCost),
	})
	return batch, nil
}

func validateAdd(input AddBatchInput) error {
	if input.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if input.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
			WithDetails(map[string]any{"quantity": input.Quantity})
	}
	if input.UnitCost.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit_cost must not be negative")
	}
	if !types.IsMoney(input.UnitCost) {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit_cost supports at most two decimals")
	}
	if input.Deposit != nil {
		if !input.Deposit.Kind.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid deposit kind").
				WithDetails(map[string]any{"kind": input.Deposit.Kind})
		}
		if input.Deposit.Value.IsNegative() || !types.IsMoney(input.Deposit.Value) {
			return pkgerrors.New(pkgerrors.CodeValidation, "deposit value must be a non-negative amount")
		}
	}
	return nil
}

// Delete removes a batch regardless of its remaining quantity. Units already
// allocated from it stay billed at their recorded cost.
func (s *service) Delete(ctx context.Context, batchID uuid.UUID) error {
	if batchID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "batch id is required")
	}

	var deleted *models.Batch
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		batch, err := repo.FindByID(ctx, batchID)
		if err != nil {
			return err
		}
		if _, err := s.catalog.WithTx(tx).LockProduct(ctx, batch.ProductID); err != nil {
			return err
		}
		if err := repo.Delete(ctx, batchID); err != nil {
			return err
		}
		if _, _, err := s.projector.ProjectUnitPrice(ctx, tx, batch.ProductID); err != nil {
			return err
		}
		deleted = batch
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBatchDeleted,
			AggregateType: enums.AggregateBatch,
			AggregateID:   batch.ID,
			OccurredAt:    s.now(),
			Data: payloads.BatchDeletedEvent{
				BatchID:   batch.ID,
				ProductID: batch.ProductID,
				Remaining: batch.Quantity,
			},
		})
	})
	if err != nil {
		return err
	}

	s.log(ctx, "batches.deleted", map[string]any{
		"batch_id":   deleted.ID.String(),
		"product_id": deleted.ProductID.String(),
		"remaining":  deleted.Quantity,
	})
	return nil
}

func (s *service) List(ctx context.Context, productID uuid.UUID) ([]models.Batch, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if _, err := s.catalog.FindProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListByProduct(ctx, productID)
}

func (s *service) ListAvailable(ctx context.Context, productID uuid.UUID) ([]models.Batch, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	return s.repo.ListAvailable(ctx, productID)
}

func (s *service) log(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}
