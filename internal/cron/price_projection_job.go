package cron

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/tabkeeper-backend/internal/catalog"
)

const PriceProjectionJobName = "price_projection"

type priceProjector interface {
	ProjectUnitPrice(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (decimal.Decimal, bool, error)
}

// PriceProjectionParams configure the price projection job.
type PriceProjectionParams struct {
	Tx        txRunner
	Catalog   catalog.Repository
	Projector priceProjector
}

// PriceProjectionJob re-derives every product's cached unit price from its oldest
// batch with stock. Each product is locked and projected in its own transaction so
// one failure does not hold back the rest.
type PriceProjectionJob struct {
	tx        txRunner
	catalog   catalog.Repository
	projector priceProjector
}

func NewPriceProjectionJob(params PriceProjectionParams) (*PriceProjectionJob, error) {
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Catalog == nil {
		return nil, errors.New("catalog repository required")
	}
	if params.Projector == nil {
		return nil, errors.New("price projector required")
	}
	return &PriceProjectionJob{tx: params.Tx, catalog: params.Catalog, projector: params.Projector}, nil
}

func (j *PriceProjectionJob) Name() string { return PriceProjectionJobName }

func (j *PriceProjectionJob) Run(ctx context.Context) (int64, error) {
	ids, err := j.catalog.ListProductIDs(ctx)
	if err != nil {
		return 0, err
	}
	var (
		updated  int64
		failures error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			multierr.AppendInto(&failures, ctx.Err())
			break
		}
		var projected bool
		err := j.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if _, err := j.catalog.WithTx(tx).LockProduct(ctx, id); err != nil {
				return err
			}
			var err error
			_, projected, err = j.projector.ProjectUnitPrice(ctx, tx, id)
			return err
		})
		if multierr.AppendInto(&failures, err) {
			continue
		}
		if projected {
			updated++
		}
	}
	return updated, failures
}
