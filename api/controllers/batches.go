package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/tabkeeper-backend/api/responses"
	"github.com/angelmondragon/tabkeeper-backend/api/validators"
	"github.com/angelmondragon/tabkeeper-backend/internal/allocator"
	"github.com/angelmondragon/tabkeeper-backend/internal/batches"
	"github.com/angelmondragon/tabkeeper-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
	"github.com/angelmondragon/tabkeeper-backend/pkg/logger"
)

// Planner previews FIFO allocations without writing.
type Planner interface {
	Plan(ctx context.Context, productID uuid.UUID, qty int) ([]allocator.PlanEntry, error)
}

type depositRequest struct {
	Kind  string `json:"kind" validate:"required,oneof=bottle crate keg other"`
	Value string `json:"value" validate:"required"`
}

type addBatchRequest struct {
	ProductID string          `json:"product_id" validate:"required,uuid"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
	UnitCost  string          `json:"unit_cost" validate:"required"`
	Deposit   *depositRequest `json:"deposit,omitempty"`
}

func (p addBatchRequest) toInput() (batches.AddBatchInput, error) {
	productID, err := validators.ParseUUID("product_id", p.ProductID)
	if err != nil {
		return batches.AddBatchInput{}, err
	}
	cost, err := validators.ParseAmount("unit_cost", p.UnitCost)
	if err != nil {
		return batches.AddBatchInput{}, err
	}
	input := batches.AddBatchInput{ProductID: productID, Quantity: p.Quantity, UnitCost: cost}
	if p.Deposit != nil {
		kind, err := enums.ParseDepositKind(p.Deposit.Kind)
		if err != nil {
			return batches.AddBatchInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid deposit kind")
		}
		value, err := validators.ParseAmount("deposit.value", p.Deposit.Value)
		if err != nil {
			return batches.AddBatchInput{}, err
		}
		input.Deposit = &batches.Deposit{Kind: kind, Value: value}
	}
	return input, nil
}

// AddBatch receives a restock.
func AddBatch(svc batches.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "batch service unavailable"))
			return
		}
		var payload addBatchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		batch, err := svc.Add(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{"batch_id": batch.ID.String()})
	}
}

// ListBatches returns every batch of a product in FIFO order. available=true hides
// drained batches.
func ListBatches(svc batches.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "batch service unavailable"))
			return
		}
		productID, err := validators.ParseUUIDQuery(r, "product_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list := svc.List
		if r.URL.Query().Get("available") == "true" {
			list = svc.ListAvailable
		}
		rows, err := list(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]batchResponse, 0, len(rows))
		for _, b := range rows {
			out = append(out, newBatchResponse(b))
		}
		responses.WriteSuccess(w, out)
	}
}

// DeleteBatch removes a batch and re-projects the product price.
func DeleteBatch(svc batches.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "batch service unavailable"))
			return
		}
		batchID, err := validators.ParseUUIDParam(r, "batchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), batchID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

// PreviewPlan shows which batches a purchase of quantity units would drain.
func PreviewPlan(svc Planner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "allocator unavailable"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		qty, err := validators.ParseQueryInt(r, "quantity", 1, 1, 10000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		plan, err := svc.Plan(r.Context(), productID, qty)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPlanResponse(plan))
	}
}
