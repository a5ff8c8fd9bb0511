package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tabkeeper-backend/api/responses"
	"github.com/angelmondragon/tabkeeper-backend/api/validators"
	"github.com/angelmondragon/tabkeeper-backend/internal/ledger"
	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
	"github.com/angelmondragon/tabkeeper-backend/pkg/logger"
	"github.com/angelmondragon/tabkeeper-backend/pkg/types"
)

const idempotencyHeader = "Idempotency-Key"

type logPurchaseRequest struct {
	UserID      string  `json:"user_id" validate:"required,uuid"`
	ProductID   string  `json:"product_id" validate:"required,uuid"`
	Quantity    int     `json:"quantity" validate:"required,min=1"`
	ChargePrice *string `json:"charge_price,omitempty"`
}

type purchaseResponse struct {
	ActionGroupID string `json:"action_group_id"`
	UnitsLogged   int    `json:"units_logged"`
	ChargeTotal   string `json:"charge_total"`
	Replayed      bool   `json:"replayed"`
}

// LogPurchase records one purchase call as a single action group.
func LogPurchase(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		var payload logPurchaseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID, err := validators.ParseUUID("user_id", payload.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUID("product_id", payload.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := ledger.LogPurchaseInput{
			UserID:         userID,
			ProductID:      productID,
			Quantity:       payload.Quantity,
			IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyHeader)),
		}
		if payload.ChargePrice != nil {
			var charge decimal.Decimal
			if charge, err = validators.ParseAmount("charge_price", *payload.ChargePrice); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.ChargePrice = &charge
		}

		result, err := svc.LogPurchase(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, purchaseResponse{
			ActionGroupID: result.ActionGroupID.String(),
			UnitsLogged:   result.UnitsLogged,
			ChargeTotal:   types.FormatMoney(result.ChargeTotal),
			Replayed:      result.Replayed,
		})
	}
}

// ListPurchaseUnits pages through ledger units, optionally for one user.
func ListPurchaseUnits(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		userID, err := validators.ParseOptionalUUIDQuery(r, "user_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		groupID, err := validators.ParseOptionalUUIDQuery(r, "action_group_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, cursor, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListUnits(r.Context(), ledger.UnitFilter{UserID: userID, ActionGroupID: groupID, Cursor: cursor, Limit: limit})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]unitResponse, 0, len(page.Units))
		for _, u := range page.Units {
			items = append(items, newUnitResponse(u))
		}
		responses.WriteSuccess(w, pageResponse[unitResponse]{Items: items, NextCursor: page.NextCursor})
	}
}
