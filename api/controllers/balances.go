package controllers

import (
	"net/http"

	"github.com/angelmondragon/tabkeeper-backend/api/responses"
	"github.com/angelmondragon/tabkeeper-backend/api/validators"
	"github.com/angelmondragon/tabkeeper-backend/internal/balances"
	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
	"github.com/angelmondragon/tabkeeper-backend/pkg/logger"
	"github.com/angelmondragon/tabkeeper-backend/pkg/types"
)

func ListBalances(svc balances.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "balance service unavailable"))
			return
		}
		rows, err := svc.ListBalances(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]balanceSummary, 0, len(rows))
		for _, b := range rows {
			out = append(out, newBalanceSummary(b))
		}
		responses.WriteSuccess(w, out)
	}
}

func GetBalance(svc balances.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "balance service unavailable"))
			return
		}
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balance, err := svc.Outstanding(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newBalanceDetail(*balance))
	}
}

// Timeline is recomputed on every request.
func Timeline(svc balances.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "balance service unavailable"))
			return
		}
		userID, err := validators.ParseOptionalUUIDQuery(r, "user_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := svc.Timeline(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTimelineResponse(entries))
	}
}

type settleRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

type settleResponse struct {
	AmountSettled string  `json:"amount_settled"`
	UnitsSettled  int     `json:"units_settled"`
	PaymentID     *string `json:"payment_id,omitempty"`
}

func Settle(svc balances.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "balance service unavailable"))
			return
		}
		var payload settleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := validators.ParseUUID("user_id", payload.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Settle(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := settleResponse{AmountSettled: types.FormatMoney(result.Amount), UnitsSettled: result.UnitsSettled}
		if result.PaymentID != nil {
			id := result.PaymentID.String()
			resp.PaymentID = &id
		}
		responses.WriteSuccess(w, resp)
	}
}
