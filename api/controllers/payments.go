package controllers

import (
	"net/http"

	"github.com/angelmondragon/tabkeeper-backend/api/responses"
	"github.com/angelmondragon/tabkeeper-backend/api/validators"
	"github.com/angelmondragon/tabkeeper-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
	"github.com/angelmondragon/tabkeeper-backend/pkg/logger"
)

type recordPaymentRequest struct {
	UserID string  `json:"user_id" validate:"required,uuid"`
	Amount string  `json:"amount" validate:"required"`
	Note   *string `json:"note,omitempty"`
}

func RecordPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		var payload recordPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := validators.ParseUUID("user_id", payload.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := validators.ParseAmount("amount", payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payment, err := svc.Record(r.Context(), payments.RecordPaymentInput{UserID: userID, Amount: amount, Note: payload.Note})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{"payment_id": payment.ID.String()})
	}
}

func ListPayments(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		userID, err := validators.ParseOptionalUUIDQuery(r, "user_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, cursor, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), payments.ListFilter{UserID: userID, Cursor: cursor, Limit: limit})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]paymentResponse, 0, len(page.Payments))
		for _, p := range page.Payments {
			items = append(items, newPaymentResponse(p))
		}
		responses.WriteSuccess(w, pageResponse[paymentResponse]{Items: items, NextCursor: page.NextCursor})
	}
}

// DeletePayment removes a payment row. Settled units stay paid.
func DeletePayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		paymentID, err := validators.ParseUUIDParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), paymentID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
