package controllers

import (
	"net/http"

	"github.com/angelmondragon/tabkeeper-backend/api/responses"
	"github.com/angelmondragon/tabkeeper-backend/api/validators"
	"github.com/angelmondragon/tabkeeper-backend/internal/ledger"
	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
	"github.com/angelmondragon/tabkeeper-backend/pkg/logger"
)

type undoRequest struct {
	UserID *string `json:"user_id,omitempty" validate:"omitempty,uuid"`
}

type undoResponse struct {
	ActionGroupID  string `json:"action_group_id"`
	UnitsReversed  int    `json:"units_reversed"`
	BatchesCreated int    `json:"batches_created"`
}

// UndoLastAction reverses the newest undoable action group. The body is optional.
func UndoLastAction(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		var payload undoRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		var input ledger.UndoInput
		if payload.UserID != nil {
			id, err := validators.ParseUUID("user_id", *payload.UserID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.UserID = &id
		}

		result, err := svc.UndoLastAction(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, undoResponse{
			ActionGroupID:  result.ActionGroupID.String(),
			UnitsReversed:  result.UnitsReversed,
			BatchesCreated: result.BatchesCreated,
		})
	}
}

// CanUndo reports whether an undoable action group exists right now.
func CanUndo(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
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
		ok, err := svc.CanUndo(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"can_undo": ok})
	}
}
