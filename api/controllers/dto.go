package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tabkeeper-backend/internal/allocator"
	"github.com/angelmondragon/tabkeeper-backend/internal/balances"
	"github.com/angelmondragon/tabkeeper-backend/pkg/db/models"
	"github.com/angelmondragon/tabkeeper-backend/pkg/enums"
	"github.com/angelmondragon/tabkeeper-backend/pkg/types"
)

// Money travels as fixed two-decimal strings.

type batchResponse struct {
	ID           uuid.UUID          `json:"id"`
	ProductID    uuid.UUID          `json:"product_id"`
	Quantity     int                `json:"quantity"`
	UnitCost     string             `json:"unit_cost"`
	DepositKind  *enums.DepositKind `json:"deposit_kind,omitempty"`
	DepositValue string             `json:"deposit_value"`
	CreatedAt    time.Time          `json:"created_at"`
}

func newBatchResponse(b models.Batch) batchResponse {
	return batchResponse{
		ID:           b.ID,
		ProductID:    b.ProductID,
		Quantity:     b.Quantity,
		UnitCost:     types.FormatMoney(b.UnitCost),
		DepositKind:  b.DepositKind,
		DepositValue: types.FormatMoney(b.DepositValue),
		CreatedAt:    b.CreatedAt,
	}
}

type planEntryResponse struct {
	BatchID  uuid.UUID `json:"batch_id"`
	Count    int       `json:"count"`
	UnitCost string    `json:"unit_cost"`
}

func newPlanResponse(plan []allocator.PlanEntry) []planEntryResponse {
	out := make([]planEntryResponse, 0, len(plan))
	for _, e := range plan {
		out = append(out, planEntryResponse{BatchID: e.BatchID, Count: e.Count, UnitCost: types.FormatMoney(e.UnitCost)})
	}
	return out
}

type balanceSummary struct {
	UserID           uuid.UUID `json:"user_id"`
	UserName         string    `json:"user_name"`
	Main             string    `json:"main"`
	SinceLastPayment string    `json:"since_last_payment"`
}

type balanceDetail struct {
	balanceSummary
	UnpaidTotal   string     `json:"unpaid_total"`
	Credit        string     `json:"credit"`
	LastPaymentAt *time.Time `json:"last_payment_at"`
}

func newBalanceSummary(b balances.Balance) balanceSummary {
	return balanceSummary{
		UserID:           b.UserID,
		UserName:         b.UserName,
		Main:             types.FormatMoney(b.Main),
		SinceLastPayment: types.FormatMoney(b.SinceLastPayment),
	}
}

func newBalanceDetail(b balances.Balance) balanceDetail {
	return balanceDetail{
		balanceSummary: newBalanceSummary(b),
		UnpaidTotal:    types.FormatMoney(b.UnpaidTotal),
		Credit:         types.FormatMoney(b.Credit),
		LastPaymentAt:  b.LastPaymentAt,
	}
}

type timelineEntryResponse struct {
	Type           enums.TimelineEntryType `json:"type"`
	ID             uuid.UUID               `json:"id"`
	UserID         uuid.UUID               `json:"user_id"`
	ProductID      *uuid.UUID              `json:"product_id,omitempty"`
	ActionGroupID  *uuid.UUID              `json:"action_group_id,omitempty"`
	Timestamp      time.Time               `json:"timestamp"`
	Amount         string                  `json:"amount"`
	CumulativeCost string                  `json:"cumulative_cost"`
	CumulativePaid string                  `json:"cumulative_paid"`
	Settled        *bool                   `json:"settled,omitempty"`
}

func newTimelineResponse(entries []balances.TimelineEntry) []timelineEntryResponse {
	out := make([]timelineEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, timelineEntryResponse{
			Type:           e.Type,
			ID:             e.ID,
			UserID:         e.UserID,
			ProductID:      e.ProductID,
			ActionGroupID:  e.ActionGroupID,
			Timestamp:      e.Timestamp,
			Amount:         types.FormatMoney(e.Amount),
			CumulativeCost: types.FormatMoney(e.CumulativeCost),
			CumulativePaid: types.FormatMoney(e.CumulativePaid),
			Settled:        e.Settled,
		})
	}
	return out
}

type paymentResponse struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"user_id"`
	Amount    string            `json:"amount"`
	Kind      enums.PaymentKind `json:"kind"`
	Note      *string           `json:"note,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func newPaymentResponse(p models.Payment) paymentResponse {
	return paymentResponse{
		ID:        p.ID,
		UserID:    p.UserID,
		Amount:    types.FormatMoney(p.Amount),
		Kind:      p.Kind,
		Note:      p.Note,
		CreatedAt: p.CreatedAt,
	}
}

type unitResponse struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	ProductID        uuid.UUID `json:"product_id"`
	BatchID          uuid.UUID `json:"batch_id"`
	CostAtPurchase   string    `json:"cost_at_purchase"`
	ChargeAtPurchase string    `json:"charge_at_purchase"`
	ActionGroupID    uuid.UUID `json:"action_group_id"`
	Paid             bool      `json:"paid"`
	CreatedAt        time.Time `json:"created_at"`
}

func newUnitResponse(u models.PurchaseUnit) unitResponse {
	return unitResponse{
		ID:               u.ID,
		UserID:           u.UserID,
		ProductID:        u.ProductID,
		BatchID:          u.BatchID,
		CostAtPurchase:   types.FormatMoney(u.CostAtPurchase),
		ChargeAtPurchase: types.FormatMoney(u.ChargeAtPurchase),
		ActionGroupID:    u.ActionGroupID,
		Paid:             u.Paid,
		CreatedAt:        u.CreatedAt,
	}
}

type pageResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}
