package balances

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tabkeeper-backend/pkg/db/models"
	"github.com/angelmondragon/tabkeeper-backend/pkg/enums"
	"github.com/angelmondragon/tabkeeper-backend/pkg/types"
)

// Outstanding is the two-tier view of what a user still owes.
type Outstanding struct {
	UnpaidTotal      decimal.Decimal
	Credit           decimal.Decimal
	Main             decimal.Decimal
	SinceLastPayment decimal.Decimal
	LastPaymentAt    *time.Time
}

// TimelineEntry is one purchase unit or payment in a user's history. Settled is set
// on purchases only.
type TimelineEntry struct {
	Type           enums.TimelineEntryType
	ID             uuid.UUID
	UserID         uuid.UUID
	ProductID      *uuid.UUID
	ActionGroupID  *uuid.UUID
	Timestamp      time.Time
	Amount         decimal.Decimal
	CumulativeCost decimal.Decimal
	CumulativePaid decimal.Decimal
	Settled        *bool
}

// ComputeOutstanding splits a user's unpaid units at the newest payment. Units after
// it form SinceLastPayment; the rest, reduced by manual payments made since the last
// settlement, form Main. Both figures are clamped at zero.
func ComputeOutstanding(unpaid []models.PurchaseUnit, payments []models.Payment) Outstanding {
	var (
		lastPayment    *time.Time
		lastSettlement *time.Time
	)
	for i := range payments {
		at := payments[i].CreatedAt
		if lastPayment == nil || at.After(*lastPayment) {
			lastPayment = &at
		}
		if payments[i].Kind == enums.PaymentKindSettlement && (lastSettlement == nil || at.After(*lastSettlement)) {
			lastSettlement = &at
		}
	}

	credit := decimal.Zero
	for _, p := range payments {
		if p.Kind == enums.PaymentKindSettlement {
			continue
		}
		if lastSettlement != nil && !p.CreatedAt.After(*lastSettlement) {
			continue
		}
		credit = credit.Add(p.Amount)
	}

	unpaidTotal := decimal.Zero
	since := decimal.Zero
	for _, u := range unpaid {
		unpaidTotal = unpaidTotal.Add(u.ChargeAtPurchase)
		if lastPayment == nil || u.CreatedAt.After(*lastPayment) {
			since = since.Add(u.ChargeAtPurchase)
		}
	}

	since = types.ClampZero(since)
	return Outstanding{
		UnpaidTotal:      unpaidTotal,
		Credit:           credit,
		Main:             types.ClampZero(unpaidTotal.Sub(since).Sub(credit)),
		SinceLastPayment: since,
		LastPaymentAt:    lastPayment,
	}
}

// BuildTimeline merges units and payments chronologically and walks them per user,
// marking each purchase settled once cumulative payments cover cumulative charges.
// Purchases sort before payments at the same instant.
func BuildTimeline(units []models.PurchaseUnit, payments []models.Payment) []TimelineEntry {
	entries := make([]TimelineEntry, 0, len(units)+len(payments))
	for _, u := range units {
		productID := u.ProductID
		groupID := u.ActionGroupID
		entries = append(entries, TimelineEntry{
			Type:          enums.TimelineEntryPurchase,
			ID:            u.ID,
			UserID:        u.UserID,
			ProductID:     &productID,
			ActionGroupID: &groupID,
			Timestamp:     u.CreatedAt,
			Amount:        u.ChargeAtPurchase,
		})
	}
	for _, p := range payments {
		entries = append(entries, TimelineEntry{
			Type:      enums.TimelineEntryPayment,
			ID:        p.ID,
			UserID:    p.UserID,
			Timestamp: p.CreatedAt,
			Amount:    p.Amount,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Type != b.Type {
			return a.Type == enums.TimelineEntryPurchase
		}
		return a.ID.String() < b.ID.String()
	})

	type running struct{ cost, paid decimal.Decimal }
	totals := make(map[uuid.UUID]*running)
	for i := range entries {
		e := &entries[i]
		r, ok := totals[e.UserID]
		if !ok {
			r = &running{cost: decimal.Zero, paid: decimal.Zero}
			totals[e.UserID] = r
		}
		switch e.Type {
		case enums.TimelineEntryPurchase:
			r.cost = r.cost.Add(e.Amount)
			settled := r.paid.GreaterThanOrEqual(r.cost)
			e.Settled = &settled
		case enums.TimelineEntryPayment:
			r.paid = r.paid.Add(e.Amount)
		}
		e.CumulativeCost = r.cost
		e.CumulativePaid = r.paid
	}
	return entries
}
