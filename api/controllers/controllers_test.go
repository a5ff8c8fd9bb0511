package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tabkeeper-backend/internal/allocator"
	"github.com/angelmondragon/tabkeeper-backend/internal/balances"
	"github.com/angelmondragon/tabkeeper-backend/internal/batches"
	"github.com/angelmondragon/tabkeeper-backend/internal/ledger"
	"github.com/angelmondragon/tabkeeper-backend/internal/payments"
	"github.com/angelmondragon/tabkeeper-backend/pkg/db/models"
	"github.com/angelmondragon/tabkeeper-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
)

type ledgerStub struct {
	ledger.Service
	purchase func(ledger.LogPurchaseInput) (*ledger.PurchaseResult, error)
	undo     func(ledger.UndoInput) (*ledger.UndoResult, error)
	canUndo  func(*uuid.UUID) (bool, error)
}

func (s ledgerStub) LogPurchase(_ context.Context, in ledger.LogPurchaseInput) (*ledger.PurchaseResult, error) {
	return s.purchase(in)
}

func (s ledgerStub) UndoLastAction(_ context.Context, in ledger.UndoInput) (*ledger.UndoResult, error) {
	return s.undo(in)
}

func (s ledgerStub) CanUndo(_ context.Context, userID *uuid.UUID) (bool, error) {
	return s.canUndo(userID)
}

type batchStub struct {
	batches.Service
	add    func(batches.AddBatchInput) (*models.Batch, error)
	delete func(uuid.UUID) error
}

func (s batchStub) Add(_ context.Context, in batches.AddBatchInput) (*models.Batch, error) {
	return s.add(in)
}

func (s batchStub) Delete(_ context.Context, id uuid.UUID) error { return s.delete(id) }

type plannerStub func(uuid.UUID, int) ([]allocator.PlanEntry, error)

func (f plannerStub) Plan(_ context.Context, productID uuid.UUID, qty int) ([]allocator.PlanEntry, error) {
	return f(productID, qty)
}

type balanceStub struct {
	balances.Service
	outstanding func(uuid.UUID) (*balances.Balance, error)
	settle      func(uuid.UUID) (*balances.Settlement, error)
	timeline    func(*uuid.UUID) ([]balances.TimelineEntry, error)
}

func (s balanceStub) Outstanding(_ context.Context, id uuid.UUID) (*balances.Balance, error) {
	return s.outstanding(id)
}

func (s balanceStub) Settle(_ context.Context, id uuid.UUID) (*balances.Settlement, error) {
	return s.settle(id)
}

func (s balanceStub) Timeline(_ context.Context, id *uuid.UUID) ([]balances.TimelineEntry, error) {
	return s.timeline(id)
}

type paymentStub struct {
	payments.Service
	record func(payments.RecordPaymentInput) (*models.Payment, error)
	list   func(payments.ListFilter) (*payments.Page, error)
}

func (s paymentStub) Record(_ context.Context, in payments.RecordPaymentInput) (*models.Payment, error) {
	return s.record(in)
}

func (s paymentStub) List(_ context.Context, f payments.ListFilter) (*payments.Page, error) {
	return s.list(f)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func serve(t *testing.T, method, pattern, target, body string, h http.HandlerFunc, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	r := chi.NewRouter()
	r.Method(method, pattern, h)

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestLogPurchaseCreated(t *testing.T) {
	userID, productID, groupID := uuid.New(), uuid.New(), uuid.New()
	var got ledger.LogPurchaseInput
	svc := ledgerStub{purchase: func(in ledger.LogPurchaseInput) (*ledger.PurchaseResult, error) {
		got = in
		return &ledger.PurchaseResult{ActionGroupID: groupID, UnitsLogged: 3, ChargeTotal: decimal.RequireFromString("4.5")}, nil
	}}

	body := `{"user_id":"` + userID.String() + `","product_id":"` + productID.String() + `","quantity":3,"charge_price":"1.50"}`
	rec, env := serve(t, http.MethodPost, "/purchases", "/purchases", body, LogPurchase(svc, nil), "Idempotency-Key", " tap-1 ")

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "tap-1", got.IdempotencyKey)
	assert.Equal(t, 3, got.Quantity)
	require.NotNil(t, got.ChargePrice)
	assert.True(t, got.ChargePrice.Equal(decimal.RequireFromString("1.50")))

	var resp purchaseResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, groupID.String(), resp.ActionGroupID)
	assert.Equal(t, "4.50", resp.ChargeTotal)
	assert.False(t, resp.Replayed)
}

func TestLogPurchaseReplayReturnsOK(t *testing.T) {
	svc := ledgerStub{purchase: func(ledger.LogPurchaseInput) (*ledger.PurchaseResult, error) {
		return &ledger.PurchaseResult{ActionGroupID: uuid.New(), UnitsLogged: 1, Replayed: true}, nil
	}}
	body := `{"user_id":"` + uuid.NewString() + `","product_id":"` + uuid.NewString() + `","quantity":1}`
	rec, _ := serve(t, http.MethodPost, "/purchases", "/purchases", body, LogPurchase(svc, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogPurchaseRejectsBadBody(t *testing.T) {
	called := false
	svc := ledgerStub{purchase: func(ledger.LogPurchaseInput) (*ledger.PurchaseResult, error) {
		called = true
		return nil, nil
	}}
	rec, env := serve(t, http.MethodPost, "/purchases", "/purchases", `{"user_id":"nope","quantity":0}`, LogPurchase(svc, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.CodeValidation), env.Error.Code)
	assert.False(t, called)
}

func TestLogPurchaseMapsInsufficientStock(t *testing.T) {
	svc := ledgerStub{purchase: func(ledger.LogPurchaseInput) (*ledger.PurchaseResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock")
	}}
	body := `{"user_id":"` + uuid.NewString() + `","product_id":"` + uuid.NewString() + `","quantity":9}`
	rec, env := serve(t, http.MethodPost, "/purchases", "/purchases", body, LogPurchase(svc, nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.CodeInsufficientStock), env.Error.Code)
}

func TestUndoWithoutBody(t *testing.T) {
	groupID := uuid.New()
	var got ledger.UndoInput
	svc := ledgerStub{undo: func(in ledger.UndoInput) (*ledger.UndoResult, error) {
		got = in
		return &ledger.UndoResult{ActionGroupID: groupID, UnitsReversed: 2}, nil
	}}
	rec, env := serve(t, http.MethodPost, "/undo", "/undo", "", UndoLastAction(svc, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, got.UserID)
	var resp undoResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 2, resp.UnitsReversed)
	assert.Equal(t, groupID.String(), resp.ActionGroupID)
}

func TestUndoScopedToUser(t *testing.T) {
	userID := uuid.New()
	var got ledger.UndoInput
	svc := ledgerStub{undo: func(in ledger.UndoInput) (*ledger.UndoResult, error) {
		got = in
		return nil, pkgerrors.New(pkgerrors.CodeNothingToUndo, "nothing to undo")
	}}
	rec, env := serve(t, http.MethodPost, "/undo", "/undo", `{"user_id":"`+userID.String()+`"}`, UndoLastAction(svc, nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, got.UserID)
	assert.Equal(t, userID, *got.UserID)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.CodeNothingToUndo), env.Error.Code)
}

func TestCanUndo(t *testing.T) {
	svc := ledgerStub{canUndo: func(id *uuid.UUID) (bool, error) { return id == nil, nil }}
	rec, env := serve(t, http.MethodGet, "/undo", "/undo", "", CanUndo(svc, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"can_undo":true}`, string(env.Data))
}

func TestAddBatchWithDeposit(t *testing.T) {
	productID, batchID := uuid.New(), uuid.New()
	var got batches.AddBatchInput
	svc := batchStub{add: func(in batches.AddBatchInput) (*models.Batch, error) {
		got = in
		return &models.Batch{ID: batchID}, nil
	}}
	body := `{"product_id":"` + productID.String() + `","quantity":24,"unit_cost":"0.80","deposit":{"kind":"crate","value":"3.00"}}`
	rec, env := serve(t, http.MethodPost, "/batches", "/batches", body, AddBatch(svc, nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"batch_id":"`+batchID.String()+`"}`, string(env.Data))
	assert.Equal(t, productID, got.ProductID)
	require.NotNil(t, got.Deposit)
	assert.Equal(t, enums.DepositKindCrate, got.Deposit.Kind)
	assert.True(t, got.Deposit.Value.Equal(decimal.RequireFromString("3")))
}

func TestAddBatchRejectsUnknownDepositKind(t *testing.T) {
	svc := batchStub{}
	body := `{"product_id":"` + uuid.NewString() + `","quantity":1,"unit_cost":"1.00","deposit":{"kind":"can","value":"1"}}`
	rec, _ := serve(t, http.MethodPost, "/batches", "/batches", body, AddBatch(svc, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteBatch(t *testing.T) {
	batchID := uuid.New()
	var got uuid.UUID
	svc := batchStub{delete: func(id uuid.UUID) error {
		got = id
		return nil
	}}
	rec, _ := serve(t, http.MethodDelete, "/batches/{batchId}", "/batches/"+batchID.String(), "", DeleteBatch(svc, nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, batchID, got)
}

func TestDeleteBatchNotFound(t *testing.T) {
	svc := batchStub{delete: func(uuid.UUID) error { return pkgerrors.New(pkgerrors.CodeNotFound, "batch not found") }}
	rec, _ := serve(t, http.MethodDelete, "/batches/{batchId}", "/batches/"+uuid.NewString(), "", DeleteBatch(svc, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreviewPlan(t *testing.T) {
	productID, b1 := uuid.New(), uuid.New()
	planner := plannerStub(func(id uuid.UUID, qty int) ([]allocator.PlanEntry, error) {
		assert.Equal(t, productID, id)
		assert.Equal(t, 2, qty)
		return []allocator.PlanEntry{{BatchID: b1, Count: 2, UnitCost: decimal.RequireFromString("1")}}, nil
	})
	rec, env := serve(t, http.MethodGet, "/products/{productId}/plan", "/products/"+productID.String()+"/plan?quantity=2", "", PreviewPlan(planner, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"batch_id":"`+b1.String()+`","count":2,"unit_cost":"1.00"}]`, string(env.Data))
}

func TestGetBalance(t *testing.T) {
	userID := uuid.New()
	paidAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	svc := balanceStub{outstanding: func(id uuid.UUID) (*balances.Balance, error) {
		return &balances.Balance{UserID: id, UserName: "Ada", Outstanding: balances.Outstanding{
			UnpaidTotal:      decimal.RequireFromString("10"),
			Credit:           decimal.RequireFromString("4"),
			Main:             decimal.RequireFromString("6"),
			SinceLastPayment: decimal.Zero,
			LastPaymentAt:    &paidAt,
		}}, nil
	}}
	rec, env := serve(t, http.MethodGet, "/balances/{userId}", "/balances/"+userID.String(), "", GetBalance(svc, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "6.00", got["main"])
	assert.Equal(t, "0.00", got["since_last_payment"])
	assert.Equal(t, "10.00", got["unpaid_total"])
	assert.Equal(t, "Ada", got["user_name"])
}

func TestSettle(t *testing.T) {
	userID, paymentID := uuid.New(), uuid.New()
	svc := balanceStub{settle: func(id uuid.UUID) (*balances.Settlement, error) {
		return &balances.Settlement{UserID: id, Amount: decimal.RequireFromString("12"), UnitsSettled: 5, PaymentID: &paymentID}, nil
	}}
	rec, env := serve(t, http.MethodPost, "/settle", "/settle", `{"user_id":"`+userID.String()+`"}`, Settle(svc, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"amount_settled":"12.00","units_settled":5,"payment_id":"`+paymentID.String()+`"}`, string(env.Data))
}

func TestTimelinePassesUserFilter(t *testing.T) {
	userID := uuid.New()
	settled := true
	svc := balanceStub{timeline: func(id *uuid.UUID) ([]balances.TimelineEntry, error) {
		require.NotNil(t, id)
		assert.Equal(t, userID, *id)
		return []balances.TimelineEntry{{
			Type:    enums.TimelineEntryPurchase,
			ID:      uuid.New(),
			UserID:  userID,
			Amount:  decimal.RequireFromString("2"),
			Settled: &settled,
		}}, nil
	}}
	rec, env := serve(t, http.MethodGet, "/timeline", "/timeline?user_id="+userID.String(), "", Timeline(svc, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "2.00", got[0]["amount"])
	assert.Equal(t, true, got[0]["settled"])
}

func TestRecordPayment(t *testing.T) {
	userID, paymentID := uuid.New(), uuid.New()
	var got payments.RecordPaymentInput
	svc := paymentStub{record: func(in payments.RecordPaymentInput) (*models.Payment, error) {
		got = in
		return &models.Payment{ID: paymentID}, nil
	}}
	body := `{"user_id":"` + userID.String() + `","amount":"4.00","note":"cash"}`
	rec, env := serve(t, http.MethodPost, "/payments", "/payments", body, RecordPayment(svc, nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"payment_id":"`+paymentID.String()+`"}`, string(env.Data))
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("4")))
	require.NotNil(t, got.Note)
	assert.Equal(t, "cash", *got.Note)
}

func TestRecordPaymentRejectsBadAmount(t *testing.T) {
	rec, _ := serve(t, http.MethodPost, "/payments", "/payments", `{"user_id":"`+uuid.NewString()+`","amount":"lots"}`, RecordPayment(paymentStub{}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPayments(t *testing.T) {
	svc := paymentStub{list: func(f payments.ListFilter) (*payments.Page, error) {
		assert.Nil(t, f.UserID)
		return &payments.Page{
			Payments:   []models.Payment{{ID: uuid.New(), Amount: decimal.RequireFromString("1"), Kind: enums.PaymentKindSettlement}},
			NextCursor: "next",
		}, nil
	}}
	rec, env := serve(t, http.MethodGet, "/payments", "/payments", "", ListPayments(svc, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got pageResponse[paymentResponse]
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "1.00", got.Items[0].Amount)
	assert.Equal(t, enums.PaymentKindSettlement, got.Items[0].Kind)
	assert.Equal(t, "next", got.NextCursor)
}

func TestNilServiceIsInternalError(t *testing.T) {
	rec, env := serve(t, http.MethodGet, "/balances", "/balances", "", ListBalances(nil, nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.CodeInternal), env.Error.Code)
}
