package balances

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tabkeeper-backend/internal/catalog"
	"github.com/angelmondragon/tabkeeper-backend/internal/payments"
	"github.com/angelmondragon/tabkeeper-backend/pkg/db/models"
	"github.com/angelmondragon/tabkeeper-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
	"github.com/angelmondragon/tabkeeper-backend/pkg/logger"
	"github.com/angelmondragon/tabkeeper-backend/pkg/metrics"
	"github.com/angelmondragon/tabkeeper-backend/pkg/outbox"
	"github.com/angelmondragon/tabkeeper-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tabkeeper-backend/pkg/types"
)

// Service answers balance questions and settles tabs.
type Service interface {
	UnpaidTotal(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	LastPaymentAt(ctx context.Context, userID uuid.UUID) (*time.Time, error)
	OpenSincePayment(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	Outstanding(ctx context.Context, userID uuid.UUID) (*Balance, error)
	ListBalances(ctx context.Context) ([]Balance, error)
	Settle(ctx context.Context, userID uuid.UUID) (*Settlement, error)
	Timeline(ctx context.Context, userID *uuid.UUID) ([]TimelineEntry, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Balance is the outstanding view of one user.
type Balance struct {
	UserID   uuid.UUID
	UserName string
	Outstanding
}

// Settlement describes a settle call. PaymentID is nil when nothing was owed.
type Settlement struct {
	UserID       uuid.UUID
	Amount       decimal.Decimal
	UnitsSettled int
	PaymentID    *uuid.UUID
}

// ServiceParams groups the balance service dependencies. Metrics is optional.
type ServiceParams struct {
	Repo     Repository
	Payments payments.Repository
	Catalog  catalog.Repository
	Tx       txRunner
	Outbox   outbox.Emitter
	Metrics  *metrics.LedgerMetrics
	Logger   *logger.Logger
	Clock    types.Clock
}

type service struct {
	repo     Repository
	payments payments.Repository
	catalog  catalog.Repository
	tx       txRunner
	outbox   outbox.Emitter
	metrics  *metrics.LedgerMetrics
	logg     *logger.Logger
	now      types.Clock
}

// NewService wires the balance service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("balance repository required")
	}
	if params.Payments == nil {
		return nil, errors.New("payment repository required")
	}
	if params.Catalog == nil {
		return nil, errors.New("catalog repository required")
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
		repo:     params.Repo,
		payments: params.Payments,
		catalog:  params.Catalog,
		tx:       params.Tx,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      clock,
	}, nil
}

func (s *service) UnpaidTotal(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	out, err := s.outstanding(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return out.UnpaidTotal, nil
}

func (s *service) LastPaymentAt(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	return s.payments.LastPaymentAt(ctx, userID)
}

func (s *service) OpenSincePayment(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	out, err := s.outstanding(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return out.SinceLastPayment, nil
}

func (s *service) Outstanding(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	user, err := s.catalog.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out, err := s.outstanding(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Balance{UserID: user.ID, UserName: user.Name, Outstanding: out}, nil
}

func (s *service) outstanding(ctx context.Context, userID uuid.UUID) (Outstanding, error) {
	unpaid, err := s.repo.ListUnpaid(ctx, &userID)
	if err != nil {
		return Outstanding{}, err
	}
	history, err := s.payments.List(ctx, payments.ListFilter{UserID: &userID})
	if err != nil {
		return Outstanding{}, err
	}
	return ComputeOutstanding(unpaid, history), nil
}

// ListBalances covers every directory user, including those with no history.
func (s *service) ListBalances(ctx context.Context) ([]Balance, error) {
	users, err := s.catalog.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	unpaid, err := s.repo.ListUnpaid(ctx, nil)
	if err != nil {
		return nil, err
	}
	history, err := s.payments.List(ctx, payments.ListFilter{})
	if err != nil {
		return nil, err
	}

	unitsByUser := make(map[uuid.UUID][]models.PurchaseUnit, len(users))
	for _, u := range unpaid {
		unitsByUser[u.UserID] = append(unitsByUser[u.UserID], u)
	}
	paymentsByUser := make(map[uuid.UUID][]models.Payment, len(users))
	for _, p := range history {
		paymentsByUser[p.UserID] = append(paymentsByUser[p.UserID], p)
	}

	out := make([]Balance, 0, len(users))
	for _, user := range users {
		out = append(out, Balance{
			UserID:      user.ID,
			UserName:    user.Name,
			Outstanding: ComputeOutstanding(unitsByUser[user.ID], paymentsByUser[user.ID]),
		})
	}
	return out, nil
}

// Settle marks every unpaid unit of the user as paid and records one settlement
// payment for their total. Nothing is written when nothing is owed.
func (s *service) Settle(ctx context.Context, userID uuid.UUID) (result *Settlement, err error) {
	started := time.Now()
	defer func() {
		units := 0
		if result != nil {
			units = result.UnitsSettled
		}
		s.metrics.Observe(metrics.OpSettle, metrics.Outcome(err), units, time.Since(started))
	}()

	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id is required")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.catalog.WithTx(tx).FindUser(ctx, userID); err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		unpaid, err := repo.ListUnpaid(ctx, &userID)
		if err != nil {
			return err
		}
		total := decimal.Zero
		ids := make([]uuid.UUID, 0, len(unpaid))
		for _, u := range unpaid {
			total = total.Add(u.ChargeAtPurchase)
			ids = append(ids, u.ID)
		}
		if !total.IsPositive() {
			result = &Settlement{UserID: userID, Amount: decimal.Zero}
			return nil
		}

		flipped, err := repo.MarkPaid(ctx, ids)
		if err != nil {
			return err
		}
		if flipped != int64(len(ids)) {
			return pkgerrors.New(pkgerrors.CodeConflict, "tab changed while settling").
				WithDetails(map[string]any{"expected": len(ids), "flipped": flipped})
		}

		payment := &models.Payment{
			UserID:    userID,
			Amount:    total,
			Kind:      enums.PaymentKindSettlement,
			CreatedAt: s.now(),
		}
		if err := s.payments.WithTx(tx).Create(ctx, payment); err != nil {
			return err
		}
		paymentID := payment.ID
		result = &Settlement{UserID: userID, Amount: total, UnitsSettled: len(ids), PaymentID: &paymentID}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTabSettled,
			AggregateType: enums.AggregateUser,
			AggregateID:   userID,
			Actor:         &outbox.ActorRef{UserID: userID},
			OccurredAt:    payment.CreatedAt,
			Data: payloads.TabSettledEvent{
				UserID:       userID,
				PaymentID:    payment.ID,
				Amount:       total,
				UnitsSettled: len(ids),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if result.PaymentID != nil && s.logg != nil {
		logCtx := s.logg.WithUserID(ctx, userID.String())
		s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
			"payment_id": result.PaymentID.String(),
			"amount":     types.FormatMoney(result.Amount),
			"units":      result.UnitsSettled,
		}), "balances.settled")
	}
	return result, nil
}

// Timeline rebuilds the purchase and payment history on every call. A nil userID
// returns all users interleaved, each with its own running totals.
func (s *service) Timeline(ctx context.Context, userID *uuid.UUID) ([]TimelineEntry, error) {
	if userID != nil {
		if _, err := s.catalog.FindUser(ctx, *userID); err != nil {
			return nil, err
		}
	}
	units, err := s.repo.ListUnits(ctx, userID)
	if err != nil {
		return nil, err
	}
	history, err := s.payments.List(ctx, payments.ListFilter{UserID: userID})
	if err != nil {
		return nil, err
	}
	return BuildTimeline(units, history), nil
}
