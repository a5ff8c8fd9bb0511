package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tabkeeper-backend/internal/catalog"
	"github.com/angelmondragon/tabkeeper-backend/pkg/db/models"
	"github.com/angelmondragon/tabkeeper-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
	"github.com/angelmondragon/tabkeeper-backend/pkg/logger"
	"github.com/angelmondragon/tabkeeper-backend/pkg/outbox"
	"github.com/angelmondragon/tabkeeper-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tabkeeper-backend/pkg/pagination"
	"github.com/angelmondragon/tabkeeper-backend/pkg/types"
)

const maxNoteLength = 280

// Service records and removes lump payments. Payments never touch the paid flag of
// purchase units; only settlement does.
type Service interface {
	Record(ctx context.Context, input RecordPaymentInput) (*models.Payment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ListFilter) (*Page, error)
	LastPaymentAt(ctx context.Context, userID uuid.UUID) (*time.Time, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RecordPaymentInput captures a manual payment.
type RecordPaymentInput struct {
	UserID uuid.UUID
	Amount decimal.Decimal
	Note   *string
}

// Page is one page of payments in ascending order.
type Page struct {
	Payments   []models.Payment
	NextCursor string
}

// ServiceParams groups the payment service dependencies.
type ServiceParams struct {
	Repo    Repository
	Catalog catalog.Repository
	Tx      txRunner
	Outbox  outbox.Emitter
	Logger  *logger.Logger
	Clock   types.Clock
}

type service struct {
	repo    Repository
	catalog catalog.Repository
	tx      txRunner
	outbox  outbox.Emitter
	logg    *logger.Logger
	now     types.Clock
}

// NewService wires the payment service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
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
		repo:    params.Repo,
		catalog: params.Catalog,
		tx:      params.Tx,
		outbox:  params.Outbox,
		logg:    params.Logger,
		now:     clock,
	}, nil
}

func (s *service) Record(ctx context.Context, input RecordPaymentInput) (*models.Payment, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id is required")
	}
	if !input.Amount.IsPositive() || !types.IsMoney(input.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be a positive amount with at most two decimals").
			WithDetails(map[string]any{"amount": input.Amount.String()})
	}
	note := normalizeNote(input.Note)
	if note != nil && len(*note) > maxNoteLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "note is too long").
			WithDetails(map[string]any{"max_length": maxNoteLength})
	}

	payment := &models.Payment{UserID: input.UserID, Amount: input.Amount, Kind: enums.PaymentKindManual, Note: note}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.catalog.WithTx(tx).FindUser(ctx, input.UserID); err != nil {
			return err
		}
		payment.CreatedAt = s.now()
		if err := s.repo.WithTx(tx).Create(ctx, payment); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRecorded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         &outbox.ActorRef{UserID: payment.UserID},
			OccurredAt:    payment.CreatedAt,
			Data: payloads.PaymentRecordedEvent{
				PaymentID: payment.ID,
				UserID:    payment.UserID,
				Amount:    payment.Amount,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx, "payments.recorded", map[string]any{
		"payment_id": payment.ID.String(),
		"user_id":    payment.UserID.String(),
		"amount":     types.FormatMoney(payment.Amount),
	})
	return payment, nil
}

// Delete removes a payment. Units settled alongside it stay paid.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	var deleted *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		deleted = payment
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentDeleted,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         &outbox.ActorRef{UserID: payment.UserID},
			OccurredAt:    s.now(),
			Data: payloads.PaymentDeletedEvent{
				PaymentID: payment.ID,
				UserID:    payment.UserID,
				Amount:    payment.Amount,
			},
		})
	})
	if err != nil {
		return err
	}

	s.log(ctx, "payments.deleted", map[string]any{
		"payment_id": deleted.ID.String(),
		"user_id":    deleted.UserID.String(),
	})
	return nil
}

func (s *service) List(ctx context.Context, filter ListFilter) (*Page, error) {
	limit := pagination.NormalizeLimit(filter.Limit)
	filter.Limit = pagination.LimitWithBuffer(limit)
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	kept, next := pagination.Trim(rows, limit, func(p models.Payment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return &Page{Payments: kept, NextCursor: next}, nil
}

func (s *service) LastPaymentAt(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	return s.repo.LastPaymentAt(ctx, userID)
}

func normalizeNote(note *string) *string {
	if note == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func (s *service) log(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}
