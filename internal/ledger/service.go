package ledger

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tabkeeper-backend/internal/allocator"
	"github.com/angelmondragon/tabkeeper-backend/internal/batches"
	"github.com/angelmondragon/tabkeeper-backend/internal/catalog"
	"github.com/angelmondragon/tabkeeper-backend/pkg/config"
	dbpkg "github.com/angelmondragon/tabkeeper-backend/pkg/db"
	"github.com/angelmondragon/tabkeeper-backend/pkg/db/models"
	"github.com/angelmondragon/tabkeeper-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
	"github.com/angelmondragon/tabkeeper-backend/pkg/logger"
	"github.com/angelmondragon/tabkeeper-backend/pkg/metrics"
	"github.com/angelmondragon/tabkeeper-backend/pkg/outbox"
	"github.com/angelmondragon/tabkeeper-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tabkeeper-backend/pkg/pagination"
	pkgredis "github.com/angelmondragon/tabkeeper-backend/pkg/redis"
	"github.com/angelmondragon/tabkeeper-backend/pkg/types"
)

const (
	defaultWriteTimeout = 5 * time.Second

	lockScopeProduct = "product"
	lockScopeUndo    = "undo"
)

// actionGroupNamespace derives stable action group ids from client idempotency keys.
var actionGroupNamespace = uuid.MustParse("6f1c2a9e-4b7d-4c39-9a51-2d8e0f3b7c64")

// Service records purchases and reverses them one action group at a time.
type Service interface {
	LogPurchase(ctx context.Context, input LogPurchaseInput) (*PurchaseResult, error)
	UndoLastAction(ctx context.Context, input UndoInput) (*UndoResult, error)
	CanUndo(ctx context.Context, userID *uuid.UUID) (bool, error)
	ListUnits(ctx context.Context, filter UnitFilter) (*UnitPage, error)
}

// Allocator is the planning surface the ledger needs.
type Allocator interface {
	PlanTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) ([]allocator.PlanEntry, error)
	ProjectUnitPrice(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (decimal.Decimal, bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// LogPurchaseInput captures one purchase call. ChargePrice defaults to the
// product's current unit price.
type LogPurchaseInput struct {
	UserID         uuid.UUID
	ProductID      uuid.UUID
	Quantity       int
	ChargePrice    *decimal.Decimal
	IdempotencyKey string
}

// PurchaseResult describes a committed (or replayed) action group.
type PurchaseResult struct {
	ActionGroupID uuid.UUID
	UnitsLogged   int
	ChargeTotal   decimal.Decimal
	Replayed      bool
}

// UndoInput identifies the caller. UserID is required when undo is user scoped.
type UndoInput struct {
	UserID *uuid.UUID
}

// UndoResult describes a reversed action group.
type UndoResult struct {
	ActionGroupID  uuid.UUID
	UserID         uuid.UUID
	UnitsReversed  int
	BatchesCreated int
}

// UnitPage is one page of a chronological unit listing.
type UnitPage struct {
	Units      []models.PurchaseUnit
	NextCursor string
}

// ServiceParams groups the ledger dependencies. Locker and Metrics are optional.
type ServiceParams struct {
	Repo      Repository
	Batches   batches.Repository
	Catalog   catalog.Repository
	Allocator Allocator
	Tx        txRunner
	Outbox    outbox.Emitter
	Locker    pkgredis.Locker
	Metrics   *metrics.LedgerMetrics
	Logger    *logger.Logger
	Clock     types.Clock
	Config    config.LedgerConfig
}

type service struct {
	repo         Repository
	batches      batches.Repository
	catalog      catalog.Repository
	alloc        Allocator
	tx           txRunner
	outbox       outbox.Emitter
	locker       pkgredis.Locker
	metrics      *metrics.LedgerMetrics
	logg         *logger.Logger
	now          types.Clock
	undoScope    enums.UndoScope
	writeTimeout time.Duration
}

// NewService wires the ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("ledger repository required")
	}
	if params.Batches == nil {
		return nil, errors.New("batch repository required")
	}
	if params.Catalog == nil {
		return nil, errors.New("catalog repository required")
	}
	if params.Allocator == nil {
		return nil, errors.New("allocator required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	scope := params.Config.UndoScope
	if scope == "" {
		scope = enums.UndoScopeGlobal
	}
	if !scope.IsValid() {
		return nil, errors.New("invalid undo scope")
	}
	timeout := params.Config.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	clock := params.Clock
	if clock == nil {
		clock = types.SystemClock
	}
	return &service{
		repo:         params.Repo,
		batches:      params.Batches,
		catalog:      params.Catalog,
		alloc:        params.Allocator,
		tx:           params.Tx,
		outbox:       params.Outbox,
		locker:       params.Locker,
		metrics:      params.Metrics,
		logg:         params.Logger,
		now:          clock,
		undoScope:    scope,
		writeTimeout: timeout,
	}, nil
}

// ActionGroupIDForKey maps a client idempotency key to its action group id.
func ActionGroupIDForKey(userID uuid.UUID, key string) uuid.UUID {
	return uuid.NewSHA1(actionGroupNamespace, []byte(userID.String()+":"+key))
}

func (s *service) LogPurchase(ctx context.Context, input LogPurchaseInput) (result *PurchaseResult, err error) {
	started := time.Now()
	defer func() {
		units := 0
		if result != nil && !result.Replayed {
			units = result.UnitsLogged
		}
		s.metrics.Observe(metrics.OpPurchase, metrics.Outcome(err), units, time.Since(started))
	}()

	if err := validatePurchase(input); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	release, err := s.lock(ctx, lockScopeProduct, input.ProductID.String())
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer release()

	groupID := uuid.New()
	if input.IdempotencyKey != "" {
		groupID = ActionGroupIDForKey(input.UserID, input.IdempotencyKey)
	}

	var product *models.Product
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.catalog.WithTx(tx).FindUser(ctx, input.UserID); err != nil {
			return err
		}
		locked, err := s.catalog.WithTx(tx).LockProduct(ctx, input.ProductID)
		if err != nil {
			return err
		}
		product = locked

		if input.IdempotencyKey != "" {
			replay, err := s.replay(ctx, tx, groupID)
			if err != nil || replay != nil {
				result = replay
				return err
			}
		}

		charge := product.CurrentUnitPrice
		if input.ChargePrice != nil {
			charge = *input.ChargePrice
		}

		plan, err := s.alloc.PlanTx(ctx, tx, input.ProductID, input.Quantity)
		if err != nil {
			return err
		}

		repo := s.repo.WithTx(tx)
		seq, err := repo.ReserveSeq(ctx, allocator.Units(plan))
		if err != nil {
			return err
		}

		at := s.now()
		units := make([]models.PurchaseUnit, 0, input.Quantity)
		for _, entry := range plan {
			for i := 0; i < entry.Count; i++ {
				id, err := uuid.NewV7()
				if err != nil {
					return err
				}
				units = append(units, models.PurchaseUnit{
					ID:               id,
					UserID:           input.UserID,
					ProductID:        input.ProductID,
					BatchID:          entry.BatchID,
					CostAtPurchase:   entry.UnitCost,
					ChargeAtPurchase: charge,
					ActionGroupID:    groupID,
					Seq:              seq,
					CreatedAt:        at,
				})
				seq++
			}
		}

		if err := repo.CreateUnits(ctx, units); err != nil {
			return err
		}
		batchRepo := s.batches.WithTx(tx)
		for _, entry := range plan {
			if err := batchRepo.Decrement(ctx, entry.BatchID, entry.Count); err != nil {
				return err
			}
		}
		if _, _, err := s.alloc.ProjectUnitPrice(ctx, tx, input.ProductID); err != nil {
			return err
		}

		total := charge.Mul(decimal.NewFromInt(int64(len(units))))
		result = &PurchaseResult{ActionGroupID: groupID, UnitsLogged: len(units), ChargeTotal: total}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseLogged,
			AggregateType: enums.AggregateActionGroup,
			AggregateID:   groupID,
			Actor:         &outbox.ActorRef{UserID: input.UserID},
			OccurredAt:    at,
			Data: payloads.PurchaseLoggedEvent{
				ActionGroupID: groupID,
				UserID:        input.UserID,
				ProductID:     input.ProductID,
				ProductName:   product.Name,
				UnitsLogged:   len(units),
				ChargeTotal:   total,
				LoggedAt:      at,
			},
		})
	})
	if err != nil {
		return nil, classify(ctx, err)
	}

	logCtx := s.withIDs(ctx, input.UserID, input.ProductID, result.ActionGroupID)
	if result.Replayed {
		s.info(logCtx, "ledger.purchase_replayed", map[string]any{"units": result.UnitsLogged})
		return result, nil
	}
	s.info(logCtx, "ledger.purchase_logged", map[string]any{
		"units":        result.UnitsLogged,
		"charge_total": types.FormatMoney(result.ChargeTotal),
	})
	return result, nil
}

// replay returns the stored outcome of an action group that already ran, including
// one that was undone since.
func (s *service) replay(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (*PurchaseResult, error) {
	repo := s.repo.WithTx(tx)
	existing, err := repo.ListByActionGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		total := decimal.Zero
		for _, u := range existing {
			total = total.Add(u.ChargeAtPurchase)
		}
		return &PurchaseResult{ActionGroupID: groupID, UnitsLogged: len(existing), ChargeTotal: total, Replayed: true}, nil
	}
	undone, err := repo.FindUndoByActionGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if undone != nil {
		return &PurchaseResult{ActionGroupID: groupID, UnitsLogged: undone.Units, ChargeTotal: decimal.Zero, Replayed: true}, nil
	}
	return nil, nil
}

func validatePurchase(input LogPurchaseInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user_id is required")
	}
	if input.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if input.Quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"quantity": input.Quantity})
	}
	if input.ChargePrice != nil {
		if input.ChargePrice.IsNegative() || !types.IsMoney(*input.ChargePrice) {
			return pkgerrors.New(pkgerrors.CodeValidation, "charge price must be a non-negative amount")
		}
	}
	return nil
}

func (s *service) UndoLastAction(ctx context.Context, input UndoInput) (result *UndoResult, err error) {
	started := time.Now()
	defer func() {
		units := 0
		if result != nil {
			units = result.UnitsReversed
		}
		s.metrics.Observe(metrics.OpUndo, metrics.Outcome(err), units, time.Since(started))
	}()

	scopeUser, err := s.scopeUser(input.UserID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	lockID := string(enums.UndoScopeGlobal)
	if scopeUser != nil {
		lockID = scopeUser.String()
	}
	release, err := s.lock(ctx, lockScopeUndo, lockID)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer release()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		target, err := s.undoTarget(ctx, repo, scopeUser)
		if err != nil {
			return err
		}
		if target == nil {
			return pkgerrors.New(pkgerrors.CodeNothingToUndo, "no purchase left to undo")
		}

		group, err := repo.ListByActionGroup(ctx, target.ActionGroupID)
		if err != nil {
			return err
		}
		if len(group) == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "action group changed concurrently")
		}
		for _, u := range group {
			if u.Paid {
				return pkgerrors.New(pkgerrors.CodeNothingToUndo, "latest purchase is already settled").
					WithDetails(map[string]any{"reason": "settled", "action_group_id": target.ActionGroupID.String()})
			}
		}

		productIDs := distinctProducts(group)
		for _, id := range productIDs {
			if _, err := s.catalog.WithTx(tx).LockProduct(ctx, id); err != nil {
				return err
			}
		}

		deleted, err := repo.DeleteByActionGroup(ctx, target.ActionGroupID)
		if err != nil {
			return err
		}
		if deleted != int64(len(group)) {
			return pkgerrors.New(pkgerrors.CodeConflict, "action group changed concurrently").
				WithDetails(map[string]any{"expected": len(group), "deleted": deleted})
		}

		at := s.now()
		created := 0
		batchRepo := s.batches.WithTx(tx)
		for _, u := range group {
			replaced, err := batches.Restore(ctx, batchRepo, u.ProductID, u.BatchID, 1, u.CostAtPurchase, at)
			if err != nil {
				return err
			}
			if replaced {
				created++
			}
		}

		if err := repo.CreateUndoEvent(ctx, &models.UndoEvent{
			ActionGroupID: target.ActionGroupID,
			UserID:        target.UserID,
			Units:         len(group),
			UndoneSeq:     maxSeq(group),
			CreatedAt:     at,
		}); err != nil {
			return err
		}

		for _, id := range productIDs {
			if _, _, err := s.alloc.ProjectUnitPrice(ctx, tx, id); err != nil {
				return err
			}
		}

		result = &UndoResult{
			ActionGroupID:  target.ActionGroupID,
			UserID:         target.UserID,
			UnitsReversed:  len(group),
			BatchesCreated: created,
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseUndone,
			AggregateType: enums.AggregateActionGroup,
			AggregateID:   target.ActionGroupID,
			Actor:         &outbox.ActorRef{UserID: target.UserID},
			OccurredAt:    at,
			Data: payloads.PurchaseUndoneEvent{
				ActionGroupID: target.ActionGroupID,
				UserID:        target.UserID,
				ProductIDs:    productIDs,
				UnitsReversed: len(group),
				RestoredToNew: created,
				UndoneAt:      at,
			},
		})
	})
	if err != nil {
		return nil, classify(ctx, err)
	}

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithActionGroupID(s.logg.WithUserID(ctx, result.UserID.String()), result.ActionGroupID.String())
	}
	s.info(logCtx, "ledger.undo", map[string]any{
		"units":           result.UnitsReversed,
		"batches_created": result.BatchesCreated,
		"scope":           string(s.undoScope),
	})
	return result, nil
}

// undoTarget finds the newest unit committed after the group reversed by the most
// recent undo in scope. Ordering is by seq, never by terminal clocks.
func (s *service) undoTarget(ctx context.Context, repo Repository, scopeUser *uuid.UUID) (*models.PurchaseUnit, error) {
	lastUndo, err := repo.LatestUndo(ctx, scopeUser)
	if err != nil {
		return nil, err
	}
	var afterSeq *int64
	if lastUndo != nil {
		afterSeq = &lastUndo.UndoneSeq
	}
	return repo.LatestUnit(ctx, afterSeq, scopeUser)
}

func maxSeq(units []models.PurchaseUnit) int64 {
	var highest int64
	for _, u := range units {
		if u.Seq > highest {
			highest = u.Seq
		}
	}
	return highest
}

func (s *service) CanUndo(ctx context.Context, userID *uuid.UUID) (bool, error) {
	scopeUser, err := s.scopeUser(userID)
	if err != nil {
		return false, err
	}
	target, err := s.undoTarget(ctx, s.repo, scopeUser)
	if err != nil {
		return false, err
	}
	return target != nil && !target.Paid, nil
}

func (s *service) scopeUser(userID *uuid.UUID) (*uuid.UUID, error) {
	if s.undoScope != enums.UndoScopeUser {
		return nil, nil
	}
	if userID == nil || *userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id is required for user scoped undo")
	}
	return userID, nil
}

func (s *service) ListUnits(ctx context.Context, filter UnitFilter) (*UnitPage, error) {
	limit := pagination.NormalizeLimit(filter.Limit)
	filter.Limit = pagination.LimitWithBuffer(limit)
	rows, err := s.repo.ListUnits(ctx, filter)
	if err != nil {
		return nil, err
	}
	units, next := pagination.Trim(rows, limit, func(u models.PurchaseUnit) pagination.Cursor {
		return pagination.Cursor{CreatedAt: u.CreatedAt, ID: u.ID}
	})
	return &UnitPage{Units: units, NextCursor: next}, nil
}

func (s *service) lock(ctx context.Context, scope, id string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Lock(ctx, scope, id)
}

func distinctProducts(units []models.PurchaseUnit) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(units))
	out := make([]uuid.UUID, 0, 1)
	for _, u := range units {
		if _, ok := seen[u.ProductID]; ok {
			continue
		}
		seen[u.ProductID] = struct{}{}
		out = append(out, u.ProductID)
	}
	// fixed lock order across writers
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// classify turns an expired write deadline into a retryable conflict.
func classify(ctx context.Context, err error) error {
	if err == nil || pkgerrors.As(err) != nil {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "ledger write timed out, retry the request")
	}
	return dbpkg.ClassifyError(err)
}

func (s *service) withIDs(ctx context.Context, userID, productID, groupID uuid.UUID) context.Context {
	if s.logg == nil {
		return ctx
	}
	ctx = s.logg.WithUserID(ctx, userID.String())
	ctx = s.logg.WithProductID(ctx, productID.String())
	return s.logg.WithActionGroupID(ctx, groupID.String())
}

func (s *service) info(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}
