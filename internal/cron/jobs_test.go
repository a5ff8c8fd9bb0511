package cron

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tabkeeper-backend/internal/allocator"
	"github.com/angelmondragon/tabkeeper-backend/internal/batches"
	"github.com/angelmondragon/tabkeeper-backend/internal/catalog"
	"github.com/angelmondragon/tabkeeper-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tabkeeper-backend/pkg/db/models"
	"github.com/angelmondragon/tabkeeper-backend/pkg/enums"
	"github.com/angelmondragon/tabkeeper-backend/pkg/outbox"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func seedEvent(t *testing.T, conn *gorm.DB, createdAt time.Time, publishedAt *time.Time) uuid.UUID {
	t.Helper()
	event := models.OutboxEvent{
		EventType:     enums.EventPurchaseLogged,
		AggregateType: enums.AggregateActionGroup,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		CreatedAt:     createdAt,
		PublishedAt:   publishedAt,
	}
	require.NoError(t, conn.Create(&event).Error)
	return event.ID
}

func seedDeadLetter(t *testing.T, conn *gorm.DB, failedAt time.Time) {
	t.Helper()
	require.NoError(t, conn.Create(&models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventPaymentRecorded,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		AttemptCount:  10,
		FailedAt:      failedAt,
	}).Error)
}

func TestOutboxRetentionPrunesOnlyOldDeliveredRows(t *testing.T) {
	client, conn := dbtest.Client(t)
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	oldPublished := seedEvent(t, conn, old, &old)
	recentPublished := seedEvent(t, conn, recent, &recent)
	oldPending := seedEvent(t, conn, old, nil)
	seedDeadLetter(t, conn, now.Add(-100*24*time.Hour))
	seedDeadLetter(t, conn, now.Add(-24*time.Hour))

	job, err := NewOutboxRetentionJob(OutboxRetentionParams{
		Tx:          client,
		Outbox:      outbox.NewRepository(conn),
		DeadLetters: outbox.NewDLQRepository(conn),
		Clock:       func() time.Time { return now },
	})
	require.NoError(t, err)

	rows, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, rows)

	var remaining []uuid.UUID
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Order("id").Pluck("id", &remaining).Error)
	assert.ElementsMatch(t, []uuid.UUID{recentPublished, oldPending}, remaining)
	assert.NotContains(t, remaining, oldPublished)

	var dlqCount int64
	require.NoError(t, conn.Model(&models.OutboxDLQ{}).Count(&dlqCount).Error)
	assert.EqualValues(t, 1, dlqCount)
}

func TestNewOutboxRetentionJobRequiresDeps(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionParams{})
	require.Error(t, err)
}

func TestPriceProjectionUsesOldestStockedBatch(t *testing.T) {
	client, conn := dbtest.Client(t)
	ctx := context.Background()

	stocked := &models.Product{Name: "Pils", CurrentUnitPrice: decimal.RequireFromString("9.99")}
	empty := &models.Product{Name: "Cola", CurrentUnitPrice: decimal.RequireFromString("1.50")}
	require.NoError(t, conn.Create(stocked).Error)
	require.NoError(t, conn.Create(empty).Error)

	require.NoError(t, conn.Create(&models.Batch{ProductID: stocked.ID, Quantity: 0, UnitCost: decimal.RequireFromString("0.80"), CreatedAt: now.Add(-3 * time.Hour)}).Error)
	require.NoError(t, conn.Create(&models.Batch{ProductID: stocked.ID, Quantity: 4, UnitCost: decimal.RequireFromString("1.10"), CreatedAt: now.Add(-2 * time.Hour)}).Error)
	require.NoError(t, conn.Create(&models.Batch{ProductID: stocked.ID, Quantity: 6, UnitCost: decimal.RequireFromString("1.30"), CreatedAt: now.Add(-time.Hour)}).Error)

	catalogRepo := catalog.NewRepository(conn)
	alloc, err := allocator.NewService(batches.NewRepository(conn), catalogRepo)
	require.NoError(t, err)
	job, err := NewPriceProjectionJob(PriceProjectionParams{Tx: client, Catalog: catalogRepo, Projector: alloc})
	require.NoError(t, err)

	rows, err := job.Run(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	var reloaded models.Product
	require.NoError(t, conn.First(&reloaded, "id = ?", stocked.ID).Error)
	assert.True(t, reloaded.CurrentUnitPrice.Equal(decimal.RequireFromString("1.10")), "got %s", reloaded.CurrentUnitPrice)
	var untouched models.Product
	require.NoError(t, conn.First(&untouched, "id = ?", empty.ID).Error)
	assert.True(t, untouched.CurrentUnitPrice.Equal(decimal.RequireFromString("1.50")), "got %s", untouched.CurrentUnitPrice)
}
