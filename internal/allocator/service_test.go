package allocator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tabkeeper-backend/internal/batches"
	"github.com/angelmondragon/tabkeeper-backend/internal/catalog"
	"github.com/angelmondragon/tabkeeper-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tabkeeper-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
)

var epoch = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(batches.NewRepository(conn), catalog.NewRepository(conn))
	require.NoError(t, err)
	return svc, conn
}

func seedProduct(t *testing.T, conn *gorm.DB, price string) *models.Product {
	t.Helper()
	product := &models.Product{Name: "Pils", CurrentUnitPrice: decimal.RequireFromString(price)}
	require.NoError(t, conn.Create(product).Error)
	return product
}

func seedBatch(t *testing.T, conn *gorm.DB, productID uuid.UUID, qty int, cost string, at time.Time) *models.Batch {
	t.Helper()
	b := &models.Batch{ProductID: productID, Quantity: qty, UnitCost: decimal.RequireFromString(cost), CreatedAt: at}
	require.NoError(t, conn.Create(b).Error)
	return b
}

func quantities(t *testing.T, conn *gorm.DB, productID uuid.UUID) map[uuid.UUID]int {
	t.Helper()
	var rows []models.Batch
	require.NoError(t, conn.Where("product_id = ?", productID).Find(&rows).Error)
	out := make(map[uuid.UUID]int, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Quantity
	}
	return out
}

func TestPlanFollowsCreationOrder(t *testing.T) {
	svc, conn := newTestService(t)
	product := seedProduct(t, conn, "0")
	// inserted out of order on purpose
	newer := seedBatch(t, conn, product.ID, 5, "1.20", epoch.Add(time.Hour))
	older := seedBatch(t, conn, product.ID, 1, "1.00", epoch)

	plan, err := svc.Plan(context.Background(), product.ID, 2)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, older.ID, plan[0].BatchID)
	assert.True(t, plan[0].UnitCost.Equal(decimal.RequireFromString("1.00")))
	assert.Equal(t, newer.ID, plan[1].BatchID)
	assert.True(t, plan[1].UnitCost.Equal(decimal.RequireFromString("1.20")))
}

func TestPlanBreaksTimestampTiesByID(t *testing.T) {
	svc, conn := newTestService(t)
	product := seedProduct(t, conn, "0")
	a := seedBatch(t, conn, product.ID, 1, "1.00", epoch)
	b := seedBatch(t, conn, product.ID, 1, "2.00", epoch)

	first := a
	if b.ID.String() < a.ID.String() {
		first = b
	}

	plan, err := svc.Plan(context.Background(), product.ID, 1)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, first.ID, plan[0].BatchID)
}

func TestPlanInsufficientStockLeavesBatchesUntouched(t *testing.T) {
	svc, conn := newTestService(t)
	product := seedProduct(t, conn, "0")
	seedBatch(t, conn, product.ID, 2, "1.00", epoch)
	seedBatch(t, conn, product.ID, 0, "0.90", epoch.Add(-time.Hour))

	before := quantities(t, conn, product.ID)
	_, err := svc.Plan(context.Background(), product.ID, 3)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	assert.Equal(t, before, quantities(t, conn, product.ID))
}

func TestPlanUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Plan(context.Background(), uuid.New(), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestProjectUnitPriceUsesOldestStockedBatch(t *testing.T) {
	svc, conn := newTestService(t)
	product := seedProduct(t, conn, "0.80")
	seedBatch(t, conn, product.ID, 0, "0.90", epoch)
	seedBatch(t, conn, product.ID, 5, "1.20", epoch.Add(time.Minute))
	seedBatch(t, conn, product.ID, 5, "1.50", epoch.Add(time.Hour))

	price, ok, err := svc.ProjectUnitPrice(context.Background(), nil, product.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("1.20")))

	var reloaded models.Product
	require.NoError(t, conn.First(&reloaded, "id = ?", product.ID).Error)
	assert.True(t, reloaded.CurrentUnitPrice.Equal(decimal.RequireFromString("1.20")), reloaded.CurrentUnitPrice.String())
}

func TestProjectUnitPriceKeepsCachedPriceWithoutStock(t *testing.T) {
	svc, conn := newTestService(t)
	product := seedProduct(t, conn, "1.35")
	seedBatch(t, conn, product.ID, 0, "0.90", epoch)

	_, ok, err := svc.ProjectUnitPrice(context.Background(), nil, product.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	var reloaded models.Product
	require.NoError(t, conn.First(&reloaded, "id = ?", product.ID).Error)
	assert.True(t, reloaded.CurrentUnitPrice.Equal(decimal.RequireFromString("1.35")))
}
