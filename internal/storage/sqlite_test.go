package storage

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"centinela/internal/alertstore"
	"centinela/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordSaleAppliesSideEffects(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertProduct(ctx, models.Product{
		ID: "p1", Name: "Taza", CostPerUnit: 50, PricePerUnit: 100, UnitsSold: 0, Stock: 10,
	}))

	sale := models.Sale{
		ID: "s1", ProductID: "p1", Quantity: 3, TotalAmount: 300,
		Date: time.Date(2026, time.August, 10, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.RecordSale(ctx, sale))

	snap, err := db.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Products, 1)
	assert.Equal(t, 3, snap.Products[0].UnitsSold)
	assert.Equal(t, 7, snap.Products[0].Stock)
	require.Len(t, snap.Sales, 1)
	assert.Equal(t, sale.Date, snap.Sales[0].Date)

	// Redelivery of the same sale id must not re-apply side effects
	require.NoError(t, db.RecordSale(ctx, sale))
	snap, err = db.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Products[0].UnitsSold)
	assert.Len(t, snap.Sales, 1)
}

func TestRecordSaleClampsStockAtZero(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertProduct(ctx, models.Product{
		ID: "p1", Name: "Taza", CostPerUnit: 5, PricePerUnit: 10, Stock: 2,
	}))
	require.NoError(t, db.RecordSale(ctx, models.Sale{
		ID: "s1", ProductID: "p1", Quantity: 5, TotalAmount: 50, Date: time.Now().UTC(),
	}))

	snap, err := db.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Products[0].Stock, "stock clamps at zero")
	assert.Equal(t, 5, snap.Products[0].UnitsSold)
}

func TestUpsertProductPreservesUnitsSold(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertProduct(ctx, models.Product{ID: "p1", Name: "Taza", Stock: 10}))
	require.NoError(t, db.RecordSale(ctx, models.Sale{
		ID: "s1", ProductID: "p1", Quantity: 2, TotalAmount: 20, Date: time.Now().UTC(),
	}))

	// Catalog update carries a stale counter; it must not reset units_sold
	require.NoError(t, db.UpsertProduct(ctx, models.Product{
		ID: "p1", Name: "Taza grande", PricePerUnit: 12, Stock: 20, UnitsSold: 0,
	}))

	snap, err := db.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Taza grande", snap.Products[0].Name)
	assert.Equal(t, 20, snap.Products[0].Stock)
	assert.Equal(t, 2, snap.Products[0].UnitsSold)
}

func TestThresholdsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Thresholds(ctx)
	require.ErrorIs(t, err, ErrNoThresholds)

	want := models.DefaultThresholds()
	require.NoError(t, db.PutThresholds(ctx, want))

	got, err := db.Thresholds(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Update replaces the singleton
	want.LowProfitMargin = 35
	require.NoError(t, db.PutThresholds(ctx, want))
	got, err = db.Thresholds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 35.0, got.LowProfitMargin)
}

func TestThresholdsNonFiniteStoredAsDisabled(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	in := models.DefaultThresholds()
	in.NoSalesDays = math.NaN()
	in.MonthlyRevenueGoal = math.Inf(1)
	require.NoError(t, db.PutThresholds(ctx, in))

	got, err := db.Thresholds(ctx)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got.NoSalesDays))
	assert.True(t, math.IsNaN(got.MonthlyRevenueGoal))
	assert.Equal(t, in.LowProfitMargin, got.LowProfitMargin)
}

func TestAlertRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	now := time.Date(2026, time.August, 20, 9, 0, 0, 0, time.UTC)
	a := models.Alert{
		ID:      "a1",
		Kind:    models.KindWarning,
		Title:   "Margen bajo: Taza",
		Message: "mensaje",
		Action:  "Revisar precios",
		Key:     models.DedupKey{Rule: models.RuleLowProfit, Subject: "p1"},
	}
	a.CreatedAt = now
	require.NoError(t, db.Create(ctx, a))

	b := a
	b.ID = "a2"
	b.Key = models.DedupKey{Rule: models.RuleGoalReached}
	b.Action = ""
	require.NoError(t, db.Create(ctx, b))

	keys, err := db.ListActiveKeys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"low-profit:p1", "goal-reached"}, keys)

	alerts, err := db.List(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	for _, got := range alerts {
		if got.ID == "a1" {
			assert.Equal(t, a, got)
		}
	}
}

func TestSetDismissedAndPurge(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	for _, id := range []string{"a1", "a2"} {
		require.NoError(t, db.Create(ctx, models.Alert{
			ID: id, Kind: models.KindInfo, Title: "t", Message: "m",
			Key:       models.DedupKey{Rule: models.RuleNoSales, Subject: id},
			CreatedAt: now,
		}))
	}

	require.NoError(t, db.SetDismissed(ctx, "a1"))
	require.ErrorIs(t, db.SetDismissed(ctx, "missing"), alertstore.ErrNotFound)

	keys, err := db.ListActiveKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"no-sales:a2"}, keys)

	n, err := db.DeleteDismissed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	alerts, err := db.List(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "a2", alerts[0].ID)

	// Nothing dismissed: purge succeeds and removes nothing
	n, err = db.DeleteDismissed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSnapshotEmptyDatabase(t *testing.T) {
	db := openTestDB(t)

	snap, err := db.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Products)
	assert.Empty(t, snap.Sales)
	assert.Empty(t, snap.Expenses)
}
