package core_test

import (
	"context"
	"testing"

	"backoffice/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
)

func newEstimationService(pool *pgxpool.Pool) core.EstimationService {
	return core.NewEstimationService(pool, core.NewBaseRateService(pool))
}

// uploadEstimation installs an estimation for project 1 and returns it with
// its items. Requires an approved base rate.
func uploadEstimation(t *testing.T, pool *pgxpool.Pool, items []core.RawItem) (*core.Estimation, []core.EstimationItem) {
	t.Helper()
	ctx := context.Background()
	svc := newEstimationService(pool)

	est, err := svc.Replace(ctx, 1, items, 3, nil)
	if err != nil {
		t.Fatalf("replace estimation: %v", err)
	}
	persisted, err := svc.Items(ctx, est.ID)
	if err != nil {
		t.Fatalf("fetch estimation items: %v", err)
	}
	return est, persisted
}

func TestEstimation_ReplaceWithoutBaseRateFails(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	_, err := newEstimationService(pool).Replace(context.Background(), 1, []core.RawItem{
		{Category: "woodwork", ItemName: "Wardrobe", Quantity: dec("1"), UnitPrice: dec("1000")},
	}, 3, nil)
	if err == nil {
		t.Fatal("expected failure without an approved base rate")
	}
}

func TestEstimation_ReplacePricesAndAggregates(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	approveBaseRate(t, pool)

	est, items := uploadEstimation(t, pool, []core.RawItem{
		{
			Category: "woodwork", RoomName: "Living", ItemName: "TV Unit",
			Quantity: dec("120"), UnitPrice: dec("1000"),
			ItemDiscountPercentage: dec("5"), MarginDiscountPercentage: dec("10"),
		},
	})

	if est.Version != 1 || !est.IsCurrent {
		t.Errorf("first upload: version=%d is_current=%t, want 1/true", est.Version, est.IsCurrent)
	}
	if !est.FinalValue.Equal(dec("146626.80")) {
		t.Errorf("final_value = %s, want 146626.80", est.FinalValue)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if !items[0].ItemTotal.Equal(dec("146626.80")) {
		t.Errorf("item_total = %s, want 146626.80", items[0].ItemTotal)
	}
	if items[0].StableItemID == "" {
		t.Error("item should carry a stable id")
	}
	if ww, ok := est.CategoryBreakdown["woodwork"]; !ok {
		t.Error("category breakdown missing woodwork")
	} else if !ww.Total.Equal(dec("146626.80")) {
		t.Errorf("woodwork total = %s, want 146626.80", ww.Total)
	}
}

func TestEstimation_ReplaceSupersedesAndRetainsHistory(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	approveBaseRate(t, pool)
	svc := newEstimationService(pool)

	first, firstItems := uploadEstimation(t, pool, []core.RawItem{
		{Category: "woodwork", ItemName: "Wardrobe", Quantity: dec("10"), UnitPrice: dec("5000")},
	})
	second, _ := uploadEstimation(t, pool, []core.RawItem{
		{Category: "woodwork", ItemName: "Wardrobe", Quantity: dec("8"), UnitPrice: dec("5000")},
		{Category: "appliances", ItemName: "Hob", Quantity: dec("1"), UnitPrice: dec("40000")},
	})

	if second.Version != 2 || !second.IsCurrent {
		t.Errorf("second upload: version=%d is_current=%t, want 2/true", second.Version, second.IsCurrent)
	}

	superseded, err := svc.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("refetch first estimation: %v", err)
	}
	if superseded.IsCurrent {
		t.Error("superseded estimation is still flagged current")
	}

	// The old version's rows must be intact.
	oldItems, err := svc.Items(ctx, first.ID)
	if err != nil {
		t.Fatalf("fetch superseded items: %v", err)
	}
	if len(oldItems) != 1 || !oldItems[0].Quantity.Equal(firstItems[0].Quantity) {
		t.Errorf("superseded items changed: %+v", oldItems)
	}

	versions, err := svc.Versions(ctx, 1)
	if err != nil {
		t.Fatalf("Versions failed: %v", err)
	}
	if len(versions) != 2 {
		t.Errorf("expected 2 versions, got %d", len(versions))
	}

	current, err := svc.Current(ctx, 1)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if current.ID != second.ID {
		t.Errorf("current estimation = %d, want %d", current.ID, second.ID)
	}
}

func TestEstimation_RollbackReactivatesPriorVersion(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	approveBaseRate(t, pool)
	svc := newEstimationService(pool)

	first, _ := uploadEstimation(t, pool, []core.RawItem{
		{Category: "woodwork", ItemName: "Wardrobe", Quantity: dec("10"), UnitPrice: dec("5000")},
	})
	uploadEstimation(t, pool, []core.RawItem{
		{Category: "woodwork", ItemName: "Wardrobe", Quantity: dec("8"), UnitPrice: dec("5000")},
	})

	rolled, err := svc.Rollback(ctx, 1, 1, adminUser())
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if rolled.ID != first.ID || !rolled.IsCurrent {
		t.Errorf("rollback did not reactivate version 1: id=%d is_current=%t", rolled.ID, rolled.IsCurrent)
	}

	current, err := svc.Current(ctx, 1)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if current.Version != 1 {
		t.Errorf("current version = %d, want 1", current.Version)
	}

	if _, err := svc.Rollback(ctx, 1, 99, adminUser()); err == nil {
		t.Error("expected error rolling back to a missing version")
	}
}

func TestEstimation_UnknownCategoryPersistsNothing(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	approveBaseRate(t, pool)

	_, err := newEstimationService(pool).Replace(ctx, 1, []core.RawItem{
		{Category: "woodwork", ItemName: "Wardrobe", Quantity: dec("1"), UnitPrice: dec("1000")},
		{Category: "plumbing", ItemName: "Sink", Quantity: dec("1"), UnitPrice: dec("2000")},
	}, 3, nil)
	if err == nil {
		t.Fatal("expected failure for unconfigured category")
	}

	var count int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM project_estimations").Scan(&count); err != nil {
		t.Fatalf("count estimations: %v", err)
	}
	if count != 0 {
		t.Errorf("aborted upload persisted %d estimation(s); batch must fail whole", count)
	}
}
