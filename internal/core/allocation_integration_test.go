package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"backoffice/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// seedAllocationFixture uploads a single-item estimation (qty 100) and
// returns the item's stable id.
func seedAllocationFixture(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	approveBaseRate(t, pool)
	_, items := uploadEstimation(t, pool, []core.RawItem{
		{Category: "woodwork", RoomName: "Hall", ItemName: "Paneling", Quantity: dec("100"), UnitPrice: dec("1000")},
	})
	return items[0].StableItemID
}

func prItem(name string, qty string, estItemID string, linkedQty string) core.PRItemInput {
	input := core.PRItemInput{
		ItemName:      name,
		Quantity:      dec(qty),
		UnitPrice:     dec("900"),
		TaxPercentage: dec("18"),
	}
	if estItemID != "" {
		input.Links = []core.ProposedLink{{StableEstimationItemID: estItemID, LinkedQty: dec(linkedQty)}}
	}
	return input
}

func TestAllocation_AvailabilityAndRejection(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	stableID := seedAllocationFixture(t, pool)

	if _, err := pool.Exec(ctx, "INSERT INTO vendors (name) VALUES ('Second Vendor')"); err != nil {
		t.Fatalf("seed second vendor: %v", err)
	}

	prs := core.NewPurchaseRequestService(pool)
	alloc := core.NewAllocationService(pool)

	// Confirmed PR consuming 30.
	confirmed, err := prs.Create(ctx, 1, 1, nil, []core.PRItemInput{prItem("Panel batch 1", "30", stableID, "30")}, estimatorUser())
	if err != nil {
		t.Fatalf("create first PR: %v", err)
	}
	if err := prs.Confirm(ctx, confirmed.ID, estimatorUser()); err != nil {
		t.Fatalf("confirm first PR: %v", err)
	}

	// Draft PR consuming 40.
	if _, err := prs.Create(ctx, 1, 2, nil, []core.PRItemInput{prItem("Panel batch 2", "40", stableID, "40")}, estimatorUser()); err != nil {
		t.Fatalf("create draft PR: %v", err)
	}

	var estimationID int
	if err := pool.QueryRow(ctx, "SELECT id FROM project_estimations WHERE project_id = 1 AND is_current").Scan(&estimationID); err != nil {
		t.Fatalf("resolve estimation id: %v", err)
	}

	avail, err := alloc.ComputeAvailability(ctx, estimationID, 1, nil)
	if err != nil {
		t.Fatalf("ComputeAvailability failed: %v", err)
	}
	if len(avail) != 1 {
		t.Fatalf("expected 1 availability row, got %d", len(avail))
	}
	row := avail[0]
	if !row.ConfirmedAllocated.Equal(dec("30")) || !row.DraftAllocated.Equal(dec("40")) {
		t.Errorf("allocated = confirmed %s / draft %s, want 30 / 40", row.ConfirmedAllocated, row.DraftAllocated)
	}
	if !row.AvailableQty.Equal(dec("30")) {
		t.Errorf("available = %s, want 30", row.AvailableQty)
	}

	// 35 exceeds the remaining 30 and must be rejected with both figures.
	_, err = prs.Create(ctx, 1, 1, nil, []core.PRItemInput{prItem("Panel batch 3", "35", stableID, "35")}, estimatorUser())
	var conflict *core.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError for over-allocation, got %T: %v", err, err)
	}
	if len(conflict.Details) != 1 || !strings.Contains(conflict.Details[0], "requested 35") || !strings.Contains(conflict.Details[0], "available 30") {
		t.Errorf("violation should name requested and available quantities, got %v", conflict.Details)
	}

	// Exactly 30 fits and exhausts the item.
	if _, err := prs.Create(ctx, 1, 1, nil, []core.PRItemInput{prItem("Panel batch 3", "30", stableID, "30")}, estimatorUser()); err != nil {
		t.Fatalf("create PR for remaining 30: %v", err)
	}

	avail, err = alloc.ComputeAvailability(ctx, estimationID, 1, nil)
	if err != nil {
		t.Fatalf("ComputeAvailability after exhaustion: %v", err)
	}
	if !avail[0].AvailableQty.IsZero() {
		t.Errorf("available after exhaustion = %s, want 0", avail[0].AvailableQty)
	}
}

func TestAllocation_WeightageScalesLinkedQuantity(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	stableID := seedAllocationFixture(t, pool)
	prs := core.NewPurchaseRequestService(pool)

	// 60 linked at weightage 0.5 consumes 30.
	item := prItem("Half-weight panels", "60", stableID, "60")
	item.Links[0].Weightage = decimal.RequireFromString("0.5")
	if _, err := prs.Create(ctx, 1, 1, nil, []core.PRItemInput{item}, estimatorUser()); err != nil {
		t.Fatalf("create weighted PR: %v", err)
	}

	var estimationID int
	if err := pool.QueryRow(ctx, "SELECT id FROM project_estimations WHERE project_id = 1 AND is_current").Scan(&estimationID); err != nil {
		t.Fatalf("resolve estimation id: %v", err)
	}
	avail, err := core.NewAllocationService(pool).ComputeAvailability(ctx, estimationID, 1, nil)
	if err != nil {
		t.Fatalf("ComputeAvailability failed: %v", err)
	}
	if !avail[0].DraftAllocated.Equal(dec("30")) {
		t.Errorf("draft allocated = %s, want 30 (60 × 0.5)", avail[0].DraftAllocated)
	}
	if !avail[0].AvailableQty.Equal(dec("70")) {
		t.Errorf("available = %s, want 70", avail[0].AvailableQty)
	}
}

func TestAllocation_DirectPurchaseItemsAreExempt(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	seedAllocationFixture(t, pool)
	prs := core.NewPurchaseRequestService(pool)

	// No links: quantities far beyond any estimation item are fine.
	pr, err := prs.Create(ctx, 1, 1, nil, []core.PRItemInput{prItem("Site consumables", "5000", "", "")}, estimatorUser())
	if err != nil {
		t.Fatalf("create direct-purchase PR: %v", err)
	}
	if len(pr.Items) != 1 || !pr.Items[0].IsDirectPurchase {
		t.Errorf("item should be flagged direct purchase: %+v", pr.Items)
	}
}

func TestAllocation_DanglingLinkIsDataIntegrityError(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	seedAllocationFixture(t, pool)
	prs := core.NewPurchaseRequestService(pool)

	ghost := "00000000-0000-0000-0000-000000000001"
	_, err := prs.Create(ctx, 1, 1, nil, []core.PRItemInput{prItem("Phantom", "1", ghost, "1")}, estimatorUser())
	if err == nil {
		t.Fatal("expected data-integrity error for a link to a missing estimation item")
	}
	var conflict *core.ConflictError
	if errors.As(err, &conflict) {
		t.Fatalf("a dangling link is not an availability conflict: %v", err)
	}
	if !strings.Contains(err.Error(), "data integrity") {
		t.Errorf("error should identify the integrity failure, got %q", err.Error())
	}
}

func TestAllocation_ValidateAllocationReportsAllViolations(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	stableID := seedAllocationFixture(t, pool)
	alloc := core.NewAllocationService(pool)

	// Two proposed links against the same 100-qty item: 80 fits, then the
	// second 80 must be checked against the 20 that remains in-proposal.
	violations, err := alloc.ValidateAllocation(ctx, []core.ProposedLink{
		{StableEstimationItemID: stableID, LinkedQty: dec("80")},
		{StableEstimationItemID: stableID, LinkedQty: dec("80")},
	}, nil)
	if err != nil {
		t.Fatalf("ValidateAllocation failed: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(violations), violations)
	}
	if !strings.Contains(violations[0], "available 20") {
		t.Errorf("second link should see 20 remaining, got %q", violations[0])
	}
}
