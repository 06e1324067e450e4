package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"backoffice/internal/core"
)

func directItem(name, qty, price string) core.PRItemInput {
	return core.PRItemInput{
		ItemName:      name,
		Quantity:      dec(qty),
		UnitPrice:     dec(price),
		TaxPercentage: dec("18"),
	}
}

func stableIDByName(t *testing.T, pr *core.PurchaseRequest, name string) string {
	t.Helper()
	for _, it := range pr.Items {
		if it.ItemName == name {
			return it.StableItemID
		}
	}
	t.Fatalf("item %q not found on PR %d", name, pr.ID)
	return ""
}

func TestPurchaseRequest_NumberSequencePerProject(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	if _, err := pool.Exec(ctx, "INSERT INTO vendors (name) VALUES ('Second Vendor')"); err != nil {
		t.Fatalf("seed second vendor: %v", err)
	}

	prs := core.NewPurchaseRequestService(pool)
	first, err := prs.Create(ctx, 1, 1, nil, []core.PRItemInput{directItem("Hinges", "10", "50")}, estimatorUser())
	if err != nil {
		t.Fatalf("create first PR: %v", err)
	}
	second, err := prs.Create(ctx, 1, 2, nil, []core.PRItemInput{directItem("Screws", "200", "2")}, estimatorUser())
	if err != nil {
		t.Fatalf("create second PR: %v", err)
	}

	if first.PRNumber != "PR-1-001" {
		t.Errorf("first PR number = %q, want PR-1-001", first.PRNumber)
	}
	if second.PRNumber != "PR-1-002" {
		t.Errorf("second PR number = %q, want PR-1-002", second.PRNumber)
	}
}

func TestPurchaseRequest_DraftForVendorIsReused(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	prs := core.NewPurchaseRequestService(pool)
	first, err := prs.Create(ctx, 1, 1, nil, []core.PRItemInput{directItem("Hinges", "10", "50")}, estimatorUser())
	if err != nil {
		t.Fatalf("create PR: %v", err)
	}
	second, err := prs.Create(ctx, 1, 1, nil, []core.PRItemInput{directItem("Screws", "200", "2")}, estimatorUser())
	if err != nil {
		t.Fatalf("create against open draft: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("expected the open draft %d to be reused, got a new PR %d", first.ID, second.ID)
	}
	if len(second.Items) != 2 {
		t.Errorf("reused draft has %d items, want 2", len(second.Items))
	}
	// 10×50 + 200×2 = 900, tax 162, total 1062
	if !second.FinalValue.Equal(dec("1062")) {
		t.Errorf("final value = %s, want 1062", second.FinalValue)
	}
}

func TestPurchaseRequest_EditArchivesPriorGeneration(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	prs := core.NewPurchaseRequestService(pool)

	pr, err := prs.Create(ctx, 1, 1, nil, []core.PRItemInput{
		directItem("Item A", "10", "100"),
		directItem("Item B", "5", "200"),
	}, estimatorUser())
	if err != nil {
		t.Fatalf("create PR: %v", err)
	}
	idA := stableIDByName(t, pr, "Item A")
	idB := stableIDByName(t, pr, "Item B")

	edited := directItem("Item A", "8", "100")
	edited.StableItemID = idA
	newVersion, err := prs.Edit(ctx, pr.ID, []core.PRItemInput{edited}, estimatorUser())
	if err != nil {
		t.Fatalf("edit PR: %v", err)
	}
	if newVersion != 2 {
		t.Errorf("new version = %d, want 2", newVersion)
	}

	// Live state: only A, at the edited quantity, under the same stable id.
	live, err := prs.Get(ctx, pr.ID)
	if err != nil {
		t.Fatalf("get PR after edit: %v", err)
	}
	if len(live.Items) != 1 {
		t.Fatalf("live items = %d, want 1 (B was omitted and therefore deleted)", len(live.Items))
	}
	if live.Items[0].StableItemID != idA {
		t.Errorf("stable id changed across edit: %s -> %s", idA, live.Items[0].StableItemID)
	}
	if !live.Items[0].Quantity.Equal(dec("8")) {
		t.Errorf("live quantity = %s, want 8", live.Items[0].Quantity)
	}
	if live.Items[0].Version != 2 {
		t.Errorf("live item version = %d, want 2", live.Items[0].Version)
	}

	// Version 1 is served from history, unchanged.
	v1, err := prs.ItemsAtVersion(ctx, pr.ID, 1)
	if err != nil {
		t.Fatalf("read version 1: %v", err)
	}
	if len(v1) != 2 {
		t.Fatalf("version 1 items = %d, want 2", len(v1))
	}
	byID := map[string]core.PurchaseRequestItem{}
	for _, it := range v1 {
		byID[it.StableItemID] = it
	}
	if !byID[idA].Quantity.Equal(dec("10")) {
		t.Errorf("archived quantity of A = %s, want the original 10", byID[idA].Quantity)
	}
	if !byID[idB].Quantity.Equal(dec("5")) {
		t.Errorf("archived quantity of B = %s, want 5", byID[idB].Quantity)
	}

	versions, err := prs.Versions(ctx, pr.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 2 || versions[0].ChangeType != "edited" || versions[1].ChangeType != "created" {
		t.Errorf("unexpected version trail: %+v", versions)
	}

	// Totals follow the new generation: 8×100 = 800, tax 144.
	if !live.FinalValue.Equal(dec("944")) {
		t.Errorf("final value after edit = %s, want 944", live.FinalValue)
	}
}

func TestPurchaseRequest_EditRejectsUnknownStableID(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	prs := core.NewPurchaseRequestService(pool)

	pr, err := prs.Create(ctx, 1, 1, nil, []core.PRItemInput{directItem("Item A", "10", "100")}, estimatorUser())
	if err != nil {
		t.Fatalf("create PR: %v", err)
	}

	ghost := directItem("Item A", "8", "100")
	ghost.StableItemID = "00000000-0000-0000-0000-00000000beef"
	_, err = prs.Edit(ctx, pr.ID, []core.PRItemInput{ghost}, estimatorUser())
	var nf *core.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %T: %v", err, err)
	}
}

func TestPurchaseRequest_EditRefusesNonPendingItems(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	prs := core.NewPurchaseRequestService(pool)

	pr, err := prs.Create(ctx, 1, 1, nil, []core.PRItemInput{
		directItem("Item A", "10", "100"),
		directItem("Item B", "5", "200"),
	}, estimatorUser())
	if err != nil {
		t.Fatalf("create PR: %v", err)
	}
	idA := stableIDByName(t, pr, "Item A")
	idB := stableIDByName(t, pr, "Item B")

	if _, err := pool.Exec(ctx,
		"UPDATE purchase_request_items SET lifecycle_status = 'ordered' WHERE stable_item_id = $1", idA,
	); err != nil {
		t.Fatalf("advance lifecycle: %v", err)
	}

	editA := directItem("Item A", "8", "100")
	editA.StableItemID = idA
	editB := directItem("Item B", "4", "200")
	editB.StableItemID = idB
	_, err = prs.Edit(ctx, pr.ID, []core.PRItemInput{editA, editB}, estimatorUser())
	var conflict *core.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %T: %v", err, err)
	}
	if len(conflict.Details) != 1 || !strings.Contains(conflict.Details[0], idA) || !strings.Contains(conflict.Details[0], "ordered") {
		t.Errorf("conflict should name the ordered item, got %v", conflict.Details)
	}

	// The edit must not have gone through at all.
	live, err := prs.Get(ctx, pr.ID)
	if err != nil {
		t.Fatalf("get PR: %v", err)
	}
	if len(live.Items) != 2 {
		t.Errorf("live items = %d, want the original 2", len(live.Items))
	}
}

func TestPurchaseRequest_StatusTransitions(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	prs := core.NewPurchaseRequestService(pool)

	pr, err := prs.Create(ctx, 1, 1, nil, []core.PRItemInput{directItem("Hinges", "10", "50")}, estimatorUser())
	if err != nil {
		t.Fatalf("create PR: %v", err)
	}

	// Approval straight from draft is out of order.
	err = prs.Approve(ctx, pr.ID, adminUser())
	var state *core.StateError
	if !errors.As(err, &state) {
		t.Fatalf("expected StateError approving a draft, got %T: %v", err, err)
	}

	if err := prs.Confirm(ctx, pr.ID, estimatorUser()); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Confirmed PRs are no longer editable.
	locked := directItem("Hinges", "5", "50")
	if _, err := prs.Edit(ctx, pr.ID, []core.PRItemInput{locked}, estimatorUser()); !errors.As(err, &state) {
		t.Fatalf("expected StateError editing a confirmed PR, got %T: %v", err, err)
	}

	// Approval is admin-only.
	var perm *core.PermissionError
	if err := prs.Approve(ctx, pr.ID, estimatorUser()); !errors.As(err, &perm) {
		t.Fatalf("expected PermissionError, got %T: %v", err, err)
	}
	if err := prs.Approve(ctx, pr.ID, adminUser()); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// Repeating the approval is a no-op.
	if err := prs.Approve(ctx, pr.ID, adminUser()); err != nil {
		t.Fatalf("re-approve should be idempotent: %v", err)
	}

	// Cancelling an approved PR takes an admin and deactivates it.
	if err := prs.Cancel(ctx, pr.ID, estimatorUser()); !errors.As(err, &perm) {
		t.Fatalf("expected PermissionError cancelling approved PR as estimator, got %T: %v", err, err)
	}
	if err := prs.Cancel(ctx, pr.ID, adminUser()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, err := prs.Get(ctx, pr.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != core.PRCancelled || got.Active {
		t.Errorf("status = %s active = %v, want cancelled and inactive", got.Status, got.Active)
	}
}

func TestPurchaseRequest_RejectReleasesAllocation(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	stableID := seedAllocationFixture(t, pool)
	prs := core.NewPurchaseRequestService(pool)

	pr, err := prs.Create(ctx, 1, 1, nil, []core.PRItemInput{prItem("Panels", "100", stableID, "100")}, estimatorUser())
	if err != nil {
		t.Fatalf("create PR: %v", err)
	}
	if err := prs.Confirm(ctx, pr.ID, estimatorUser()); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Fully committed: nothing left for anyone else.
	if _, err := pool.Exec(ctx, "INSERT INTO vendors (name) VALUES ('Second Vendor')"); err != nil {
		t.Fatalf("seed second vendor: %v", err)
	}
	_, err = prs.Create(ctx, 1, 2, nil, []core.PRItemInput{prItem("More panels", "1", stableID, "1")}, estimatorUser())
	var conflict *core.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError while fully committed, got %T: %v", err, err)
	}

	if err := prs.Reject(ctx, pr.ID, adminUser()); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// Rejection releases the full quantity.
	if _, err := prs.Create(ctx, 1, 2, nil, []core.PRItemInput{prItem("More panels", "100", stableID, "100")}, estimatorUser()); err != nil {
		t.Fatalf("create after rejection should succeed: %v", err)
	}
}
