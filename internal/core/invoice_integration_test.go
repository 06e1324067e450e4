package core_test

import (
	"context"
	"errors"
	"testing"

	"backoffice/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
)

func approveInvoice(t *testing.T, pool *pgxpool.Pool, amount string, doc *string) *core.Invoice {
	t.Helper()
	ctx := context.Background()
	svc := core.NewInvoiceService(pool)
	inv, err := svc.Create(ctx, 1, core.InvoiceInput{
		Amount:      dec(amount),
		InvoiceDate: "2026-09-01",
		DocumentURL: doc,
	}, financeUser())
	if err != nil {
		t.Fatalf("create invoice of %s: %v", amount, err)
	}
	approved, err := svc.Approve(ctx, inv.ID, adminUser())
	if err != nil {
		t.Fatalf("approve invoice of %s: %v", amount, err)
	}
	return approved
}

func projectInvoiceState(t *testing.T, pool *pgxpool.Pool) (string, bool, string) {
	t.Helper()
	var invoiced, over string
	var has bool
	err := pool.QueryRow(context.Background(),
		"SELECT invoiced_amount::text, has_over_invoice, over_invoice_amount::text FROM projects WHERE id = 1",
	).Scan(&invoiced, &has, &over)
	if err != nil {
		t.Fatalf("read project invoice state: %v", err)
	}
	return invoiced, has, over
}

func TestInvoice_OverInvoiceLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	scenarioEstimation(t, pool)
	svc := core.NewInvoiceService(pool)

	approveInvoice(t, pool, "100000", nil)
	invoiced, has, _ := projectInvoiceState(t, pool)
	if invoiced != "100000.00" || has {
		t.Fatalf("state after first invoice = %s/%v, want 100000.00 and no over-invoice", invoiced, has)
	}

	// 160000 invoiced against the 146626.80 estimation.
	approveInvoice(t, pool, "60000", nil)
	invoiced, has, over := projectInvoiceState(t, pool)
	if invoiced != "160000.00" || !has || over != "13373.20" {
		t.Fatalf("state after second invoice = %s/%v/%s, want 160000.00 true 13373.20", invoiced, has, over)
	}

	credit, err := svc.CreateCreditNote(ctx, 1, adminUser())
	if err != nil {
		t.Fatalf("create credit note: %v", err)
	}
	if credit.InvoiceAmount != "-13373.20" || credit.Status != core.InvoicePending {
		t.Errorf("credit note = %s/%s, want -13373.20 pending", credit.InvoiceAmount, credit.Status)
	}

	var conflict *core.ConflictError
	if _, err := svc.CreateCreditNote(ctx, 1, adminUser()); !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError for a second pending credit note, got %T: %v", err, err)
	}

	// Approving the credit note nets the accumulator back to the estimation.
	if _, err := svc.Approve(ctx, credit.ID, adminUser()); err != nil {
		t.Fatalf("approve credit note: %v", err)
	}
	invoiced, has, over = projectInvoiceState(t, pool)
	if invoiced != "146626.80" || has || over != "0.00" {
		t.Errorf("state after credit note = %s/%v/%s, want 146626.80 false 0.00", invoiced, has, over)
	}
}

func TestInvoice_CancelLeavesAccumulatorUntouched(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	scenarioEstimation(t, pool)
	svc := core.NewInvoiceService(pool)

	inv, err := svc.Create(ctx, 1, core.InvoiceInput{Amount: dec("50000"), InvoiceDate: "2026-09-01"}, financeUser())
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if err := svc.Cancel(ctx, inv.ID, adminUser()); err != nil {
		t.Fatalf("cancel invoice: %v", err)
	}
	invoiced, _, _ := projectInvoiceState(t, pool)
	if invoiced != "0.00" {
		t.Errorf("invoiced amount after cancel = %s, want 0.00", invoiced)
	}

	// Approved invoices are out of reach for cancellation.
	approved := approveInvoice(t, pool, "10000", nil)
	var state *core.StateError
	if err := svc.Cancel(ctx, approved.ID, adminUser()); !errors.As(err, &state) {
		t.Fatalf("expected StateError cancelling an approved invoice, got %T: %v", err, err)
	}
}

func TestInvoice_ApprovalRecordsDocumentOnce(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	scenarioEstimation(t, pool)

	doc := "https://files.example.com/invoice-001.pdf"
	inv := approveInvoice(t, pool, "25000", &doc)

	var docs int
	if err := pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM documents WHERE source_table = 'project_invoices' AND source_id = $1",
		inv.ID,
	).Scan(&docs); err != nil {
		t.Fatalf("count documents: %v", err)
	}
	if docs != 1 {
		t.Errorf("documents for invoice = %d, want 1", docs)
	}

	var state *core.StateError
	if _, err := core.NewInvoiceService(pool).Approve(ctx, inv.ID, adminUser()); !errors.As(err, &state) {
		t.Fatalf("expected StateError on re-approval, got %T: %v", err, err)
	}
}

func TestInvoice_ApprovalRequiresAdmin(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	scenarioEstimation(t, pool)
	svc := core.NewInvoiceService(pool)

	inv, err := svc.Create(ctx, 1, core.InvoiceInput{Amount: dec("1000"), InvoiceDate: "2026-09-01"}, financeUser())
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	var perm *core.PermissionError
	if _, err := svc.Approve(ctx, inv.ID, financeUser()); !errors.As(err, &perm) {
		t.Fatalf("expected PermissionError, got %T: %v", err, err)
	}
}
