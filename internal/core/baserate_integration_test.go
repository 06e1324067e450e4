package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"backoffice/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
)

func villaRateConfig() core.RateConfig {
	return core.RateConfig{
		Categories: []core.CategoryRate{
			{
				ID:                          "woodwork",
				Name:                        "Woodwork",
				MarginPercentage:            dec("10"),
				MaxItemDiscountPercentage:   dec("15"),
				MaxMarginDiscountPercentage: dec("50"),
			},
			{
				ID:               "appliances",
				Name:             "Appliances",
				MarginPercentage: dec("12"),
				PassThrough:      true,
			},
		},
		TaxPercentage: dec("18"),
	}
}

// approveBaseRate requests and approves the standard config for project 1.
func approveBaseRate(t *testing.T, pool *pgxpool.Pool) *core.BaseRate {
	t.Helper()
	ctx := context.Background()
	svc := core.NewBaseRateService(pool)

	requested, err := svc.Request(ctx, 1, villaRateConfig(), 3)
	if err != nil {
		t.Fatalf("request base rate: %v", err)
	}
	approved, err := svc.Approve(ctx, requested.ID, villaRateConfig(), adminUser())
	if err != nil {
		t.Fatalf("approve base rate: %v", err)
	}
	return approved
}

func TestBaseRate_RequestAndApprove(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	br := approveBaseRate(t, pool)
	if br.Status != core.BaseRateApproved {
		t.Errorf("status = %s, want approved", br.Status)
	}
	if !br.Active {
		t.Error("approved base rate should be active")
	}

	active, err := core.NewBaseRateService(pool).Active(ctx, 1)
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if active.ID != br.ID {
		t.Errorf("active base rate id = %d, want %d", active.ID, br.ID)
	}

	var projectBaseRate *int
	if err := pool.QueryRow(ctx, "SELECT base_rate_id FROM projects WHERE id = 1").Scan(&projectBaseRate); err != nil {
		t.Fatalf("read project: %v", err)
	}
	if projectBaseRate == nil || *projectBaseRate != br.ID {
		t.Errorf("project base_rate_id not set to %d", br.ID)
	}
}

func TestBaseRate_ApproveRejectsDivergedValues(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewBaseRateService(pool)

	requested, err := svc.Request(ctx, 1, villaRateConfig(), 3)
	if err != nil {
		t.Fatalf("request base rate: %v", err)
	}

	// The approver reviews stale figures: margin changed underneath them.
	stale := villaRateConfig()
	stale.Categories[0].MarginPercentage = dec("8")
	stale.TaxPercentage = dec("12")

	_, err = svc.Approve(ctx, requested.ID, stale, adminUser())
	if err == nil {
		t.Fatal("expected conflict for diverged values")
	}
	var conflict *core.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %T: %v", err, err)
	}
	if len(conflict.Details) != 2 {
		t.Errorf("expected 2 mismatch details, got %d: %v", len(conflict.Details), conflict.Details)
	}
	joined := strings.Join(conflict.Details, "; ")
	if !strings.Contains(joined, "expected 10.00, received 8.00") {
		t.Errorf("margin mismatch should name both values, got %q", joined)
	}
	if !strings.Contains(joined, "expected 18.00, received 12.00") {
		t.Errorf("tax mismatch should name both values, got %q", joined)
	}

	// The record must be untouched by the failed approval.
	refetched, err := svc.Get(ctx, requested.ID)
	if err != nil {
		t.Fatalf("refetch base rate: %v", err)
	}
	if refetched.Status != core.BaseRateRequested || refetched.Active {
		t.Errorf("failed approval mutated the record: status=%s active=%t", refetched.Status, refetched.Active)
	}
}

func TestBaseRate_NewApprovalDeactivatesPrior(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewBaseRateService(pool)

	first := approveBaseRate(t, pool)

	raised := villaRateConfig()
	raised.Categories[0].MarginPercentage = dec("12")
	requested, err := svc.Request(ctx, 1, raised, 3)
	if err != nil {
		t.Fatalf("request second base rate: %v", err)
	}
	second, err := svc.Approve(ctx, requested.ID, raised, adminUser())
	if err != nil {
		t.Fatalf("approve second base rate: %v", err)
	}

	prior, err := svc.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("refetch first base rate: %v", err)
	}
	if prior.Active {
		t.Error("prior base rate should have been deactivated")
	}
	if prior.Status != core.BaseRateApproved {
		t.Errorf("prior base rate status mutated to %s; approved records are immutable", prior.Status)
	}

	active, err := svc.Active(ctx, 1)
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if active.ID != second.ID {
		t.Errorf("active base rate = %d, want %d", active.ID, second.ID)
	}
}

func TestBaseRate_ApproveRequiresAdmin(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewBaseRateService(pool)

	requested, err := svc.Request(ctx, 1, villaRateConfig(), 3)
	if err != nil {
		t.Fatalf("request base rate: %v", err)
	}
	_, err = svc.Approve(ctx, requested.ID, villaRateConfig(), estimatorUser())
	var perm *core.PermissionError
	if !errors.As(err, &perm) {
		t.Fatalf("expected PermissionError, got %T: %v", err, err)
	}
}
