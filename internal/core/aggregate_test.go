package core_test

import (
	"fmt"
	"testing"

	"backoffice/internal/core"

	"github.com/shopspring/decimal"
)

func testConfig() core.RateConfig {
	return core.RateConfig{
		Categories: []core.CategoryRate{
			woodwork(),
			{
				ID:               "misc_external",
				Name:             "Miscellaneous External",
				MarginPercentage: dec("12"),
				PassThrough:      true,
			},
		},
		TaxPercentage: dec("18"),
	}
}

func TestAggregate_SumMatchesItemTotalsExactly(t *testing.T) {
	cfg := testConfig()

	// Awkward unit prices so intermediate rounding actually happens.
	var items []core.RawItem
	for i := 1; i <= 25; i++ {
		cat := "woodwork"
		if i%3 == 0 {
			cat = "misc_external"
		}
		items = append(items, core.RawItem{
			Category:                 cat,
			RoomName:                 "Room",
			ItemName:                 fmt.Sprintf("Item %d", i),
			Quantity:                 decimal.NewFromInt(int64(i)),
			UnitPrice:                dec("33.33").Add(decimal.NewFromInt(int64(i)).Div(dec("7")).Round(2)),
			ItemDiscountPercentage:   dec("2.5"),
			MarginDiscountPercentage: dec("1.25"),
		})
	}

	priced, err := core.PriceItems(items, cfg)
	if err != nil {
		t.Fatalf("PriceItems failed: %v", err)
	}

	totals, err := core.Aggregate(priced, cfg.Categories)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	var sum decimal.Decimal
	for _, p := range priced {
		sum = sum.Add(p.ItemTotal)
	}
	if !totals.FinalValue.Equal(sum) {
		t.Errorf("final_value = %s, sum of item totals = %s; aggregation must not drift", totals.FinalValue, sum)
	}

	var catSum decimal.Decimal
	for _, ct := range totals.CategoryBreakdown {
		catSum = catSum.Add(ct.Total)
	}
	if !catSum.Equal(totals.FinalValue) {
		t.Errorf("category totals sum to %s, final_value is %s", catSum, totals.FinalValue)
	}
}

func TestAggregate_CategoryBreakdownFields(t *testing.T) {
	cfg := testConfig()
	items := []core.RawItem{
		{Category: "woodwork", ItemName: "A", Quantity: dec("2"), UnitPrice: dec("100"), ItemDiscountPercentage: dec("10")},
		{Category: "woodwork", ItemName: "B", Quantity: dec("1"), UnitPrice: dec("300")},
	}

	priced, err := core.PriceItems(items, cfg)
	if err != nil {
		t.Fatalf("PriceItems failed: %v", err)
	}
	totals, err := core.Aggregate(priced, cfg.Categories)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	ww := totals.CategoryBreakdown["woodwork"]
	if !ww.Subtotal.Equal(dec("500")) {
		t.Errorf("woodwork subtotal = %s, want 500", ww.Subtotal)
	}
	if !ww.ItemDiscount.Equal(dec("20")) {
		t.Errorf("woodwork item discount = %s, want 20", ww.ItemDiscount)
	}
	// 180 + 300 = 480 discounted; 10% margin = 18 + 30.
	if !ww.MarginCharges.Equal(dec("48")) {
		t.Errorf("woodwork margin charges = %s, want 48", ww.MarginCharges)
	}
	if misc := totals.CategoryBreakdown["misc_external"]; !misc.Total.IsZero() {
		t.Errorf("untouched category should stay zero, got %s", misc.Total)
	}
}

func TestAggregate_UnknownCategoryFails(t *testing.T) {
	priced := []core.PricedItem{{RawItem: core.RawItem{Category: "ghost"}}}
	if _, err := core.Aggregate(priced, testConfig().Categories); err == nil {
		t.Fatal("expected error for item category missing from category set")
	}
}
