package core_test

import (
	"errors"
	"testing"

	"backoffice/internal/core"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func woodwork() core.CategoryRate {
	return core.CategoryRate{
		ID:                          "woodwork",
		Name:                        "Woodwork",
		MarginPercentage:            dec("10"),
		MaxItemDiscountPercentage:   dec("15"),
		MaxMarginDiscountPercentage: dec("50"),
	}
}

func TestPriceItem_FullBilling(t *testing.T) {
	item := core.RawItem{
		Category:                 "woodwork",
		RoomName:                 "Living Room",
		ItemName:                 "TV Unit",
		Quantity:                 dec("120"),
		Unit:                     "nos",
		UnitPrice:                dec("1000"),
		ItemDiscountPercentage:   dec("5"),
		MarginDiscountPercentage: dec("10"),
	}

	b := core.PriceItem(item, woodwork(), dec("18"))

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"subtotal", b.Subtotal, "120000"},
		{"item_discount_amount", b.ItemDiscountAmount, "6000"},
		{"discounted_subtotal", b.DiscountedSubtotal, "114000"},
		{"margin_charges_gross", b.MarginChargesGross, "11400"},
		{"margin_discount_amount", b.MarginDiscountAmount, "1140"},
		{"margin_charges_net", b.MarginChargesNet, "10260"},
		{"amount_before_tax", b.AmountBeforeTax, "124260"},
		{"tax_amount", b.TaxAmount, "22366.80"},
		{"item_total", b.ItemTotal, "146626.80"},
	}
	for _, c := range checks {
		if !c.got.Equal(dec(c.want)) {
			t.Errorf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}
}

func TestPriceItem_PassThroughBillsMarginOnly(t *testing.T) {
	cat := core.CategoryRate{
		ID:               "shopping",
		Name:             "Shopping Assistance",
		MarginPercentage: dec("8"),
		PassThrough:      true,
	}
	item := core.RawItem{
		Category:  "shopping",
		ItemName:  "Decor Lamp",
		Quantity:  dec("4"),
		UnitPrice: dec("2500"),
	}

	b := core.PriceItem(item, cat, dec("18"))

	// 4 × 2500 = 10000; margin 8% = 800; only the margin is billed.
	if !b.AmountBeforeTax.Equal(dec("800")) {
		t.Errorf("amount_before_tax = %s, want 800", b.AmountBeforeTax)
	}
	if !b.TaxAmount.Equal(dec("144")) {
		t.Errorf("tax_amount = %s, want 144", b.TaxAmount)
	}
	if !b.ItemTotal.Equal(dec("944")) {
		t.Errorf("item_total = %s, want 944", b.ItemTotal)
	}
}

func TestPriceItem_SqftQuantityFromDimensions(t *testing.T) {
	item := core.RawItem{
		Category:  "woodwork",
		ItemName:  "Wardrobe Shutter",
		Unit:      "sqft",
		Width:     dec("20"),
		Height:    dec("5"),
		UnitPrice: dec("4000"),
	}

	b := core.PriceItem(item, woodwork(), dec("18"))

	if !b.Subtotal.Equal(dec("400000")) {
		t.Errorf("subtotal = %s, want 400000 (20 x 5 x 4000)", b.Subtotal)
	}
}

func TestPriceItem_IntermediateRounding(t *testing.T) {
	// 3 × 33.33 = 99.99; 7.5% discount = 7.499  -> rounds to 7.50 at that
	// stage, and every later stage works from the rounded figure.
	item := core.RawItem{
		Category:               "woodwork",
		ItemName:               "Shelf Bracket",
		Quantity:               dec("3"),
		UnitPrice:              dec("33.33"),
		ItemDiscountPercentage: dec("7.5"),
	}

	b := core.PriceItem(item, woodwork(), dec("18"))

	if !b.ItemDiscountAmount.Equal(dec("7.50")) {
		t.Errorf("item_discount_amount = %s, want 7.50", b.ItemDiscountAmount)
	}
	if !b.DiscountedSubtotal.Equal(dec("92.49")) {
		t.Errorf("discounted_subtotal = %s, want 92.49", b.DiscountedSubtotal)
	}
	if !b.MarginChargesGross.Equal(dec("9.25")) {
		t.Errorf("margin_charges_gross = %s, want 9.25", b.MarginChargesGross)
	}
	if !b.ItemTotal.Equal(b.AmountBeforeTax.Add(b.TaxAmount)) {
		t.Errorf("item_total %s != amount_before_tax %s + tax_amount %s",
			b.ItemTotal, b.AmountBeforeTax, b.TaxAmount)
	}
}

func TestPriceItem_Deterministic(t *testing.T) {
	item := core.RawItem{
		Category:                 "woodwork",
		ItemName:                 "Crockery Unit",
		Quantity:                 dec("7"),
		UnitPrice:                dec("1234.56"),
		ItemDiscountPercentage:   dec("3.33"),
		MarginDiscountPercentage: dec("1.11"),
	}
	first := core.PriceItem(item, woodwork(), dec("18"))
	for i := 0; i < 10; i++ {
		got := core.PriceItem(item, woodwork(), dec("18"))
		if !got.ItemTotal.Equal(first.ItemTotal) ||
			!got.TaxAmount.Equal(first.TaxAmount) ||
			!got.AmountBeforeTax.Equal(first.AmountBeforeTax) ||
			!got.MarginChargesNet.Equal(first.MarginChargesNet) {
			t.Fatalf("pricing not reproducible: run %d produced %+v, want %+v", i, got, first)
		}
	}
}

func TestPriceItems_UnknownCategoryAbortsBatch(t *testing.T) {
	cfg := core.RateConfig{
		Categories:    []core.CategoryRate{woodwork()},
		TaxPercentage: dec("18"),
	}
	items := []core.RawItem{
		{Category: "woodwork", ItemName: "Base Unit", Quantity: dec("1"), UnitPrice: dec("100")},
		{Category: "plumbing", ItemName: "Sink", Quantity: dec("1"), UnitPrice: dec("100")},
	}

	priced, err := core.PriceItems(items, cfg)
	if err == nil {
		t.Fatal("expected error for unknown category, got nil")
	}
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if priced != nil {
		t.Errorf("expected no partial batch, got %d items", len(priced))
	}
}

func TestPriceItems_EmptyBatch(t *testing.T) {
	cfg := core.RateConfig{Categories: []core.CategoryRate{woodwork()}}
	if _, err := core.PriceItems(nil, cfg); err == nil {
		t.Fatal("expected error for empty batch, got nil")
	}
}

func TestValidateItemDiscounts(t *testing.T) {
	cat := woodwork()
	item := core.RawItem{
		Category:                 "woodwork",
		ItemName:                 "Loft Unit",
		ItemDiscountPercentage:   dec("20"),
		MarginDiscountPercentage: dec("60"),
	}
	errs := core.ValidateItemDiscounts(item, cat)
	if len(errs) != 2 {
		t.Fatalf("expected 2 violations, got %d: %v", len(errs), errs)
	}
}
