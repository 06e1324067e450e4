package core

import "github.com/shopspring/decimal"

// CategoryTotals accumulates the rounded item-level fields of one category.
type CategoryTotals struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	ItemDiscount    decimal.Decimal `json:"item_discount_amount"`
	MarginCharges   decimal.Decimal `json:"margin_charges_amount"`
	MarginDiscount  decimal.Decimal `json:"margin_discount_amount"`
	AmountBeforeTax decimal.Decimal `json:"amount_before_tax"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	Total           decimal.Decimal `json:"total"`
}

// EstimationTotals is the project-level aggregate of a priced item set.
type EstimationTotals struct {
	CategoryBreakdown map[string]*CategoryTotals `json:"category_breakdown"`
	ItemsValue        decimal.Decimal            `json:"items_value"`
	ItemsDiscount     decimal.Decimal            `json:"items_discount"`
	MarginCharges     decimal.Decimal            `json:"margin_charges"`
	MarginDiscount    decimal.Decimal            `json:"margin_discount"`
	TaxAmount         decimal.Decimal            `json:"tax_amount"`
	FinalValue        decimal.Decimal            `json:"final_value"`
}

// Aggregate folds already-priced items into category-wise and grand totals.
// It only sums the rounded item-level fields — never recomputes from raw
// quantities — so sum(item_total) equals FinalValue exactly.
func Aggregate(items []PricedItem, categories []CategoryRate) (EstimationTotals, error) {
	totals := EstimationTotals{
		CategoryBreakdown: make(map[string]*CategoryTotals, len(categories)),
	}
	for _, cat := range categories {
		totals.CategoryBreakdown[cat.ID] = &CategoryTotals{}
	}

	for _, item := range items {
		ct, ok := totals.CategoryBreakdown[item.Category]
		if !ok {
			return EstimationTotals{}, validationf("category %q not found in rate configuration", item.Category)
		}

		ct.Subtotal = ct.Subtotal.Add(item.Subtotal)
		ct.ItemDiscount = ct.ItemDiscount.Add(item.ItemDiscountAmount)
		ct.MarginCharges = ct.MarginCharges.Add(item.MarginChargesGross)
		ct.MarginDiscount = ct.MarginDiscount.Add(item.MarginDiscountAmount)
		ct.AmountBeforeTax = ct.AmountBeforeTax.Add(item.AmountBeforeTax)
		ct.TaxAmount = ct.TaxAmount.Add(item.TaxAmount)
		ct.Total = ct.Total.Add(item.ItemTotal)

		totals.ItemsValue = totals.ItemsValue.Add(item.Subtotal)
		totals.ItemsDiscount = totals.ItemsDiscount.Add(item.ItemDiscountAmount)
		totals.MarginCharges = totals.MarginCharges.Add(item.MarginChargesGross)
		totals.MarginDiscount = totals.MarginDiscount.Add(item.MarginDiscountAmount)
		totals.TaxAmount = totals.TaxAmount.Add(item.TaxAmount)
		totals.FinalValue = totals.FinalValue.Add(item.ItemTotal)
	}

	return totals, nil
}
