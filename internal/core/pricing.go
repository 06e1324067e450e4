package core

import "github.com/shopspring/decimal"

// CategoryRate is one category's percentages inside a base-rate
// configuration. Pass-through categories are billed for the margin charge
// only; the customer pays the third party directly for the items.
type CategoryRate struct {
	ID                          string          `json:"id"`
	Name                        string          `json:"name"`
	MarginPercentage            decimal.Decimal `json:"margin_percentage"`
	MaxItemDiscountPercentage   decimal.Decimal `json:"max_item_discount_percentage"`
	MaxMarginDiscountPercentage decimal.Decimal `json:"max_margin_discount_percentage"`
	PassThrough                 bool            `json:"pass_through"`
}

// RateConfig is the per-project category set plus the project-wide tax
// percentage. Immutable once an approved estimation references it.
type RateConfig struct {
	Categories    []CategoryRate  `json:"categories"`
	TaxPercentage decimal.Decimal `json:"tax_percentage"`
}

// Category returns the configured category by id.
func (c *RateConfig) Category(id string) (CategoryRate, bool) {
	for _, cat := range c.Categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return CategoryRate{}, false
}

// RawItem is one unpriced estimation line.
type RawItem struct {
	StableItemID             string          `json:"stable_item_id,omitempty"`
	Category                 string          `json:"category"`
	RoomName                 string          `json:"room_name"`
	ItemName                 string          `json:"item_name"`
	Quantity                 decimal.Decimal `json:"quantity"`
	Unit                     string          `json:"unit"`
	Width                    decimal.Decimal `json:"width"`
	Height                   decimal.Decimal `json:"height"`
	UnitPrice                decimal.Decimal `json:"unit_price"`
	ItemDiscountPercentage   decimal.Decimal `json:"item_discount_percentage"`
	MarginDiscountPercentage decimal.Decimal `json:"margin_discount_percentage"`
	Status                   string          `json:"status"`
}

// EffectiveQuantity resolves the billable quantity. Square-footage items
// carry width and height instead of a direct quantity.
func (it RawItem) EffectiveQuantity() decimal.Decimal {
	if it.Unit == "sqft" && it.Width.IsPositive() && it.Height.IsPositive() {
		return it.Width.Mul(it.Height)
	}
	return it.Quantity
}

// ItemBreakdown is the complete monetary breakdown of one priced item.
// Every field is already rounded to 2 decimal places.
type ItemBreakdown struct {
	Subtotal                 decimal.Decimal `json:"subtotal"`
	ItemDiscountAmount       decimal.Decimal `json:"item_discount_amount"`
	DiscountedSubtotal       decimal.Decimal `json:"discounted_subtotal"`
	MarginChargesPercentage  decimal.Decimal `json:"margin_charges_percentage"`
	MarginChargesGross       decimal.Decimal `json:"margin_charges_amount"`
	MarginDiscountAmount     decimal.Decimal `json:"margin_discount_amount"`
	MarginChargesNet         decimal.Decimal `json:"margin_charges_net"`
	TaxPercentage            decimal.Decimal `json:"tax_percentage"`
	AmountBeforeTax          decimal.Decimal `json:"amount_before_tax"`
	TaxAmount                decimal.Decimal `json:"tax_amount"`
	ItemTotal                decimal.Decimal `json:"item_total"`
	ItemDiscountPercentage   decimal.Decimal `json:"item_discount_percentage"`
	MarginDiscountPercentage decimal.Decimal `json:"margin_discount_percentage"`
}

// PricedItem pairs a raw item with its breakdown.
type PricedItem struct {
	RawItem
	ItemBreakdown
}

var hundred = decimal.NewFromInt(100)

func round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// PriceItem prices a single item against its category configuration.
// Every intermediate value is rounded to 2 decimal places at the point of
// computation (accounting convention): aggregate sums over the rounded
// fields never re-round, so item totals and estimation totals agree
// exactly. Reproducible: identical inputs yield identical breakdowns.
func PriceItem(item RawItem, cat CategoryRate, taxPercentage decimal.Decimal) ItemBreakdown {
	quantity := item.EffectiveQuantity()

	subtotal := round2(quantity.Mul(item.UnitPrice))

	itemDiscountAmount := round2(subtotal.Mul(item.ItemDiscountPercentage).Div(hundred))
	discountedSubtotal := subtotal.Sub(itemDiscountAmount)

	marginGross := round2(discountedSubtotal.Mul(cat.MarginPercentage).Div(hundred))
	marginDiscountAmount := round2(marginGross.Mul(item.MarginDiscountPercentage).Div(hundred))
	marginNet := marginGross.Sub(marginDiscountAmount)

	var amountBeforeTax decimal.Decimal
	if cat.PassThrough {
		amountBeforeTax = marginNet
	} else {
		amountBeforeTax = discountedSubtotal.Add(marginNet)
	}
	amountBeforeTax = round2(amountBeforeTax)

	taxAmount := round2(amountBeforeTax.Mul(taxPercentage).Div(hundred))
	itemTotal := round2(amountBeforeTax.Add(taxAmount))

	return ItemBreakdown{
		Subtotal:                 subtotal,
		ItemDiscountAmount:       itemDiscountAmount,
		DiscountedSubtotal:       discountedSubtotal,
		MarginChargesPercentage:  cat.MarginPercentage,
		MarginChargesGross:       marginGross,
		MarginDiscountAmount:     marginDiscountAmount,
		MarginChargesNet:         marginNet,
		TaxPercentage:            taxPercentage,
		AmountBeforeTax:          amountBeforeTax,
		TaxAmount:                taxAmount,
		ItemTotal:                itemTotal,
		ItemDiscountPercentage:   item.ItemDiscountPercentage,
		MarginDiscountPercentage: item.MarginDiscountPercentage,
	}
}

// PriceItems prices a batch. An item whose category is missing from the
// configuration fails the whole batch — partial item sets are never
// produced.
func PriceItems(items []RawItem, cfg RateConfig) ([]PricedItem, error) {
	if len(items) == 0 {
		return nil, validationf("no items supplied")
	}

	priced := make([]PricedItem, 0, len(items))
	for _, item := range items {
		cat, ok := cfg.Category(item.Category)
		if !ok {
			return nil, validationf("category %q not found in rate configuration", item.Category)
		}
		priced = append(priced, PricedItem{
			RawItem:       item,
			ItemBreakdown: PriceItem(item, cat, cfg.TaxPercentage),
		})
	}
	return priced, nil
}

// ValidateItemDiscounts checks an item's discount percentages against the
// category caps and returns one message per violation.
func ValidateItemDiscounts(item RawItem, cat CategoryRate) []string {
	var errs []string
	if item.ItemDiscountPercentage.GreaterThan(cat.MaxItemDiscountPercentage) {
		errs = append(errs, "item discount "+item.ItemDiscountPercentage.StringFixed(2)+
			"% exceeds maximum "+cat.MaxItemDiscountPercentage.StringFixed(2)+"% for "+cat.Name)
	}
	if item.MarginDiscountPercentage.GreaterThan(cat.MaxMarginDiscountPercentage) {
		errs = append(errs, "margin discount "+item.MarginDiscountPercentage.StringFixed(2)+
			"% exceeds maximum "+cat.MaxMarginDiscountPercentage.StringFixed(2)+"% for "+cat.Name)
	}
	return errs
}
