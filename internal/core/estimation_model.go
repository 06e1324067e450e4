package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estimation is the priced snapshot of a project's items at a point in time.
// Replacement inserts a new version and flips is_current; superseded rows are
// never mutated.
type Estimation struct {
	ID                int                        `json:"id"`
	ProjectID         int                        `json:"project_id"`
	BaseRateID        int                        `json:"base_rate_id"`
	Version           int                        `json:"version"`
	IsCurrent         bool                       `json:"is_current"`
	Source            string                     `json:"source"`
	ArtifactPath      *string                    `json:"artifact_path,omitempty"`
	CategoryBreakdown map[string]*CategoryTotals `json:"category_breakdown,omitempty"`
	ItemsValue        decimal.Decimal            `json:"items_value"`
	ItemsDiscount     decimal.Decimal            `json:"items_discount"`
	MarginCharges     decimal.Decimal            `json:"margin_charges"`
	MarginDiscount    decimal.Decimal            `json:"margin_discount"`
	TaxAmount         decimal.Decimal            `json:"tax_amount"`
	FinalValue        decimal.Decimal            `json:"final_value"`
	HasOverpayment    bool                       `json:"has_overpayment"`
	OverpaymentAmount decimal.Decimal            `json:"overpayment_amount"`
	CreatedBy         *int                       `json:"created_by,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
}

// EstimationItem is one persisted priced line. StableItemID survives
// estimation replacement and is the join key for purchase-request links.
type EstimationItem struct {
	ID           int `json:"id"`
	EstimationID int `json:"estimation_id"`
	PricedItem
	CreatedAt time.Time `json:"created_at"`
}

// OverpaymentState is the reconciliation verdict for a project's current
// estimation.
type OverpaymentState struct {
	HasOverpayment    bool            `json:"has_overpayment"`
	OverpaymentAmount decimal.Decimal `json:"overpayment_amount"`
}
