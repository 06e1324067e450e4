package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type PRStatus string

const (
	PRDraft     PRStatus = "draft"
	PRConfirmed PRStatus = "confirmed"
	PRApproved  PRStatus = "approved"
	PRRejected  PRStatus = "rejected"
	PRCancelled PRStatus = "cancelled"
)

type ItemLifecycle string

const (
	ItemPending   ItemLifecycle = "pending"
	ItemOrdered   ItemLifecycle = "ordered"
	ItemReceived  ItemLifecycle = "received"
	ItemCancelled ItemLifecycle = "cancelled"
)

// PurchaseRequest is an outstanding order against a vendor, composed of PR
// items optionally linked to estimation items.
type PurchaseRequest struct {
	ID                   int                   `json:"id"`
	ProjectID            int                   `json:"project_id"`
	VendorID             int                   `json:"vendor_id"`
	VendorName           string                `json:"vendor_name"`
	EstimationID         *int                  `json:"estimation_id,omitempty"`
	PRNumber             string                `json:"pr_number"`
	Status               PRStatus              `json:"status"`
	Active               bool                  `json:"active"`
	ExpectedDeliveryDate *string               `json:"expected_delivery_date,omitempty"`
	Notes                *string               `json:"notes,omitempty"`
	ItemsValue           decimal.Decimal       `json:"items_value"`
	TaxAmount            decimal.Decimal       `json:"tax_amount"`
	FinalValue           decimal.Decimal       `json:"final_value"`
	CreatedBy            *int                  `json:"created_by,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
	Items                []PurchaseRequestItem `json:"items,omitempty"`
}

// PurchaseRequestItem is one line of a purchase request. StableItemID
// persists across versions of the same logical item; an edit produces a new
// row generation, never an in-place mutation.
type PurchaseRequestItem struct {
	ID               int             `json:"id"`
	StableItemID     string          `json:"stable_item_id"`
	PRID             int             `json:"purchase_request_id"`
	Version          int             `json:"version"`
	ItemName         string          `json:"item_name"`
	Category         *string         `json:"category,omitempty"`
	RoomName         *string         `json:"room_name,omitempty"`
	Quantity         decimal.Decimal `json:"quantity"`
	Unit             *string         `json:"unit,omitempty"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	TaxPercentage    decimal.Decimal `json:"tax_percentage"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	ItemTotal        decimal.Decimal `json:"item_total"`
	LifecycleStatus  ItemLifecycle   `json:"lifecycle_status"`
	IsDirectPurchase bool            `json:"is_direct_purchase"`
	CreatedAt        time.Time       `json:"created_at"`
	Links            []EstimationLink `json:"links,omitempty"`
}

// EstimationLink records how much of an estimation item's quantity a PR item
// consumes, scaled by weightage.
type EstimationLink struct {
	ID                     int             `json:"id"`
	StableItemID           string          `json:"stable_item_id"`
	StableEstimationItemID string          `json:"stable_estimation_item_id"`
	Version                int             `json:"version"`
	LinkedQty              decimal.Decimal `json:"linked_qty"`
	Weightage              decimal.Decimal `json:"weightage"`
	Notes                  *string         `json:"notes,omitempty"`
}

// PRItemInput is one proposed purchase-request line. StableItemID is set
// when the payload refers to an existing logical item (edits); empty for new
// items. Items without links are direct purchases and skip the allocation
// check.
type PRItemInput struct {
	StableItemID  string          `json:"stable_item_id,omitempty"`
	ItemName      string          `json:"item_name"`
	Category      *string         `json:"category,omitempty"`
	RoomName      *string         `json:"room_name,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          *string         `json:"unit,omitempty"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TaxPercentage decimal.Decimal `json:"tax_percentage"`
	Links         []ProposedLink  `json:"links,omitempty"`
}

// PRVersion is one entry in a purchase request's change history.
type PRVersion struct {
	ID            int       `json:"id"`
	PRID          int       `json:"purchase_request_id"`
	Version       int       `json:"version"`
	ChangeType    string    `json:"change_type"`
	ChangeSummary *string   `json:"change_summary,omitempty"`
	ItemsAffected []string  `json:"items_affected,omitempty"`
	TotalItems    int       `json:"total_items"`
	CreatedBy     *int      `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
