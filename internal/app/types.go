package app

import (
	"backoffice/internal/core"

	"github.com/shopspring/decimal"
)

// UserSession is returned on successful authentication; the web adapter
// encodes it into the auth cookie's JWT claims.
type UserSession struct {
	UserID int    `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type CreateProjectRequest struct {
	Name       string `json:"name"`
	CustomerID *int   `json:"customer_id,omitempty"`
}

type CreateCustomerRequest struct {
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

type CreatePurchaseRequestRequest struct {
	ProjectID    int                `json:"project_id"`
	VendorID     int                `json:"vendor_id"`
	EstimationID *int               `json:"estimation_id,omitempty"`
	Items        []core.PRItemInput `json:"items"`
}

// EstimationResult bundles an estimation header with its items.
type EstimationResult struct {
	Estimation *core.Estimation      `json:"estimation"`
	Items      []core.EstimationItem `json:"items"`
}

// StatementResult is the project ledger read model: chronological entries
// with running balance, plus the closing balance.
type StatementResult struct {
	ProjectID int                  `json:"project_id"`
	Lines     []core.StatementLine `json:"lines"`
	Balance   decimal.Decimal      `json:"balance"`
}
