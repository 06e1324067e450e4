package core

import "time"

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleFinance   Role = "finance"
	RoleEstimator Role = "estimator"
	RoleViewer    Role = "viewer"
)

// User represents an authenticated system user.
type User struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

type Customer struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Vendor struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	ContactName *string   `json:"contact_name,omitempty"`
	Email       *string   `json:"email,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type Project struct {
	ID                int       `json:"id"`
	Name              string    `json:"name"`
	CustomerID        *int      `json:"customer_id,omitempty"`
	BaseRateID        *int      `json:"base_rate_id,omitempty"`
	InvoicedAmount    string    `json:"invoiced_amount"`
	HasOverInvoice    bool      `json:"has_over_invoice"`
	OverInvoiceAmount string    `json:"over_invoice_amount"`
	CreatedBy         *int      `json:"created_by,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

type PaymentType string

const (
	PaymentRegular PaymentType = "regular"
	// PaymentReceiptReversal is the negative-amount payment created to
	// resolve an overpayment.
	PaymentReceiptReversal PaymentType = "receipt_reversal"
)

type CustomerPayment struct {
	ID              int           `json:"id"`
	ProjectID       int           `json:"project_id"`
	CustomerID      *int          `json:"customer_id,omitempty"`
	PaymentType     PaymentType   `json:"payment_type"`
	Amount          string        `json:"amount"`
	PaymentDate     string        `json:"payment_date"`
	Mode            string        `json:"mode"`
	ReferenceNumber *string       `json:"reference_number,omitempty"`
	Remarks         *string       `json:"remarks,omitempty"`
	DocumentURL     *string       `json:"document_url,omitempty"`
	Status          PaymentStatus `json:"status"`
	CreatedBy       *int          `json:"created_by,omitempty"`
	ApprovedBy      *int          `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "pending"
	InvoiceApproved  InvoiceStatus = "approved"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// Invoice is a customer-facing invoice for a project. Negative amounts are
// credit notes.
type Invoice struct {
	ID            int           `json:"id"`
	ProjectID     int           `json:"project_id"`
	InvoiceNumber *string       `json:"invoice_number,omitempty"`
	InvoiceAmount string        `json:"invoice_amount"`
	InvoiceDate   string        `json:"invoice_date"`
	DocumentURL   *string       `json:"document_url,omitempty"`
	Remarks       *string       `json:"remarks,omitempty"`
	Status        InvoiceStatus `json:"status"`
	UploadedBy    *int          `json:"uploaded_by,omitempty"`
	ApprovedBy    *int          `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time    `json:"approved_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

type LedgerEntryType string

const (
	LedgerCredit LedgerEntryType = "credit"
	LedgerDebit  LedgerEntryType = "debit"
)

// LedgerEntry is one posting in a project's running account. At most one
// entry exists per (source_table, source_id).
type LedgerEntry struct {
	ID          int             `json:"id"`
	ProjectID   int             `json:"project_id"`
	SourceTable string          `json:"source_table"`
	SourceID    int             `json:"source_id"`
	EntryType   LedgerEntryType `json:"entry_type"`
	Amount      string          `json:"amount"`
	Remarks     *string         `json:"remarks,omitempty"`
	EntryDate   time.Time       `json:"entry_date"`
}
