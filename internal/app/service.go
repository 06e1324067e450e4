package app

import (
	"context"
	"io"

	"backoffice/internal/core"
)

// ApplicationService is the single interface all adapters call. It decouples
// presentation from business logic: implementations contain no display logic
// of any kind.
type ApplicationService interface {
	// AuthenticateUser verifies credentials and returns a session on success.
	AuthenticateUser(ctx context.Context, email, password string) (*UserSession, error)

	// GetUser returns a user profile by ID.
	GetUser(ctx context.Context, userID int) (*core.User, error)

	// CreateUser creates a new user. Admin only.
	CreateUser(ctx context.Context, req CreateUserRequest, actor *core.User) (*core.User, error)

	// CreateProject creates a project, optionally linked to a customer.
	CreateProject(ctx context.Context, req CreateProjectRequest, actor *core.User) (*core.Project, error)
	GetProject(ctx context.Context, projectID int) (*core.Project, error)
	ListProjects(ctx context.Context) ([]core.Project, error)
	CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*core.Customer, error)

	// RequestBaseRate records a pending base-rate configuration for a project.
	RequestBaseRate(ctx context.Context, projectID int, cfg core.RateConfig, actor *core.User) (*core.BaseRate, error)
	// ApproveBaseRate activates the rate after a field-by-field comparison of
	// the submitted configuration against the stored one. Admin only.
	ApproveBaseRate(ctx context.Context, baseRateID int, submitted core.RateConfig, actor *core.User) (*core.BaseRate, error)
	RejectBaseRate(ctx context.Context, baseRateID int, actor *core.User) error
	GetActiveBaseRate(ctx context.Context, projectID int) (*core.BaseRate, error)
	ListBaseRates(ctx context.Context, projectID int) ([]core.BaseRate, error)

	// ImportEstimationCSV decodes the canonical CSV schema, prices the items
	// against the active base rate, and installs the result as the project's
	// new current estimation. The CSV snapshot is written to the artifact
	// store after the database transaction commits; a failed snapshot write is
	// logged, not fatal.
	ImportEstimationCSV(ctx context.Context, projectID int, r io.Reader, actor *core.User) (*EstimationResult, error)
	// ExportEstimationCSV writes the current estimation's items in the
	// canonical CSV schema.
	ExportEstimationCSV(ctx context.Context, projectID int, w io.Writer) error
	GetCurrentEstimation(ctx context.Context, projectID int) (*EstimationResult, error)
	ListEstimationVersions(ctx context.Context, projectID int) ([]core.Estimation, error)
	// RollbackEstimation re-activates a prior estimation version.
	RollbackEstimation(ctx context.Context, projectID, version int, actor *core.User) (*EstimationResult, error)
	// LoadEstimationArtifact reads the stored CSV snapshot for a version,
	// falling back between naming variants. interchange.ErrArtifactMissing
	// (wrapped) signals a recoverable absence.
	LoadEstimationArtifact(ctx context.Context, projectID, version int) ([]core.RawItem, error)

	// GetItemAvailability reports per-item allocation headroom for an estimation.
	GetItemAvailability(ctx context.Context, estimationID, projectID int, excludePRID *int) ([]core.ItemAvailability, error)
	// ValidateAllocation dry-runs a proposed link set; the returned messages
	// are empty when the proposal fits.
	ValidateAllocation(ctx context.Context, links []core.ProposedLink, excludePRID *int) ([]string, error)

	CreatePurchaseRequest(ctx context.Context, req CreatePurchaseRequestRequest, actor *core.User) (*core.PurchaseRequest, error)
	AddPurchaseRequestItems(ctx context.Context, prID int, items []core.PRItemInput, actor *core.User) (*core.PurchaseRequest, error)
	// EditPurchaseRequest archives the current item generation and installs
	// the payload as the next version. Returns the new version number.
	EditPurchaseRequest(ctx context.Context, prID int, items []core.PRItemInput, actor *core.User) (int, error)
	ConfirmPurchaseRequest(ctx context.Context, prID int, actor *core.User) (*core.PurchaseRequest, error)
	ApprovePurchaseRequest(ctx context.Context, prID int, actor *core.User) (*core.PurchaseRequest, error)
	RejectPurchaseRequest(ctx context.Context, prID int, actor *core.User) (*core.PurchaseRequest, error)
	CancelPurchaseRequest(ctx context.Context, prID int, actor *core.User) (*core.PurchaseRequest, error)
	GetPurchaseRequest(ctx context.Context, prID int) (*core.PurchaseRequest, error)
	ListPurchaseRequests(ctx context.Context, projectID int) ([]core.PurchaseRequest, error)
	PurchaseRequestVersions(ctx context.Context, prID int) ([]core.PRVersion, error)
	PurchaseRequestItemsAtVersion(ctx context.Context, prID, version int) ([]core.PurchaseRequestItem, error)

	CreateCustomerPayment(ctx context.Context, projectID int, input core.CustomerPaymentInput, actor *core.User) (*core.CustomerPayment, error)
	// ApproveCustomerPayment posts the ledger entry exactly once and refreshes
	// the overpayment verdict. Finance or admin.
	ApproveCustomerPayment(ctx context.Context, paymentID int, documentURL *string, actor *core.User) (*core.CustomerPayment, error)
	RejectCustomerPayment(ctx context.Context, paymentID int, actor *core.User) error
	// CreateReceiptReversal opens a pending negative payment for the current
	// overpayment amount. Admin only.
	CreateReceiptReversal(ctx context.Context, projectID int, actor *core.User) (*core.CustomerPayment, error)
	ListCustomerPayments(ctx context.Context, projectID int) ([]core.CustomerPayment, error)

	CreateInvoice(ctx context.Context, projectID int, input core.InvoiceInput, actor *core.User) (*core.Invoice, error)
	ApproveInvoice(ctx context.Context, invoiceID int, actor *core.User) (*core.Invoice, error)
	CancelInvoice(ctx context.Context, invoiceID int, actor *core.User) error
	// CreateCreditNote opens a pending negative invoice for the current
	// over-invoice amount. Admin only.
	CreateCreditNote(ctx context.Context, projectID int, actor *core.User) (*core.Invoice, error)
	ListInvoices(ctx context.Context, projectID int) ([]core.Invoice, error)

	CreateVendor(ctx context.Context, input core.VendorInput) (*core.Vendor, error)
	ListVendors(ctx context.Context) ([]core.Vendor, error)
	DeactivateVendor(ctx context.Context, vendorID int) error
	CreateVendorPayment(ctx context.Context, projectID int, input core.VendorPaymentInput, actor *core.User) (*core.VendorPayment, error)
	ApproveVendorPayment(ctx context.Context, paymentID int, actor *core.User) error
	ListVendorPayments(ctx context.Context, projectID int) ([]core.VendorPayment, error)

	// GetProjectStatement returns the project's ledger entries with running balance.
	GetProjectStatement(ctx context.Context, projectID int) (*StatementResult, error)

	// ListProjectActivity returns the project's audit trail, newest first.
	ListProjectActivity(ctx context.Context, projectID int) ([]core.ActivityLog, error)
}
