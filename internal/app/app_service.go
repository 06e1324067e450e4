package app

import (
	"context"
	"fmt"
	"io"
	"log"

	"backoffice/internal/core"
	"backoffice/internal/interchange"

	"github.com/jackc/pgx/v5/pgxpool"
)

type appService struct {
	pool           *pgxpool.Pool
	users          core.UserService
	projects       core.ProjectService
	baseRates      core.BaseRateService
	estimations    core.EstimationService
	allocations    core.AllocationService
	prs            core.PurchaseRequestService
	payments       core.PaymentService
	invoices       core.InvoiceService
	vendors        core.VendorService
	vendorPayments core.VendorPaymentService
	ledger         core.LedgerService
	artifacts      *interchange.ArtifactStore
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(pool *pgxpool.Pool, artifacts *interchange.ArtifactStore) ApplicationService {
	ledger := core.NewLedgerService(pool)
	baseRates := core.NewBaseRateService(pool)
	return &appService{
		pool:           pool,
		users:          core.NewUserService(pool),
		projects:       core.NewProjectService(pool),
		baseRates:      baseRates,
		estimations:    core.NewEstimationService(pool, baseRates),
		allocations:    core.NewAllocationService(pool),
		prs:            core.NewPurchaseRequestService(pool),
		payments:       core.NewPaymentService(pool, ledger),
		invoices:       core.NewInvoiceService(pool),
		vendors:        core.NewVendorService(pool),
		vendorPayments: core.NewVendorPaymentService(pool, ledger),
		ledger:         ledger,
		artifacts:      artifacts,
	}
}

func (s *appService) AuthenticateUser(ctx context.Context, email, password string) (*UserSession, error) {
	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return &UserSession{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Role:   string(user.Role),
	}, nil
}

func (s *appService) GetUser(ctx context.Context, userID int) (*core.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *appService) CreateUser(ctx context.Context, req CreateUserRequest, actor *core.User) (*core.User, error) {
	return s.users.Create(ctx, req.Name, req.Email, req.Password, core.Role(req.Role), actor)
}

func (s *appService) CreateProject(ctx context.Context, req CreateProjectRequest, actor *core.User) (*core.Project, error) {
	return s.projects.Create(ctx, req.Name, req.CustomerID, actor)
}

func (s *appService) GetProject(ctx context.Context, projectID int) (*core.Project, error) {
	return s.projects.Get(ctx, projectID)
}

func (s *appService) ListProjects(ctx context.Context) ([]core.Project, error) {
	return s.projects.List(ctx)
}

func (s *appService) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*core.Customer, error) {
	return s.projects.CreateCustomer(ctx, req.Name, req.Email, req.Phone)
}

func (s *appService) RequestBaseRate(ctx context.Context, projectID int, cfg core.RateConfig, actor *core.User) (*core.BaseRate, error) {
	if actor == nil {
		return nil, &core.PermissionError{Msg: "authentication required"}
	}
	return s.baseRates.Request(ctx, projectID, cfg, actor.ID)
}

func (s *appService) ApproveBaseRate(ctx context.Context, baseRateID int, submitted core.RateConfig, actor *core.User) (*core.BaseRate, error) {
	return s.baseRates.Approve(ctx, baseRateID, submitted, actor)
}

func (s *appService) RejectBaseRate(ctx context.Context, baseRateID int, actor *core.User) error {
	return s.baseRates.Reject(ctx, baseRateID, actor)
}

func (s *appService) GetActiveBaseRate(ctx context.Context, projectID int) (*core.BaseRate, error) {
	return s.baseRates.Active(ctx, projectID)
}

func (s *appService) ListBaseRates(ctx context.Context, projectID int) ([]core.BaseRate, error) {
	return s.baseRates.ListForProject(ctx, projectID)
}

// ImportEstimationCSV decodes, prices, and installs the uploaded item set.
// The snapshot file is written after the transaction commits: the database
// is the source of truth and readers treat a missing artifact as recoverable,
// so a failed write degrades to a logged warning.
func (s *appService) ImportEstimationCSV(ctx context.Context, projectID int, r io.Reader, actor *core.User) (*EstimationResult, error) {
	if actor == nil {
		return nil, &core.PermissionError{Msg: "authentication required"}
	}
	items, err := interchange.ReadItems(r)
	if err != nil {
		return nil, &core.ValidationError{Msg: fmt.Sprintf("invalid estimation CSV: %v", err)}
	}
	if len(items) == 0 {
		return nil, &core.ValidationError{Msg: "estimation CSV contains no items"}
	}

	est, err := s.estimations.Replace(ctx, projectID, items, actor.ID, nil)
	if err != nil {
		return nil, err
	}

	if path, err := s.artifacts.Save(projectID, est.Version, items); err != nil {
		log.Printf("estimation artifact for project %d v%d not written: %v", projectID, est.Version, err)
	} else {
		if _, err := s.pool.Exec(ctx,
			"UPDATE project_estimations SET artifact_path = $1 WHERE id = $2",
			path, est.ID,
		); err != nil {
			log.Printf("estimation artifact path for project %d v%d not recorded: %v", projectID, est.Version, err)
		} else {
			est.ArtifactPath = &path
		}
	}

	return s.estimationResult(ctx, est)
}

func (s *appService) ExportEstimationCSV(ctx context.Context, projectID int, w io.Writer) error {
	est, err := s.estimations.Current(ctx, projectID)
	if err != nil {
		return err
	}
	items, err := s.estimations.Items(ctx, est.ID)
	if err != nil {
		return err
	}
	raw := make([]core.RawItem, len(items))
	for i, it := range items {
		raw[i] = it.RawItem
	}
	return interchange.WriteItems(w, raw)
}

func (s *appService) GetCurrentEstimation(ctx context.Context, projectID int) (*EstimationResult, error) {
	est, err := s.estimations.Current(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.estimationResult(ctx, est)
}

func (s *appService) ListEstimationVersions(ctx context.Context, projectID int) ([]core.Estimation, error) {
	return s.estimations.Versions(ctx, projectID)
}

func (s *appService) RollbackEstimation(ctx context.Context, projectID, version int, actor *core.User) (*EstimationResult, error) {
	est, err := s.estimations.Rollback(ctx, projectID, version, actor)
	if err != nil {
		return nil, err
	}
	return s.estimationResult(ctx, est)
}

func (s *appService) LoadEstimationArtifact(ctx context.Context, projectID, version int) ([]core.RawItem, error) {
	return s.artifacts.Load(projectID, version)
}

func (s *appService) estimationResult(ctx context.Context, est *core.Estimation) (*EstimationResult, error) {
	items, err := s.estimations.Items(ctx, est.ID)
	if err != nil {
		return nil, err
	}
	return &EstimationResult{Estimation: est, Items: items}, nil
}

func (s *appService) GetItemAvailability(ctx context.Context, estimationID, projectID int, excludePRID *int) ([]core.ItemAvailability, error) {
	return s.allocations.ComputeAvailability(ctx, estimationID, projectID, excludePRID)
}

func (s *appService) ValidateAllocation(ctx context.Context, links []core.ProposedLink, excludePRID *int) ([]string, error) {
	return s.allocations.ValidateAllocation(ctx, links, excludePRID)
}

func (s *appService) CreatePurchaseRequest(ctx context.Context, req CreatePurchaseRequestRequest, actor *core.User) (*core.PurchaseRequest, error) {
	return s.prs.Create(ctx, req.ProjectID, req.VendorID, req.EstimationID, req.Items, actor)
}

func (s *appService) AddPurchaseRequestItems(ctx context.Context, prID int, items []core.PRItemInput, actor *core.User) (*core.PurchaseRequest, error) {
	return s.prs.AddItems(ctx, prID, items, actor)
}

func (s *appService) EditPurchaseRequest(ctx context.Context, prID int, items []core.PRItemInput, actor *core.User) (int, error) {
	return s.prs.Edit(ctx, prID, items, actor)
}

func (s *appService) ConfirmPurchaseRequest(ctx context.Context, prID int, actor *core.User) (*core.PurchaseRequest, error) {
	if err := s.prs.Confirm(ctx, prID, actor); err != nil {
		return nil, err
	}
	return s.prs.Get(ctx, prID)
}

func (s *appService) ApprovePurchaseRequest(ctx context.Context, prID int, actor *core.User) (*core.PurchaseRequest, error) {
	if err := s.prs.Approve(ctx, prID, actor); err != nil {
		return nil, err
	}
	return s.prs.Get(ctx, prID)
}

func (s *appService) RejectPurchaseRequest(ctx context.Context, prID int, actor *core.User) (*core.PurchaseRequest, error) {
	if err := s.prs.Reject(ctx, prID, actor); err != nil {
		return nil, err
	}
	return s.prs.Get(ctx, prID)
}

func (s *appService) CancelPurchaseRequest(ctx context.Context, prID int, actor *core.User) (*core.PurchaseRequest, error) {
	if err := s.prs.Cancel(ctx, prID, actor); err != nil {
		return nil, err
	}
	return s.prs.Get(ctx, prID)
}

func (s *appService) GetPurchaseRequest(ctx context.Context, prID int) (*core.PurchaseRequest, error) {
	return s.prs.Get(ctx, prID)
}

func (s *appService) ListPurchaseRequests(ctx context.Context, projectID int) ([]core.PurchaseRequest, error) {
	return s.prs.ListForProject(ctx, projectID)
}

func (s *appService) PurchaseRequestVersions(ctx context.Context, prID int) ([]core.PRVersion, error) {
	return s.prs.Versions(ctx, prID)
}

func (s *appService) PurchaseRequestItemsAtVersion(ctx context.Context, prID, version int) ([]core.PurchaseRequestItem, error) {
	return s.prs.ItemsAtVersion(ctx, prID, version)
}

func (s *appService) CreateCustomerPayment(ctx context.Context, projectID int, input core.CustomerPaymentInput, actor *core.User) (*core.CustomerPayment, error) {
	return s.payments.Create(ctx, projectID, input, actor)
}

func (s *appService) ApproveCustomerPayment(ctx context.Context, paymentID int, documentURL *string, actor *core.User) (*core.CustomerPayment, error) {
	return s.payments.Approve(ctx, paymentID, documentURL, actor)
}

func (s *appService) RejectCustomerPayment(ctx context.Context, paymentID int, actor *core.User) error {
	return s.payments.Reject(ctx, paymentID, actor)
}

func (s *appService) CreateReceiptReversal(ctx context.Context, projectID int, actor *core.User) (*core.CustomerPayment, error) {
	return s.payments.CreateReceiptReversal(ctx, projectID, actor)
}

func (s *appService) ListCustomerPayments(ctx context.Context, projectID int) ([]core.CustomerPayment, error) {
	return s.payments.ListForProject(ctx, projectID)
}

func (s *appService) CreateInvoice(ctx context.Context, projectID int, input core.InvoiceInput, actor *core.User) (*core.Invoice, error) {
	return s.invoices.Create(ctx, projectID, input, actor)
}

func (s *appService) ApproveInvoice(ctx context.Context, invoiceID int, actor *core.User) (*core.Invoice, error) {
	return s.invoices.Approve(ctx, invoiceID, actor)
}

func (s *appService) CancelInvoice(ctx context.Context, invoiceID int, actor *core.User) error {
	return s.invoices.Cancel(ctx, invoiceID, actor)
}

func (s *appService) CreateCreditNote(ctx context.Context, projectID int, actor *core.User) (*core.Invoice, error) {
	return s.invoices.CreateCreditNote(ctx, projectID, actor)
}

func (s *appService) ListInvoices(ctx context.Context, projectID int) ([]core.Invoice, error) {
	return s.invoices.ListForProject(ctx, projectID)
}

func (s *appService) CreateVendor(ctx context.Context, input core.VendorInput) (*core.Vendor, error) {
	return s.vendors.Create(ctx, input)
}

func (s *appService) ListVendors(ctx context.Context) ([]core.Vendor, error) {
	return s.vendors.List(ctx)
}

func (s *appService) DeactivateVendor(ctx context.Context, vendorID int) error {
	return s.vendors.Deactivate(ctx, vendorID)
}

func (s *appService) CreateVendorPayment(ctx context.Context, projectID int, input core.VendorPaymentInput, actor *core.User) (*core.VendorPayment, error) {
	return s.vendorPayments.Create(ctx, projectID, input, actor)
}

func (s *appService) ApproveVendorPayment(ctx context.Context, paymentID int, actor *core.User) error {
	return s.vendorPayments.Approve(ctx, paymentID, actor)
}

func (s *appService) ListVendorPayments(ctx context.Context, projectID int) ([]core.VendorPayment, error) {
	return s.vendorPayments.ListForProject(ctx, projectID)
}

func (s *appService) GetProjectStatement(ctx context.Context, projectID int) (*StatementResult, error) {
	lines, err := s.ledger.Statement(ctx, projectID)
	if err != nil {
		return nil, err
	}
	balance, err := s.ledger.Balance(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &StatementResult{ProjectID: projectID, Lines: lines, Balance: balance}, nil
}

func (s *appService) ListProjectActivity(ctx context.Context, projectID int) ([]core.ActivityLog, error) {
	return core.ListActivity(ctx, s.pool, projectID)
}
