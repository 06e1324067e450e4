package core

import (
	"context"
	"errors"
	"fmt"

	"backoffice/internal/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type VendorInput struct {
	Name        string `json:"name"`
	ContactName string `json:"contact_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

type VendorService interface {
	Create(ctx context.Context, input VendorInput) (*Vendor, error)
	Get(ctx context.Context, vendorID int) (*Vendor, error)
	List(ctx context.Context) ([]Vendor, error)
	Deactivate(ctx context.Context, vendorID int) error
}

type vendorService struct {
	pool *pgxpool.Pool
}

// NewVendorService constructs a VendorService backed by PostgreSQL.
func NewVendorService(pool *pgxpool.Pool) VendorService {
	return &vendorService{pool: pool}
}

func (s *vendorService) Create(ctx context.Context, input VendorInput) (*Vendor, error) {
	if input.Name == "" {
		return nil, validationf("vendor name is required")
	}

	toPtr := func(s string) *string {
		if s == "" {
			return nil
		}
		return &s
	}

	v := &Vendor{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO vendors (name, contact_name, email, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, contact_name, email, phone, is_active, created_at`,
		input.Name, toPtr(input.ContactName), toPtr(input.Email), toPtr(input.Phone),
	).Scan(&v.ID, &v.Name, &v.ContactName, &v.Email, &v.Phone, &v.IsActive, &v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create vendor %q: %w", input.Name, err)
	}
	return v, nil
}

func (s *vendorService) Get(ctx context.Context, vendorID int) (*Vendor, error) {
	v := &Vendor{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, contact_name, email, phone, is_active, created_at
		FROM vendors
		WHERE id = $1`,
		vendorID,
	).Scan(&v.ID, &v.Name, &v.ContactName, &v.Email, &v.Phone, &v.IsActive, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("vendor %d not found", vendorID)
		}
		return nil, fmt.Errorf("get vendor %d: %w", vendorID, err)
	}
	return v, nil
}

func (s *vendorService) List(ctx context.Context) ([]Vendor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, contact_name, email, phone, is_active, created_at
		FROM vendors
		WHERE is_active
		ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	defer rows.Close()

	var vendors []Vendor
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.ContactName, &v.Email, &v.Phone, &v.IsActive, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

func (s *vendorService) Deactivate(ctx context.Context, vendorID int) error {
	tag, err := s.pool.Exec(ctx, "UPDATE vendors SET is_active = false WHERE id = $1", vendorID)
	if err != nil {
		return fmt.Errorf("deactivate vendor %d: %w", vendorID, err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundf("vendor %d not found", vendorID)
	}
	return nil
}

// VendorPayment is money going out to a vendor against a project.
type VendorPayment struct {
	ID              int           `json:"id"`
	ProjectID       int           `json:"project_id"`
	VendorID        int           `json:"vendor_id"`
	Amount          string        `json:"amount"`
	PaymentDate     string        `json:"payment_date"`
	PaymentStage    *string       `json:"payment_stage,omitempty"`
	ReferenceNumber *string       `json:"reference_number,omitempty"`
	Remarks         *string       `json:"remarks,omitempty"`
	Status          PaymentStatus `json:"status"`
	CreatedBy       *int          `json:"created_by,omitempty"`
	ApprovedBy      *int          `json:"approved_by,omitempty"`
}

type VendorPaymentInput struct {
	VendorID        int             `json:"vendor_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentDate     string          `json:"payment_date"`
	PaymentStage    *string         `json:"payment_stage,omitempty"`
	ReferenceNumber *string         `json:"reference_number,omitempty"`
	Remarks         *string         `json:"remarks,omitempty"`
}

type VendorPaymentService interface {
	Create(ctx context.Context, projectID int, input VendorPaymentInput, actor *User) (*VendorPayment, error)
	// Approve posts the payment's debit ledger entry exactly once.
	Approve(ctx context.Context, paymentID int, actor *User) error
	ListForProject(ctx context.Context, projectID int) ([]VendorPayment, error)
}

type vendorPaymentService struct {
	pool   *pgxpool.Pool
	ledger LedgerService
}

func NewVendorPaymentService(pool *pgxpool.Pool, ledger LedgerService) VendorPaymentService {
	return &vendorPaymentService{pool: pool, ledger: ledger}
}

func (s *vendorPaymentService) Create(ctx context.Context, projectID int, input VendorPaymentInput, actor *User) (*VendorPayment, error) {
	if actor == nil {
		return nil, permissionf("authentication required")
	}
	if !input.Amount.IsPositive() {
		return nil, validationf("payment amount must be positive")
	}
	if input.PaymentDate == "" {
		return nil, validationf("payment date is required")
	}

	var id int
	if err := s.pool.QueryRow(ctx, `
		INSERT INTO vendor_payments
		            (project_id, vendor_id, amount, payment_date, payment_stage,
		             reference_number, remarks, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8)
		RETURNING id`,
		projectID, input.VendorID, input.Amount, input.PaymentDate, input.PaymentStage,
		input.ReferenceNumber, input.Remarks, actor.ID,
	).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert vendor payment: %w", err)
	}
	return s.get(ctx, id)
}

func (s *vendorPaymentService) Approve(ctx context.Context, paymentID int, actor *User) error {
	if actor == nil || (actor.Role != RoleFinance && actor.Role != RoleAdmin) {
		return permissionf("only finance or an admin may approve a vendor payment")
	}

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var projectID int
		var amount decimal.Decimal
		var status PaymentStatus
		err := tx.QueryRow(ctx,
			"SELECT project_id, amount, status FROM vendor_payments WHERE id = $1 FOR UPDATE",
			paymentID,
		).Scan(&projectID, &amount, &status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFoundf("vendor payment %d not found", paymentID)
			}
			return fmt.Errorf("fetch vendor payment %d: %w", paymentID, err)
		}
		if status != PaymentPending {
			return statef("vendor payment %d cannot be approved: status is %s (must be pending)", paymentID, status)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE vendor_payments
			SET status = 'approved', approved_by = $1, approved_at = NOW()
			WHERE id = $2`,
			actor.ID, paymentID,
		); err != nil {
			return fmt.Errorf("approve vendor payment %d: %w", paymentID, err)
		}

		remark := "vendor payment"
		if err := s.ledger.PostEntryTx(ctx, tx, LedgerEntry{
			ProjectID:   projectID,
			SourceTable: "vendor_payments",
			SourceID:    paymentID,
			EntryType:   LedgerDebit,
			Amount:      amount.StringFixed(2),
			Remarks:     &remark,
		}); err != nil {
			return err
		}
		return logActivityTx(ctx, tx, projectID, "vendor_payment", paymentID, actor.ID, "approved", nil)
	})
}

func (s *vendorPaymentService) get(ctx context.Context, paymentID int) (*VendorPayment, error) {
	p := &VendorPayment{}
	var amount decimal.Decimal
	err := s.pool.QueryRow(ctx, `
		SELECT id, project_id, vendor_id, amount, payment_date::text, payment_stage,
		       reference_number, remarks, status, created_by, approved_by
		FROM vendor_payments
		WHERE id = $1`,
		paymentID,
	).Scan(
		&p.ID, &p.ProjectID, &p.VendorID, &amount, &p.PaymentDate, &p.PaymentStage,
		&p.ReferenceNumber, &p.Remarks, &p.Status, &p.CreatedBy, &p.ApprovedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("vendor payment %d not found", paymentID)
		}
		return nil, fmt.Errorf("get vendor payment %d: %w", paymentID, err)
	}
	p.Amount = amount.StringFixed(2)
	return p, nil
}

func (s *vendorPaymentService) ListForProject(ctx context.Context, projectID int) ([]VendorPayment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, vendor_id, amount, payment_date::text, payment_stage,
		       reference_number, remarks, status, created_by, approved_by
		FROM vendor_payments
		WHERE project_id = $1
		ORDER BY created_at DESC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list vendor payments for project %d: %w", projectID, err)
	}
	defer rows.Close()

	var payments []VendorPayment
	for rows.Next() {
		var p VendorPayment
		var amount decimal.Decimal
		if err := rows.Scan(
			&p.ID, &p.ProjectID, &p.VendorID, &amount, &p.PaymentDate, &p.PaymentStage,
			&p.ReferenceNumber, &p.Remarks, &p.Status, &p.CreatedBy, &p.ApprovedBy,
		); err != nil {
			return nil, fmt.Errorf("scan vendor payment: %w", err)
		}
		p.Amount = amount.StringFixed(2)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
