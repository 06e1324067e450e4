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

type InvoiceInput struct {
	InvoiceNumber *string         `json:"invoice_number,omitempty"`
	Amount        decimal.Decimal `json:"invoice_amount"`
	InvoiceDate   string          `json:"invoice_date"`
	Remarks       *string         `json:"remarks,omitempty"`
	DocumentURL   *string         `json:"document_url,omitempty"`
}

// OverInvoiceState mirrors the project's invoiced-vs-estimation verdict.
type OverInvoiceState struct {
	HasOverInvoice    bool            `json:"has_over_invoice"`
	OverInvoiceAmount decimal.Decimal `json:"over_invoice_amount"`
}

type InvoiceService interface {
	Create(ctx context.Context, projectID int, input InvoiceInput, actor *User) (*Invoice, error)
	// Approve transitions a pending invoice to approved, folds its amount into
	// the project's running invoiced-amount accumulator, records its document,
	// and refreshes the over-invoice verdict.
	Approve(ctx context.Context, invoiceID int, actor *User) (*Invoice, error)
	Cancel(ctx context.Context, invoiceID int, actor *User) error
	// CreateCreditNote opens a pending negative invoice for exactly the
	// current over-invoice amount. Fails unless the project is over-invoiced.
	CreateCreditNote(ctx context.Context, projectID int, actor *User) (*Invoice, error)
	Get(ctx context.Context, invoiceID int) (*Invoice, error)
	ListForProject(ctx context.Context, projectID int) ([]Invoice, error)
}

type invoiceService struct {
	pool *pgxpool.Pool
}

func NewInvoiceService(pool *pgxpool.Pool) InvoiceService {
	return &invoiceService{pool: pool}
}

func (s *invoiceService) Create(ctx context.Context, projectID int, input InvoiceInput, actor *User) (*Invoice, error) {
	if actor == nil {
		return nil, permissionf("authentication required")
	}
	if input.Amount.IsZero() {
		return nil, validationf("invoice amount must not be zero")
	}
	if input.InvoiceDate == "" {
		return nil, validationf("invoice date is required")
	}

	var projectExists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)", projectID,
	).Scan(&projectExists); err != nil {
		return nil, fmt.Errorf("validate project: %w", err)
	}
	if !projectExists {
		return nil, notFoundf("project %d not found", projectID)
	}

	var id int
	if err := s.pool.QueryRow(ctx, `
		INSERT INTO project_invoices
		            (project_id, invoice_number, invoice_amount, invoice_date, document_url, remarks, status, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
		RETURNING id`,
		projectID, input.InvoiceNumber, input.Amount, input.InvoiceDate,
		input.DocumentURL, input.Remarks, actor.ID,
	).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert invoice: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *invoiceService) Approve(ctx context.Context, invoiceID int, actor *User) (*Invoice, error) {
	if actor == nil || actor.Role != RoleAdmin {
		return nil, permissionf("only an admin may approve an invoice")
	}

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var projectID int
		var amount decimal.Decimal
		var status InvoiceStatus
		var documentURL *string
		err := tx.QueryRow(ctx, `
			SELECT project_id, invoice_amount, status, document_url
			FROM project_invoices
			WHERE id = $1
			FOR UPDATE`,
			invoiceID,
		).Scan(&projectID, &amount, &status, &documentURL)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFoundf("invoice %d not found", invoiceID)
			}
			return fmt.Errorf("fetch invoice %d: %w", invoiceID, err)
		}
		if status != InvoicePending {
			return statef("invoice %d cannot be approved: status is %s (must be pending)", invoiceID, status)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE project_invoices
			SET status = 'approved', approved_by = $1, approved_at = NOW()
			WHERE id = $2`,
			actor.ID, invoiceID,
		); err != nil {
			return fmt.Errorf("approve invoice %d: %w", invoiceID, err)
		}

		if documentURL != nil {
			if _, err := tx.Exec(ctx, `
				INSERT INTO documents (project_id, document_type, document_url, source_table, source_id, uploaded_by)
				VALUES ($1, 'invoice', $2, 'project_invoices', $3, $4)
				ON CONFLICT (source_table, source_id) DO NOTHING`,
				projectID, *documentURL, invoiceID, actor.ID,
			); err != nil {
				return fmt.Errorf("record invoice document: %w", err)
			}
		}

		// Credit notes carry negative amounts, so the accumulator nets out.
		if _, err := tx.Exec(ctx,
			"UPDATE projects SET invoiced_amount = invoiced_amount + $1 WHERE id = $2",
			amount, projectID,
		); err != nil {
			return fmt.Errorf("update invoiced amount of project %d: %w", projectID, err)
		}

		if err := logActivityTx(ctx, tx, projectID, "project_invoice", invoiceID, actor.ID, "approved", nil); err != nil {
			return err
		}

		if _, err := recomputeOverInvoiceTx(ctx, tx, projectID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, invoiceID)
}

func (s *invoiceService) Cancel(ctx context.Context, invoiceID int, actor *User) error {
	if actor == nil || actor.Role != RoleAdmin {
		return permissionf("only an admin may cancel an invoice")
	}

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var projectID int
		var status InvoiceStatus
		err := tx.QueryRow(ctx,
			"SELECT project_id, status FROM project_invoices WHERE id = $1 FOR UPDATE",
			invoiceID,
		).Scan(&projectID, &status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFoundf("invoice %d not found", invoiceID)
			}
			return fmt.Errorf("fetch invoice %d: %w", invoiceID, err)
		}
		if status != InvoicePending {
			return statef("invoice %d cannot be cancelled: status is %s (must be pending)", invoiceID, status)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE project_invoices
			SET status = 'cancelled', cancelled_by = $1
			WHERE id = $2`,
			actor.ID, invoiceID,
		); err != nil {
			return fmt.Errorf("cancel invoice %d: %w", invoiceID, err)
		}
		return logActivityTx(ctx, tx, projectID, "project_invoice", invoiceID, actor.ID, "cancelled", nil)
	})
}

func (s *invoiceService) CreateCreditNote(ctx context.Context, projectID int, actor *User) (*Invoice, error) {
	if actor == nil || actor.Role != RoleAdmin {
		return nil, permissionf("only an admin may create a credit note")
	}

	var id int
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var hasOverInvoice bool
		var overAmount decimal.Decimal
		err := tx.QueryRow(ctx,
			"SELECT has_over_invoice, over_invoice_amount FROM projects WHERE id = $1 FOR UPDATE",
			projectID,
		).Scan(&hasOverInvoice, &overAmount)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFoundf("project %d not found", projectID)
			}
			return fmt.Errorf("fetch project %d: %w", projectID, err)
		}
		if !hasOverInvoice {
			return conflictf("project %d is not over-invoiced; nothing to credit", projectID)
		}

		var pendingCredit bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM project_invoices
				WHERE project_id = $1 AND invoice_amount < 0 AND status = 'pending'
			)`, projectID,
		).Scan(&pendingCredit); err != nil {
			return fmt.Errorf("check pending credit notes: %w", err)
		}
		if pendingCredit {
			return conflictf("project %d already has a pending credit note", projectID)
		}

		remark := fmt.Sprintf("credit note for over-invoiced %s", overAmount.StringFixed(2))
		if err := tx.QueryRow(ctx, `
			INSERT INTO project_invoices
			            (project_id, invoice_amount, invoice_date, remarks, status, uploaded_by)
			VALUES ($1, $2, CURRENT_DATE, $3, 'pending', $4)
			RETURNING id`,
			projectID, overAmount.Neg(), remark, actor.ID,
		).Scan(&id); err != nil {
			return fmt.Errorf("insert credit note: %w", err)
		}
		return logActivityTx(ctx, tx, projectID, "project_invoice", id, actor.ID, "credit_note_created", &remark)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// recomputeOverInvoiceTx compares the project's invoiced-amount accumulator
// against the current estimation's final value and persists the verdict on
// the project row. A project with no current estimation is left alone.
func recomputeOverInvoiceTx(ctx context.Context, tx pgx.Tx, projectID int) (OverInvoiceState, error) {
	var finalValue decimal.Decimal
	err := tx.QueryRow(ctx,
		"SELECT final_value FROM project_estimations WHERE project_id = $1 AND is_current",
		projectID,
	).Scan(&finalValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OverInvoiceState{}, nil
		}
		return OverInvoiceState{}, fmt.Errorf("fetch current estimation for project %d: %w", projectID, err)
	}

	var invoicedAmount decimal.Decimal
	if err := tx.QueryRow(ctx,
		"SELECT invoiced_amount FROM projects WHERE id = $1",
		projectID,
	).Scan(&invoicedAmount); err != nil {
		return OverInvoiceState{}, fmt.Errorf("fetch invoiced amount of project %d: %w", projectID, err)
	}

	state := OverInvoiceState{OverInvoiceAmount: decimal.Zero}
	if invoicedAmount.GreaterThan(finalValue) {
		state.HasOverInvoice = true
		state.OverInvoiceAmount = invoicedAmount.Sub(finalValue)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE projects SET has_over_invoice = $1, over_invoice_amount = $2 WHERE id = $3",
		state.HasOverInvoice, state.OverInvoiceAmount, projectID,
	); err != nil {
		return OverInvoiceState{}, fmt.Errorf("persist over-invoice state: %w", err)
	}
	return state, nil
}

const invoiceColumns = `
	id, project_id, invoice_number, invoice_amount, invoice_date::text, document_url,
	remarks, status, uploaded_by, approved_by, approved_at, created_at`

func (s *invoiceService) Get(ctx context.Context, invoiceID int) (*Invoice, error) {
	inv := &Invoice{}
	var amount decimal.Decimal
	err := s.pool.QueryRow(ctx,
		"SELECT"+invoiceColumns+" FROM project_invoices WHERE id = $1",
		invoiceID,
	).Scan(
		&inv.ID, &inv.ProjectID, &inv.InvoiceNumber, &amount, &inv.InvoiceDate, &inv.DocumentURL,
		&inv.Remarks, &inv.Status, &inv.UploadedBy, &inv.ApprovedBy, &inv.ApprovedAt, &inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("invoice %d not found", invoiceID)
		}
		return nil, fmt.Errorf("get invoice %d: %w", invoiceID, err)
	}
	inv.InvoiceAmount = amount.StringFixed(2)
	return inv, nil
}

func (s *invoiceService) ListForProject(ctx context.Context, projectID int) ([]Invoice, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT"+invoiceColumns+" FROM project_invoices WHERE project_id = $1 ORDER BY created_at DESC",
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list invoices for project %d: %w", projectID, err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		var amount decimal.Decimal
		if err := rows.Scan(
			&inv.ID, &inv.ProjectID, &inv.InvoiceNumber, &amount, &inv.InvoiceDate, &inv.DocumentURL,
			&inv.Remarks, &inv.Status, &inv.UploadedBy, &inv.ApprovedBy, &inv.ApprovedAt, &inv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		inv.InvoiceAmount = amount.StringFixed(2)
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}
