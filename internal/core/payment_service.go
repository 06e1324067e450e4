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

// CustomerPaymentInput is the caller-supplied part of a new payment record.
type CustomerPaymentInput struct {
	CustomerID      *int            `json:"customer_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentDate     string          `json:"payment_date"`
	Mode            string          `json:"mode"`
	ReferenceNumber *string         `json:"reference_number,omitempty"`
	Remarks         *string         `json:"remarks,omitempty"`
}

type PaymentService interface {
	Create(ctx context.Context, projectID int, input CustomerPaymentInput, actor *User) (*CustomerPayment, error)
	// Approve transitions a pending payment to approved, posts its ledger
	// entry exactly once, and re-runs the overpayment comparison.
	Approve(ctx context.Context, paymentID int, documentURL *string, actor *User) (*CustomerPayment, error)
	Reject(ctx context.Context, paymentID int, actor *User) error
	// CreateReceiptReversal opens a pending negative payment for exactly the
	// current overpayment amount. Fails unless the project is overpaid.
	CreateReceiptReversal(ctx context.Context, projectID int, actor *User) (*CustomerPayment, error)
	Get(ctx context.Context, paymentID int) (*CustomerPayment, error)
	ListForProject(ctx context.Context, projectID int) ([]CustomerPayment, error)
}

type paymentService struct {
	pool   *pgxpool.Pool
	ledger LedgerService
}

func NewPaymentService(pool *pgxpool.Pool, ledger LedgerService) PaymentService {
	return &paymentService{pool: pool, ledger: ledger}
}

func (s *paymentService) Create(ctx context.Context, projectID int, input CustomerPaymentInput, actor *User) (*CustomerPayment, error) {
	if actor == nil {
		return nil, permissionf("authentication required")
	}
	if !input.Amount.IsPositive() {
		return nil, validationf("payment amount must be positive")
	}
	if input.PaymentDate == "" {
		return nil, validationf("payment date is required")
	}
	mode := input.Mode
	if mode == "" {
		mode = "bank"
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
		INSERT INTO customer_payments
		            (project_id, customer_id, payment_type, amount, payment_date, mode,
		             reference_number, remarks, status, created_by)
		VALUES ($1, $2, 'regular', $3, $4, $5, $6, $7, 'pending', $8)
		RETURNING id`,
		projectID, input.CustomerID, input.Amount, input.PaymentDate, mode,
		input.ReferenceNumber, input.Remarks, actor.ID,
	).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert customer payment: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *paymentService) Approve(ctx context.Context, paymentID int, documentURL *string, actor *User) (*CustomerPayment, error) {
	if actor == nil || (actor.Role != RoleFinance && actor.Role != RoleAdmin) {
		return nil, permissionf("only finance or an admin may approve a payment")
	}

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var projectID int
		var paymentType PaymentType
		var amount decimal.Decimal
		var status PaymentStatus
		var storedDoc *string
		err := tx.QueryRow(ctx, `
			SELECT project_id, payment_type, amount, status, document_url
			FROM customer_payments
			WHERE id = $1
			FOR UPDATE`,
			paymentID,
		).Scan(&projectID, &paymentType, &amount, &status, &storedDoc)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFoundf("payment %d not found", paymentID)
			}
			return fmt.Errorf("fetch payment %d: %w", paymentID, err)
		}

		if status != PaymentPending {
			return statef("payment %d cannot be approved: status is %s (must be pending)", paymentID, status)
		}

		doc := storedDoc
		if documentURL != nil {
			doc = documentURL
		}
		// A reversal resolves money already taken from the customer; the
		// supporting document is the proof the refund actually happened.
		if paymentType == PaymentReceiptReversal && doc == nil {
			return validationf("a receipt reversal cannot be approved without its supporting document")
		}

		if _, err := tx.Exec(ctx, `
			UPDATE customer_payments
			SET status = 'approved', document_url = $1, approved_by = $2, approved_at = NOW()
			WHERE id = $3`,
			doc, actor.ID, paymentID,
		); err != nil {
			return fmt.Errorf("approve payment %d: %w", paymentID, err)
		}

		if doc != nil {
			if _, err := tx.Exec(ctx, `
				INSERT INTO documents (project_id, document_type, document_url, source_table, source_id, uploaded_by)
				VALUES ($1, 'payment_receipt', $2, 'customer_payments', $3, $4)
				ON CONFLICT (source_table, source_id) DO NOTHING`,
				projectID, *doc, paymentID, actor.ID,
			); err != nil {
				return fmt.Errorf("record payment document: %w", err)
			}
		}

		entryType := LedgerCredit
		remark := "customer payment"
		if amount.IsNegative() {
			entryType = LedgerDebit
			remark = "receipt reversal"
		}
		if err := s.ledger.PostEntryTx(ctx, tx, LedgerEntry{
			ProjectID:   projectID,
			SourceTable: "customer_payments",
			SourceID:    paymentID,
			EntryType:   entryType,
			Amount:      amount.Abs().StringFixed(2),
			Remarks:     &remark,
		}); err != nil {
			return err
		}

		if err := logActivityTx(ctx, tx, projectID, "customer_payment", paymentID, actor.ID, "approved", nil); err != nil {
			return err
		}

		// Either side of the payments-vs-estimation comparison may have
		// tipped; refresh the verdict in the same transaction.
		if _, err := recomputeOverpaymentTx(ctx, tx, projectID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, paymentID)
}

func (s *paymentService) Reject(ctx context.Context, paymentID int, actor *User) error {
	if actor == nil || (actor.Role != RoleFinance && actor.Role != RoleAdmin) {
		return permissionf("only finance or an admin may reject a payment")
	}

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var status PaymentStatus
		var projectID int
		err := tx.QueryRow(ctx,
			"SELECT project_id, status FROM customer_payments WHERE id = $1 FOR UPDATE",
			paymentID,
		).Scan(&projectID, &status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFoundf("payment %d not found", paymentID)
			}
			return fmt.Errorf("fetch payment %d: %w", paymentID, err)
		}
		if status != PaymentPending {
			return statef("payment %d cannot be rejected: status is %s (must be pending)", paymentID, status)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE customer_payments
			SET status = 'rejected', approved_by = $1, approved_at = NOW()
			WHERE id = $2`,
			actor.ID, paymentID,
		); err != nil {
			return fmt.Errorf("reject payment %d: %w", paymentID, err)
		}
		return logActivityTx(ctx, tx, projectID, "customer_payment", paymentID, actor.ID, "rejected", nil)
	})
}

func (s *paymentService) CreateReceiptReversal(ctx context.Context, projectID int, actor *User) (*CustomerPayment, error) {
	if actor == nil || actor.Role != RoleAdmin {
		return nil, permissionf("only an admin may create a receipt reversal")
	}

	var id int
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var hasOverpayment bool
		var overpayment decimal.Decimal
		err := tx.QueryRow(ctx, `
			SELECT has_overpayment, overpayment_amount
			FROM project_estimations
			WHERE project_id = $1 AND is_current
			FOR UPDATE`,
			projectID,
		).Scan(&hasOverpayment, &overpayment)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFoundf("project %d has no current estimation", projectID)
			}
			return fmt.Errorf("fetch current estimation for project %d: %w", projectID, err)
		}

		if !hasOverpayment {
			return conflictf("project %d is not overpaid; nothing to reverse", projectID)
		}

		// One outstanding reversal at a time — a second one would refund the
		// same overpayment twice.
		var pendingReversal bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM customer_payments
				WHERE project_id = $1 AND payment_type = 'receipt_reversal' AND status = 'pending'
			)`, projectID,
		).Scan(&pendingReversal); err != nil {
			return fmt.Errorf("check pending reversals: %w", err)
		}
		if pendingReversal {
			return conflictf("project %d already has a pending receipt reversal", projectID)
		}

		remark := fmt.Sprintf("reversal of overpayment %s", overpayment.StringFixed(2))
		if err := tx.QueryRow(ctx, `
			INSERT INTO customer_payments
			            (project_id, payment_type, amount, payment_date, mode, remarks, status, created_by)
			VALUES ($1, 'receipt_reversal', $2, CURRENT_DATE, 'bank', $3, 'pending', $4)
			RETURNING id`,
			projectID, overpayment.Neg(), remark, actor.ID,
		).Scan(&id); err != nil {
			return fmt.Errorf("insert receipt reversal: %w", err)
		}

		return logActivityTx(ctx, tx, projectID, "customer_payment", id, actor.ID, "reversal_created", &remark)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

const paymentColumns = `
	id, project_id, customer_id, payment_type, amount, payment_date::text, mode,
	reference_number, remarks, document_url, status, created_by, approved_by,
	approved_at, created_at`

func (s *paymentService) Get(ctx context.Context, paymentID int) (*CustomerPayment, error) {
	p := &CustomerPayment{}
	var amount decimal.Decimal
	err := s.pool.QueryRow(ctx,
		"SELECT"+paymentColumns+" FROM customer_payments WHERE id = $1",
		paymentID,
	).Scan(
		&p.ID, &p.ProjectID, &p.CustomerID, &p.PaymentType, &amount, &p.PaymentDate, &p.Mode,
		&p.ReferenceNumber, &p.Remarks, &p.DocumentURL, &p.Status, &p.CreatedBy, &p.ApprovedBy,
		&p.ApprovedAt, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("payment %d not found", paymentID)
		}
		return nil, fmt.Errorf("get payment %d: %w", paymentID, err)
	}
	p.Amount = amount.StringFixed(2)
	return p, nil
}

func (s *paymentService) ListForProject(ctx context.Context, projectID int) ([]CustomerPayment, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT"+paymentColumns+" FROM customer_payments WHERE project_id = $1 ORDER BY created_at DESC",
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list payments for project %d: %w", projectID, err)
	}
	defer rows.Close()

	var payments []CustomerPayment
	for rows.Next() {
		var p CustomerPayment
		var amount decimal.Decimal
		if err := rows.Scan(
			&p.ID, &p.ProjectID, &p.CustomerID, &p.PaymentType, &amount, &p.PaymentDate, &p.Mode,
			&p.ReferenceNumber, &p.Remarks, &p.DocumentURL, &p.Status, &p.CreatedBy, &p.ApprovedBy,
			&p.ApprovedAt, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		p.Amount = amount.StringFixed(2)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
