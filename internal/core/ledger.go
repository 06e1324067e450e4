package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type LedgerService interface {
	// PostEntry posts one entry in its own transaction. Use for standalone calls.
	PostEntry(ctx context.Context, entry LedgerEntry) error
	// PostEntryTx posts one entry inside the caller's transaction. Use when the
	// caller controls the transaction boundary (e.g. payment approval) so the
	// posting and the status transition are fully atomic.
	PostEntryTx(ctx context.Context, tx pgx.Tx, entry LedgerEntry) error
	Statement(ctx context.Context, projectID int) ([]StatementLine, error)
	Balance(ctx context.Context, projectID int) (decimal.Decimal, error)
}

type ledgerService struct {
	pool *pgxpool.Pool
}

func NewLedgerService(pool *pgxpool.Pool) LedgerService {
	return &ledgerService{pool: pool}
}

func (s *ledgerService) PostEntry(ctx context.Context, entry LedgerEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := postEntryWithTx(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *ledgerService) PostEntryTx(ctx context.Context, tx pgx.Tx, entry LedgerEntry) error {
	return postEntryWithTx(ctx, tx, entry)
}

// postEntryWithTx inserts the entry unless one already exists for the same
// source record. At most one entry per (source_table, source_id) — replaying
// an approval never double-posts.
func postEntryWithTx(ctx context.Context, tx pgx.Tx, entry LedgerEntry) error {
	if entry.EntryType != LedgerCredit && entry.EntryType != LedgerDebit {
		return validationf("invalid ledger entry type %q", entry.EntryType)
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM project_ledger WHERE source_table = $1 AND source_id = $2)",
		entry.SourceTable, entry.SourceID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check existing ledger entry: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO project_ledger (project_id, source_table, source_id, entry_type, amount, remarks)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_table, source_id) DO NOTHING`,
		entry.ProjectID, entry.SourceTable, entry.SourceID, string(entry.EntryType), entry.Amount, entry.Remarks,
	); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// StatementLine is one ledger entry together with the running balance after it.
type StatementLine struct {
	LedgerEntry
	Balance string `json:"balance"`
}

// Statement returns the project's ledger in posting order with a running
// balance: credits add, debits subtract.
func (s *ledgerService) Statement(ctx context.Context, projectID int) ([]StatementLine, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, source_table, source_id, entry_type, amount, remarks, entry_date
		FROM project_ledger
		WHERE project_id = $1
		ORDER BY entry_date, id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger for project %d: %w", projectID, err)
	}
	defer rows.Close()

	var lines []StatementLine
	balance := decimal.Zero
	for rows.Next() {
		var line StatementLine
		var amount decimal.Decimal
		if err := rows.Scan(
			&line.ID, &line.ProjectID, &line.SourceTable, &line.SourceID,
			&line.EntryType, &amount, &line.Remarks, &line.EntryDate,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		if line.EntryType == LedgerCredit {
			balance = balance.Add(amount)
		} else {
			balance = balance.Sub(amount)
		}
		line.Amount = amount.StringFixed(2)
		line.Balance = balance.StringFixed(2)
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return lines, nil
}

func (s *ledgerService) Balance(ctx context.Context, projectID int) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN entry_type = 'credit' THEN amount ELSE -amount END), 0)
		FROM project_ledger
		WHERE project_id = $1`,
		projectID,
	).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("compute balance for project %d: %w", projectID, err)
	}
	return balance, nil
}
