package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ItemAvailability is one estimation item's allocation position:
// available = total − confirmed − draft.
type ItemAvailability struct {
	StableItemID       string          `json:"stable_item_id"`
	ItemName           string          `json:"item_name"`
	TotalQty           decimal.Decimal `json:"total_qty"`
	ConfirmedAllocated decimal.Decimal `json:"confirmed_allocated"`
	DraftAllocated     decimal.Decimal `json:"draft_allocated"`
	AvailableQty       decimal.Decimal `json:"available_qty"`
}

// ProposedLink is one link in a proposed purchase-request item set, before
// insertion. A zero Weightage means the default scaling of 1.0.
type ProposedLink struct {
	StableEstimationItemID string          `json:"stable_estimation_item_id"`
	LinkedQty              decimal.Decimal `json:"linked_qty"`
	Weightage              decimal.Decimal `json:"weightage"`
}

func (l ProposedLink) effectiveQty() decimal.Decimal {
	w := l.Weightage
	if w.IsZero() {
		w = decimal.NewFromInt(1)
	}
	return l.LinkedQty.Mul(w)
}

type AllocationService interface {
	// ComputeAvailability reports every estimation item's committed and
	// remaining quantity. excludePRID, when non-nil, leaves that purchase
	// request's own links out of the accumulation (used while re-validating
	// an edit of that PR).
	ComputeAvailability(ctx context.Context, estimationID, projectID int, excludePRID *int) ([]ItemAvailability, error)
	// ValidateAllocation dry-runs the availability check for a proposed link
	// set and returns the violation messages. Empty means the proposal fits.
	ValidateAllocation(ctx context.Context, links []ProposedLink, excludePRID *int) ([]string, error)
}

type allocationService struct {
	pool *pgxpool.Pool
}

func NewAllocationService(pool *pgxpool.Pool) AllocationService {
	return &allocationService{pool: pool}
}

func (s *allocationService) ComputeAvailability(ctx context.Context, estimationID, projectID int, excludePRID *int) ([]ItemAvailability, error) {
	var ok bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM project_estimations WHERE id = $1 AND project_id = $2)",
		estimationID, projectID,
	).Scan(&ok); err != nil {
		return nil, fmt.Errorf("check estimation ownership: %w", err)
	}
	if !ok {
		return nil, notFoundf("estimation %d not found for project %d", estimationID, projectID)
	}
	return computeAvailability(ctx, s.pool, estimationID, excludePRID)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// computeAvailability aggregates linked_qty × weightage per estimation item
// across the live link set. Confirmed and approved purchase requests count as
// hard commitments; drafts are tracked separately so callers can distinguish
// them, but both reduce availability. Rejected and cancelled PRs release
// their quantities.
func computeAvailability(ctx context.Context, q querier, estimationID int, excludePRID *int) ([]ItemAvailability, error) {
	exclude := -1
	if excludePRID != nil {
		exclude = *excludePRID
	}

	rows, err := q.Query(ctx, `
		SELECT ei.stable_item_id, ei.item_name, ei.quantity,
		       COALESCE(SUM(l.linked_qty * l.weightage)
		                FILTER (WHERE pr.status IN ('confirmed', 'approved') AND pr.id <> $2), 0),
		       COALESCE(SUM(l.linked_qty * l.weightage)
		                FILTER (WHERE pr.status = 'draft' AND pr.id <> $2), 0)
		FROM estimation_items ei
		LEFT JOIN purchase_request_estimation_links l
		       ON l.stable_estimation_item_id = ei.stable_item_id
		LEFT JOIN purchase_request_items pri
		       ON pri.stable_item_id = l.stable_item_id
		LEFT JOIN purchase_requests pr
		       ON pr.id = pri.purchase_request_id
		WHERE ei.estimation_id = $1
		GROUP BY ei.stable_item_id, ei.item_name, ei.quantity
		ORDER BY ei.item_name`,
		estimationID, exclude,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate allocations for estimation %d: %w", estimationID, err)
	}
	defer rows.Close()

	var result []ItemAvailability
	for rows.Next() {
		var ia ItemAvailability
		if err := rows.Scan(&ia.StableItemID, &ia.ItemName, &ia.TotalQty, &ia.ConfirmedAllocated, &ia.DraftAllocated); err != nil {
			return nil, fmt.Errorf("scan availability row: %w", err)
		}
		ia.AvailableQty = ia.TotalQty.Sub(ia.ConfirmedAllocated).Sub(ia.DraftAllocated)
		result = append(result, ia)
	}
	return result, rows.Err()
}

// validateAllocationTx checks every proposed link against current
// availability, holding FOR UPDATE row locks on the referenced estimation
// items so a concurrent request against the same item blocks until this
// transaction commits or rolls back. Violations are collected, not
// short-circuited, and returned as one ConflictError naming each offending
// item with its requested and available quantity. Items with no links
// (direct purchases) pass untouched.
func validateAllocationTx(ctx context.Context, tx pgx.Tx, links []ProposedLink, excludePRID *int) error {
	if len(links) == 0 {
		return nil
	}

	ids := make([]string, 0, len(links))
	seen := make(map[string]bool, len(links))
	for _, l := range links {
		if !seen[l.StableEstimationItemID] {
			seen[l.StableEstimationItemID] = true
			ids = append(ids, l.StableEstimationItemID)
		}
	}

	// Lock the targeted estimation items for the rest of the transaction.
	rows, err := tx.Query(ctx, `
		SELECT stable_item_id, item_name, quantity, estimation_id
		FROM estimation_items
		WHERE stable_item_id = ANY($1)
		ORDER BY stable_item_id
		FOR UPDATE`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("lock estimation items: %w", err)
	}

	type target struct {
		name         string
		qty          decimal.Decimal
		estimationID int
	}
	targets := make(map[string]target, len(ids))
	for rows.Next() {
		var id string
		var t target
		if err := rows.Scan(&id, &t.name, &t.qty, &t.estimationID); err != nil {
			rows.Close()
			return fmt.Errorf("scan locked estimation item: %w", err)
		}
		targets[id] = t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate locked estimation items: %w", err)
	}

	// A link pointing at a vanished estimation item is corrupted data, not a
	// quantity problem.
	for _, id := range ids {
		if _, ok := targets[id]; !ok {
			return fmt.Errorf("data integrity: estimation item %s referenced by a link does not exist", id)
		}
	}

	estimationIDs := make(map[int]bool)
	for _, t := range targets {
		estimationIDs[t.estimationID] = true
	}

	availability := make(map[string]decimal.Decimal)
	for estID := range estimationIDs {
		avail, err := computeAvailability(ctx, tx, estID, excludePRID)
		if err != nil {
			return err
		}
		for _, ia := range avail {
			availability[ia.StableItemID] = ia.AvailableQty
		}
	}

	// Consume availability link by link so several proposed links against the
	// same item are checked cumulatively, not each against the full remainder.
	var violations []string
	for _, l := range links {
		requested := l.effectiveQty()
		available := availability[l.StableEstimationItemID]
		if requested.GreaterThan(available) {
			violations = append(violations, fmt.Sprintf(
				"item %q (%s): requested %s exceeds available %s",
				targets[l.StableEstimationItemID].name, l.StableEstimationItemID,
				requested.String(), available.String()))
			continue
		}
		availability[l.StableEstimationItemID] = available.Sub(requested)
	}

	if len(violations) > 0 {
		return &ConflictError{
			Msg:     fmt.Sprintf("%d allocation violation(s)", len(violations)),
			Details: violations,
		}
	}
	return nil
}

// ValidateAllocation runs the availability check without inserting anything,
// returning the violation list for caller-side preview. An empty slice means
// the proposal fits.
func (s *allocationService) ValidateAllocation(ctx context.Context, links []ProposedLink, excludePRID *int) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = validateAllocationTx(ctx, tx, links, excludePRID)
	if err == nil {
		return nil, nil
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict.Details, nil
	}
	return nil, err
}
