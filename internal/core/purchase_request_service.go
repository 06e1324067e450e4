package core

import (
	"context"
	"errors"
	"fmt"

	"backoffice/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PurchaseRequestService interface {
	// Create opens a purchase request for a vendor. An existing draft for the
	// same project and vendor is reused: the items are appended to it instead
	// of opening a parallel draft.
	Create(ctx context.Context, projectID, vendorID int, estimationID *int, items []PRItemInput, actor *User) (*PurchaseRequest, error)
	AddItems(ctx context.Context, prID int, items []PRItemInput, actor *User) (*PurchaseRequest, error)
	// Edit replaces the PR's item set: the current generation is archived to
	// history verbatim and the payload becomes the next version. Returns the
	// new version number.
	Edit(ctx context.Context, prID int, items []PRItemInput, actor *User) (int, error)
	Confirm(ctx context.Context, prID int, actor *User) error
	Approve(ctx context.Context, prID int, actor *User) error
	Reject(ctx context.Context, prID int, actor *User) error
	Cancel(ctx context.Context, prID int, actor *User) error
	Get(ctx context.Context, prID int) (*PurchaseRequest, error)
	ListForProject(ctx context.Context, projectID int) ([]PurchaseRequest, error)
	Versions(ctx context.Context, prID int) ([]PRVersion, error)
	// ItemsAtVersion reads a historical generation; the current version is
	// served from the live table.
	ItemsAtVersion(ctx context.Context, prID, version int) ([]PurchaseRequestItem, error)
}

type purchaseRequestService struct {
	pool *pgxpool.Pool
}

func NewPurchaseRequestService(pool *pgxpool.Pool) PurchaseRequestService {
	return &purchaseRequestService{pool: pool}
}

func canEditPRs(actor *User) bool {
	return actor != nil && (actor.Role == RoleAdmin || actor.Role == RoleEstimator)
}

func (s *purchaseRequestService) Create(ctx context.Context, projectID, vendorID int, estimationID *int, items []PRItemInput, actor *User) (*PurchaseRequest, error) {
	if !canEditPRs(actor) {
		return nil, permissionf("only an admin or estimator may create a purchase request")
	}
	if len(items) == 0 {
		return nil, validationf("purchase request must have at least one item")
	}

	var prID int
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var vendorExists bool
		if err := tx.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM vendors WHERE id = $1 AND is_active)", vendorID,
		).Scan(&vendorExists); err != nil {
			return fmt.Errorf("validate vendor: %w", err)
		}
		if !vendorExists {
			return notFoundf("vendor %d not found", vendorID)
		}

		// Reuse an open draft for the same vendor rather than fragmenting the
		// order across parallel drafts.
		var version int
		err := tx.QueryRow(ctx, `
			SELECT id FROM purchase_requests
			WHERE project_id = $1 AND vendor_id = $2 AND status = 'draft' AND active
			ORDER BY id
			LIMIT 1
			FOR UPDATE`,
			projectID, vendorID,
		).Scan(&prID)
		switch {
		case err == nil:
			if version, err = currentPRVersion(ctx, tx, prID); err != nil {
				return err
			}
		case errors.Is(err, pgx.ErrNoRows):
			prNumber, err := nextPRNumber(ctx, tx, projectID)
			if err != nil {
				return err
			}
			if err := tx.QueryRow(ctx, `
				INSERT INTO purchase_requests (project_id, vendor_id, estimation_id, pr_number, status, created_by)
				VALUES ($1, $2, $3, $4, 'draft', $5)
				RETURNING id`,
				projectID, vendorID, estimationID, prNumber, actor.ID,
			).Scan(&prID); err != nil {
				return fmt.Errorf("insert purchase request: %w", err)
			}
			version = 1
			if err := recordPRVersion(ctx, tx, prID, 1, "created", nil, len(items), actor.ID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("find open draft for vendor %d: %w", vendorID, err)
		}

		if err := validateAllocationTx(ctx, tx, collectLinks(items), nil); err != nil {
			return err
		}
		if err := insertPRItems(ctx, tx, prID, version, items, actor.ID); err != nil {
			return err
		}
		return recomputePRTotals(ctx, tx, prID)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, prID)
}

func (s *purchaseRequestService) AddItems(ctx context.Context, prID int, items []PRItemInput, actor *User) (*PurchaseRequest, error) {
	if !canEditPRs(actor) {
		return nil, permissionf("only an admin or estimator may modify a purchase request")
	}
	if len(items) == 0 {
		return nil, validationf("no items supplied")
	}

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		status, err := lockPR(ctx, tx, prID)
		if err != nil {
			return err
		}
		if status != PRDraft {
			return statef("purchase request %d cannot be modified: status is %s (must be draft)", prID, status)
		}
		version, err := currentPRVersion(ctx, tx, prID)
		if err != nil {
			return err
		}
		if err := validateAllocationTx(ctx, tx, collectLinks(items), nil); err != nil {
			return err
		}
		if err := insertPRItems(ctx, tx, prID, version, items, actor.ID); err != nil {
			return err
		}
		return recomputePRTotals(ctx, tx, prID)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, prID)
}

// Edit archives the current generation and installs the payload as the next
// one. Any stable_item_id present before the edit but omitted from the
// payload is implicitly deleted: it gets no new row, and its history stays
// queryable under the prior version.
func (s *purchaseRequestService) Edit(ctx context.Context, prID int, items []PRItemInput, actor *User) (int, error) {
	if !canEditPRs(actor) {
		return 0, permissionf("only an admin or estimator may edit a purchase request")
	}
	if len(items) == 0 {
		return 0, validationf("edit payload must contain at least one item")
	}

	var newVersion int
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		status, err := lockPR(ctx, tx, prID)
		if err != nil {
			return err
		}
		if status != PRDraft {
			return statef("purchase request %d cannot be edited: status is %s (must be draft)", prID, status)
		}

		// Referenced items must still be pending. Collect every offender so
		// the caller sees the full list at once.
		lifecycle := make(map[string]ItemLifecycle)
		rows, err := tx.Query(ctx,
			"SELECT stable_item_id, lifecycle_status FROM purchase_request_items WHERE purchase_request_id = $1",
			prID,
		)
		if err != nil {
			return fmt.Errorf("fetch live items for PR %d: %w", prID, err)
		}
		for rows.Next() {
			var id string
			var ls ItemLifecycle
			if err := rows.Scan(&id, &ls); err != nil {
				rows.Close()
				return fmt.Errorf("scan live item: %w", err)
			}
			lifecycle[id] = ls
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate live items: %w", err)
		}

		var offenders []string
		for _, item := range items {
			if item.StableItemID == "" {
				continue
			}
			ls, ok := lifecycle[item.StableItemID]
			if !ok {
				return notFoundf("item %s not found on purchase request %d", item.StableItemID, prID)
			}
			if ls != ItemPending {
				offenders = append(offenders, fmt.Sprintf(
					"item %q (%s): lifecycle status is %s, only pending items are editable",
					item.ItemName, item.StableItemID, ls))
			}
		}
		if len(offenders) > 0 {
			return &ConflictError{
				Msg:     fmt.Sprintf("purchase request %d has %d non-editable item(s)", prID, len(offenders)),
				Details: offenders,
			}
		}

		// Re-validate quantities with this PR's own prior allocation excluded
		// so it doesn't double-count against itself.
		if err := validateAllocationTx(ctx, tx, collectLinks(items), &prID); err != nil {
			return err
		}

		prevVersion, err := currentPRVersion(ctx, tx, prID)
		if err != nil {
			return err
		}

		if err := archivePRGeneration(ctx, tx, prID, actor.ID); err != nil {
			return err
		}

		newVersion = prevVersion + 1
		if err := insertPRItems(ctx, tx, prID, newVersion, items, actor.ID); err != nil {
			return err
		}

		affected := make([]string, 0, len(items))
		for _, item := range items {
			if item.StableItemID != "" {
				affected = append(affected, item.StableItemID)
			}
		}
		if err := recordPRVersion(ctx, tx, prID, newVersion, "edited", affected, len(items), actor.ID); err != nil {
			return err
		}
		return recomputePRTotals(ctx, tx, prID)
	})
	if err != nil {
		return 0, err
	}
	return newVersion, nil
}

func (s *purchaseRequestService) Confirm(ctx context.Context, prID int, actor *User) error {
	if !canEditPRs(actor) {
		return permissionf("only an admin or estimator may confirm a purchase request")
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		status, err := lockPR(ctx, tx, prID)
		if err != nil {
			return err
		}
		if status != PRDraft {
			return statef("purchase request %d cannot be confirmed: status is %s (must be draft)", prID, status)
		}

		// Confirmation hardens this PR's own draft links into confirmed ones,
		// so re-check them against availability with the PR excluded.
		links, err := livePRLinks(ctx, tx, prID)
		if err != nil {
			return err
		}
		if err := validateAllocationTx(ctx, tx, links, &prID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			"UPDATE purchase_requests SET status = 'confirmed', updated_at = NOW() WHERE id = $1",
			prID,
		); err != nil {
			return fmt.Errorf("confirm purchase request %d: %w", prID, err)
		}
		return logPRActivity(ctx, tx, prID, actor.ID, "confirmed")
	})
}

func (s *purchaseRequestService) Approve(ctx context.Context, prID int, actor *User) error {
	if actor == nil || actor.Role != RoleAdmin {
		return permissionf("only an admin may approve a purchase request")
	}
	return s.transition(ctx, prID, PRConfirmed, PRApproved, actor, "approved")
}

func (s *purchaseRequestService) Reject(ctx context.Context, prID int, actor *User) error {
	if actor == nil || actor.Role != RoleAdmin {
		return permissionf("only an admin may reject a purchase request")
	}
	return s.transition(ctx, prID, PRConfirmed, PRRejected, actor, "rejected")
}

func (s *purchaseRequestService) Cancel(ctx context.Context, prID int, actor *User) error {
	if !canEditPRs(actor) {
		return permissionf("only an admin or estimator may cancel a purchase request")
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		status, err := lockPR(ctx, tx, prID)
		if err != nil {
			return err
		}
		if status == PRCancelled {
			return nil
		}
		if status == PRApproved && actor.Role != RoleAdmin {
			return permissionf("only an admin may cancel an approved purchase request")
		}
		if _, err := tx.Exec(ctx,
			"UPDATE purchase_requests SET status = 'cancelled', active = false, updated_at = NOW() WHERE id = $1",
			prID,
		); err != nil {
			return fmt.Errorf("cancel purchase request %d: %w", prID, err)
		}
		return logPRActivity(ctx, tx, prID, actor.ID, "cancelled")
	})
}

func (s *purchaseRequestService) transition(ctx context.Context, prID int, from, to PRStatus, actor *User, action string) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		status, err := lockPR(ctx, tx, prID)
		if err != nil {
			return err
		}
		if status == to {
			return nil
		}
		if status != from {
			return statef("purchase request %d cannot be %s: status is %s (must be %s)", prID, action, status, from)
		}
		if _, err := tx.Exec(ctx,
			"UPDATE purchase_requests SET status = $1, updated_at = NOW() WHERE id = $2",
			string(to), prID,
		); err != nil {
			return fmt.Errorf("%s purchase request %d: %w", action, prID, err)
		}
		return logPRActivity(ctx, tx, prID, actor.ID, action)
	})
}

func lockPR(ctx context.Context, tx pgx.Tx, prID int) (PRStatus, error) {
	var status PRStatus
	err := tx.QueryRow(ctx,
		"SELECT status FROM purchase_requests WHERE id = $1 FOR UPDATE",
		prID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", notFoundf("purchase request %d not found", prID)
		}
		return "", fmt.Errorf("fetch purchase request %d: %w", prID, err)
	}
	return status, nil
}

func currentPRVersion(ctx context.Context, tx pgx.Tx, prID int) (int, error) {
	var version int
	if err := tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(version), 1) FROM purchase_request_versions WHERE purchase_request_id = $1",
		prID,
	).Scan(&version); err != nil {
		return 0, fmt.Errorf("resolve current version of PR %d: %w", prID, err)
	}
	return version, nil
}

// archivePRGeneration copies the live item and link rows verbatim into the
// history tables, then deletes them from the live tables.
func archivePRGeneration(ctx context.Context, tx pgx.Tx, prID, actorID int) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO purchase_request_items_history
		            (stable_item_id, purchase_request_id, version, item_name, category, room_name,
		             quantity, unit, width, height, unit_price, subtotal, tax_percentage,
		             tax_amount, item_total, lifecycle_status, is_direct_purchase,
		             created_by, created_at, updated_at, archived_by)
		SELECT stable_item_id, purchase_request_id, version, item_name, category, room_name,
		       quantity, unit, width, height, unit_price, subtotal, tax_percentage,
		       tax_amount, item_total, lifecycle_status, is_direct_purchase,
		       created_by, created_at, updated_at, $2
		FROM purchase_request_items
		WHERE purchase_request_id = $1`,
		prID, actorID,
	); err != nil {
		return fmt.Errorf("archive items of PR %d: %w", prID, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO purchase_request_estimation_links_history
		            (stable_item_id, stable_estimation_item_id, version, linked_qty, weightage, notes, created_at)
		SELECT l.stable_item_id, l.stable_estimation_item_id, l.version, l.linked_qty, l.weightage, l.notes, l.created_at
		FROM purchase_request_estimation_links l
		JOIN purchase_request_items i ON i.stable_item_id = l.stable_item_id
		WHERE i.purchase_request_id = $1`,
		prID,
	); err != nil {
		return fmt.Errorf("archive links of PR %d: %w", prID, err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM purchase_request_estimation_links l
		USING purchase_request_items i
		WHERE i.stable_item_id = l.stable_item_id AND i.purchase_request_id = $1`,
		prID,
	); err != nil {
		return fmt.Errorf("delete live links of PR %d: %w", prID, err)
	}

	if _, err := tx.Exec(ctx,
		"DELETE FROM purchase_request_items WHERE purchase_request_id = $1",
		prID,
	); err != nil {
		return fmt.Errorf("delete live items of PR %d: %w", prID, err)
	}
	return nil
}

func insertPRItems(ctx context.Context, tx pgx.Tx, prID, version int, items []PRItemInput, actorID int) error {
	for i, item := range items {
		if item.ItemName == "" {
			return validationf("item %d has no name", i+1)
		}
		if item.Quantity.IsNegative() || item.UnitPrice.IsNegative() {
			return validationf("item %q has a negative quantity or unit price", item.ItemName)
		}

		stableID := item.StableItemID
		if stableID == "" {
			stableID = uuid.NewString()
		}

		subtotal := round2(item.Quantity.Mul(item.UnitPrice))
		taxAmount := round2(subtotal.Mul(item.TaxPercentage).Div(hundred))
		itemTotal := subtotal.Add(taxAmount)

		if _, err := tx.Exec(ctx, `
			INSERT INTO purchase_request_items
			            (stable_item_id, purchase_request_id, version, item_name, category, room_name,
			             quantity, unit, unit_price, subtotal, tax_percentage, tax_amount, item_total,
			             lifecycle_status, is_direct_purchase, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 'pending', $14, $15)`,
			stableID, prID, version, item.ItemName, item.Category, item.RoomName,
			item.Quantity, item.Unit, item.UnitPrice, subtotal, item.TaxPercentage,
			taxAmount, itemTotal, len(item.Links) == 0, actorID,
		); err != nil {
			return fmt.Errorf("insert PR item %q: %w", item.ItemName, err)
		}

		for _, link := range item.Links {
			weightage := link.Weightage
			if weightage.IsZero() {
				weightage = decimal.NewFromInt(1)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO purchase_request_estimation_links
				            (stable_item_id, stable_estimation_item_id, version, linked_qty, weightage)
				VALUES ($1, $2, $3, $4, $5)`,
				stableID, link.StableEstimationItemID, version, link.LinkedQty, weightage,
			); err != nil {
				return fmt.Errorf("insert link for PR item %q: %w", item.ItemName, err)
			}
		}
	}
	return nil
}

// recomputePRTotals re-derives the PR header totals from the live item rows.
func recomputePRTotals(ctx context.Context, tx pgx.Tx, prID int) error {
	if _, err := tx.Exec(ctx, `
		UPDATE purchase_requests pr
		SET items_value = t.items_value,
		    tax_amount  = t.tax_amount,
		    final_value = t.final_value,
		    updated_at  = NOW()
		FROM (
			SELECT COALESCE(SUM(subtotal), 0)   AS items_value,
			       COALESCE(SUM(tax_amount), 0) AS tax_amount,
			       COALESCE(SUM(item_total), 0) AS final_value
			FROM purchase_request_items
			WHERE purchase_request_id = $1
		) t
		WHERE pr.id = $1`,
		prID,
	); err != nil {
		return fmt.Errorf("recompute totals of PR %d: %w", prID, err)
	}
	return nil
}

func recordPRVersion(ctx context.Context, tx pgx.Tx, prID, version int, changeType string, affected []string, totalItems, actorID int) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO purchase_request_versions
		            (purchase_request_id, version, change_type, items_affected, total_items, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		prID, version, changeType, affected, totalItems, actorID,
	); err != nil {
		return fmt.Errorf("record version %d of PR %d: %w", version, prID, err)
	}
	return nil
}

func logPRActivity(ctx context.Context, tx pgx.Tx, prID, actorID int, action string) error {
	var projectID int
	if err := tx.QueryRow(ctx,
		"SELECT project_id FROM purchase_requests WHERE id = $1", prID,
	).Scan(&projectID); err != nil {
		return fmt.Errorf("resolve project of PR %d: %w", prID, err)
	}
	return logActivityTx(ctx, tx, projectID, "purchase_request", prID, actorID, action, nil)
}

func collectLinks(items []PRItemInput) []ProposedLink {
	var links []ProposedLink
	for _, item := range items {
		links = append(links, item.Links...)
	}
	return links
}

func livePRLinks(ctx context.Context, tx pgx.Tx, prID int) ([]ProposedLink, error) {
	rows, err := tx.Query(ctx, `
		SELECT l.stable_estimation_item_id, l.linked_qty, l.weightage
		FROM purchase_request_estimation_links l
		JOIN purchase_request_items i ON i.stable_item_id = l.stable_item_id
		WHERE i.purchase_request_id = $1`,
		prID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch links of PR %d: %w", prID, err)
	}
	defer rows.Close()

	var links []ProposedLink
	for rows.Next() {
		var l ProposedLink
		if err := rows.Scan(&l.StableEstimationItemID, &l.LinkedQty, &l.Weightage); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *purchaseRequestService) Get(ctx context.Context, prID int) (*PurchaseRequest, error) {
	pr := &PurchaseRequest{}
	err := s.pool.QueryRow(ctx, `
		SELECT pr.id, pr.project_id, pr.vendor_id, v.name, pr.estimation_id,
		       pr.pr_number, pr.status, pr.active, pr.expected_delivery_date::text,
		       pr.notes, pr.items_value, pr.tax_amount, pr.final_value,
		       pr.created_by, pr.created_at, pr.updated_at
		FROM purchase_requests pr
		JOIN vendors v ON v.id = pr.vendor_id
		WHERE pr.id = $1`,
		prID,
	).Scan(
		&pr.ID, &pr.ProjectID, &pr.VendorID, &pr.VendorName, &pr.EstimationID,
		&pr.PRNumber, &pr.Status, &pr.Active, &pr.ExpectedDeliveryDate,
		&pr.Notes, &pr.ItemsValue, &pr.TaxAmount, &pr.FinalValue,
		&pr.CreatedBy, &pr.CreatedAt, &pr.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("purchase request %d not found", prID)
		}
		return nil, fmt.Errorf("get purchase request %d: %w", prID, err)
	}

	items, err := s.liveItems(ctx, prID)
	if err != nil {
		return nil, err
	}
	pr.Items = items
	return pr, nil
}

func (s *purchaseRequestService) liveItems(ctx context.Context, prID int) ([]PurchaseRequestItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, stable_item_id, purchase_request_id, version, item_name, category, room_name,
		       quantity, unit, unit_price, subtotal, tax_percentage, tax_amount, item_total,
		       lifecycle_status, is_direct_purchase, created_at
		FROM purchase_request_items
		WHERE purchase_request_id = $1
		ORDER BY id`,
		prID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch items of PR %d: %w", prID, err)
	}
	defer rows.Close()

	var items []PurchaseRequestItem
	for rows.Next() {
		var it PurchaseRequestItem
		if err := rows.Scan(
			&it.ID, &it.StableItemID, &it.PRID, &it.Version, &it.ItemName, &it.Category, &it.RoomName,
			&it.Quantity, &it.Unit, &it.UnitPrice, &it.Subtotal, &it.TaxPercentage,
			&it.TaxAmount, &it.ItemTotal, &it.LifecycleStatus, &it.IsDirectPurchase, &it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan PR item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range items {
		links, err := s.itemLinks(ctx, items[i].StableItemID)
		if err != nil {
			return nil, err
		}
		items[i].Links = links
	}
	return items, nil
}

func (s *purchaseRequestService) itemLinks(ctx context.Context, stableItemID string) ([]EstimationLink, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, stable_item_id, stable_estimation_item_id, version, linked_qty, weightage, notes
		FROM purchase_request_estimation_links
		WHERE stable_item_id = $1
		ORDER BY id`,
		stableItemID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch links of item %s: %w", stableItemID, err)
	}
	defer rows.Close()

	var links []EstimationLink
	for rows.Next() {
		var l EstimationLink
		if err := rows.Scan(&l.ID, &l.StableItemID, &l.StableEstimationItemID, &l.Version, &l.LinkedQty, &l.Weightage, &l.Notes); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *purchaseRequestService) ListForProject(ctx context.Context, projectID int) ([]PurchaseRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pr.id, pr.project_id, pr.vendor_id, v.name, pr.estimation_id,
		       pr.pr_number, pr.status, pr.active, pr.expected_delivery_date::text,
		       pr.notes, pr.items_value, pr.tax_amount, pr.final_value,
		       pr.created_by, pr.created_at, pr.updated_at
		FROM purchase_requests pr
		JOIN vendors v ON v.id = pr.vendor_id
		WHERE pr.project_id = $1
		ORDER BY pr.created_at DESC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list purchase requests for project %d: %w", projectID, err)
	}
	defer rows.Close()

	var prs []PurchaseRequest
	for rows.Next() {
		var pr PurchaseRequest
		if err := rows.Scan(
			&pr.ID, &pr.ProjectID, &pr.VendorID, &pr.VendorName, &pr.EstimationID,
			&pr.PRNumber, &pr.Status, &pr.Active, &pr.ExpectedDeliveryDate,
			&pr.Notes, &pr.ItemsValue, &pr.TaxAmount, &pr.FinalValue,
			&pr.CreatedBy, &pr.CreatedAt, &pr.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan purchase request: %w", err)
		}
		prs = append(prs, pr)
	}
	return prs, rows.Err()
}

func (s *purchaseRequestService) Versions(ctx context.Context, prID int) ([]PRVersion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, purchase_request_id, version, change_type, change_summary,
		       items_affected, total_items, created_by, created_at
		FROM purchase_request_versions
		WHERE purchase_request_id = $1
		ORDER BY version DESC`,
		prID,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions of PR %d: %w", prID, err)
	}
	defer rows.Close()

	var versions []PRVersion
	for rows.Next() {
		var v PRVersion
		if err := rows.Scan(
			&v.ID, &v.PRID, &v.Version, &v.ChangeType, &v.ChangeSummary,
			&v.ItemsAffected, &v.TotalItems, &v.CreatedBy, &v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan PR version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *purchaseRequestService) ItemsAtVersion(ctx context.Context, prID, version int) ([]PurchaseRequestItem, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := currentPRVersion(ctx, tx, prID)
	if err != nil {
		return nil, err
	}
	if version == current {
		return s.liveItems(ctx, prID)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, stable_item_id, purchase_request_id, version, item_name, category, room_name,
		       quantity, unit, unit_price, subtotal, tax_percentage, tax_amount, item_total,
		       lifecycle_status, is_direct_purchase, created_at
		FROM purchase_request_items_history
		WHERE purchase_request_id = $1 AND version = $2
		ORDER BY id`,
		prID, version,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch history of PR %d version %d: %w", prID, version, err)
	}
	defer rows.Close()

	var items []PurchaseRequestItem
	for rows.Next() {
		var it PurchaseRequestItem
		if err := rows.Scan(
			&it.ID, &it.StableItemID, &it.PRID, &it.Version, &it.ItemName, &it.Category, &it.RoomName,
			&it.Quantity, &it.Unit, &it.UnitPrice, &it.Subtotal, &it.TaxPercentage,
			&it.TaxAmount, &it.ItemTotal, &it.LifecycleStatus, &it.IsDirectPurchase, &it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan historical PR item: %w", err)
		}
		items = append(items, it)
	}
	if len(items) == 0 {
		return nil, notFoundf("version %d of purchase request %d not found", version, prID)
	}
	return items, rows.Err()
}
