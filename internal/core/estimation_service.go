package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"backoffice/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type EstimationService interface {
	// Replace prices the raw items against the project's active base rate and
	// installs them as the new current estimation in a single transaction.
	// The superseded version is retained untouched.
	Replace(ctx context.Context, projectID int, items []RawItem, createdBy int, artifactPath *string) (*Estimation, error)
	Current(ctx context.Context, projectID int) (*Estimation, error)
	Get(ctx context.Context, estimationID int) (*Estimation, error)
	Versions(ctx context.Context, projectID int) ([]Estimation, error)
	Items(ctx context.Context, estimationID int) ([]EstimationItem, error)
	// Rollback re-activates a prior version without creating new rows.
	Rollback(ctx context.Context, projectID, version int, actor *User) (*Estimation, error)
	// RecomputeOverpayment re-runs the approved-payments-vs-final-value
	// comparison for the project's current estimation.
	RecomputeOverpayment(ctx context.Context, projectID int) (OverpaymentState, error)
}

type estimationService struct {
	pool      *pgxpool.Pool
	baseRates BaseRateService
}

func NewEstimationService(pool *pgxpool.Pool, baseRates BaseRateService) EstimationService {
	return &estimationService{pool: pool, baseRates: baseRates}
}

func (s *estimationService) Replace(ctx context.Context, projectID int, items []RawItem, createdBy int, artifactPath *string) (*Estimation, error) {
	active, err := s.baseRates.Active(ctx, projectID)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return nil, statef("project %d has no active base rate; request and approve one before uploading items", projectID)
		}
		return nil, err
	}
	if active.Status != BaseRateApproved {
		return nil, statef("base rate %d is not approved", active.ID)
	}

	priced, err := PriceItems(items, active.Config)
	if err != nil {
		return nil, err
	}
	totals, err := Aggregate(priced, active.Config.Categories)
	if err != nil {
		return nil, err
	}

	breakdownJSON, err := json.Marshal(totals.CategoryBreakdown)
	if err != nil {
		return nil, fmt.Errorf("encode category breakdown: %w", err)
	}

	var estimationID int
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		// Lock the current version so two concurrent uploads serialize and
		// version numbers stay dense.
		var prevVersion int
		err := tx.QueryRow(ctx, `
			SELECT version FROM project_estimations
			WHERE project_id = $1 AND is_current
			FOR UPDATE`,
			projectID,
		).Scan(&prevVersion)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("fetch current estimation: %w", err)
		}

		if _, err := tx.Exec(ctx,
			"UPDATE project_estimations SET is_current = false WHERE project_id = $1 AND is_current",
			projectID,
		); err != nil {
			return fmt.Errorf("supersede current estimation: %w", err)
		}

		if err := tx.QueryRow(ctx, `
			INSERT INTO project_estimations
			            (project_id, base_rate_id, version, is_current, source, artifact_path,
			             category_breakdown, items_value, items_discount, margin_charges,
			             margin_discount, tax_amount, final_value, created_by)
			VALUES ($1, $2, $3, true, 'csv_upload', $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id`,
			projectID, active.ID, prevVersion+1, artifactPath, breakdownJSON,
			totals.ItemsValue, totals.ItemsDiscount, totals.MarginCharges,
			totals.MarginDiscount, totals.TaxAmount, totals.FinalValue, createdBy,
		).Scan(&estimationID); err != nil {
			return fmt.Errorf("insert estimation version %d: %w", prevVersion+1, err)
		}

		for i, p := range priced {
			stableID := p.StableItemID
			if stableID == "" {
				stableID = uuid.NewString()
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO estimation_items
				            (estimation_id, stable_item_id, category, room_name, item_name,
				             quantity, unit, width, height, unit_price, subtotal,
				             item_discount_percentage, item_discount_amount,
				             margin_charges_percentage, margin_charges_amount,
				             margin_discount_percentage, margin_discount_amount,
				             tax_percentage, amount_before_tax, tax_amount, item_total, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
				        $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
				estimationID, stableID, p.Category, p.RoomName, p.ItemName,
				p.EffectiveQuantity(), p.Unit, nullDecimal(p.Width), nullDecimal(p.Height),
				p.UnitPrice, p.Subtotal,
				p.RawItem.ItemDiscountPercentage, p.ItemDiscountAmount,
				p.MarginChargesPercentage, p.MarginChargesGross,
				p.RawItem.MarginDiscountPercentage, p.MarginDiscountAmount,
				p.TaxPercentage, p.AmountBeforeTax, p.TaxAmount, p.ItemTotal,
				itemStatus(p.Status),
			); err != nil {
				return fmt.Errorf("insert estimation item %d (%s): %w", i+1, p.ItemName, err)
			}
		}

		// The comparison base just changed, so the overpayment verdict may too.
		if _, err := recomputeOverpaymentTx(ctx, tx, projectID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, estimationID)
}

func (s *estimationService) Current(ctx context.Context, projectID int) (*Estimation, error) {
	return s.getWhere(ctx, "project_id = $1 AND is_current", projectID)
}

func (s *estimationService) Get(ctx context.Context, estimationID int) (*Estimation, error) {
	return s.getWhere(ctx, "id = $1", estimationID)
}

const estimationColumns = `
	id, project_id, base_rate_id, version, is_current, source, artifact_path,
	category_breakdown, items_value, items_discount, margin_charges,
	margin_discount, tax_amount, final_value, has_overpayment,
	overpayment_amount, created_by, created_at`

func (s *estimationService) getWhere(ctx context.Context, where string, arg any) (*Estimation, error) {
	est, err := scanEstimation(s.pool.QueryRow(ctx,
		"SELECT"+estimationColumns+" FROM project_estimations WHERE "+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("estimation not found")
		}
		return nil, fmt.Errorf("get estimation: %w", err)
	}
	return est, nil
}

func scanEstimation(row pgx.Row) (*Estimation, error) {
	est := &Estimation{}
	var breakdownJSON []byte
	if err := row.Scan(
		&est.ID, &est.ProjectID, &est.BaseRateID, &est.Version, &est.IsCurrent,
		&est.Source, &est.ArtifactPath, &breakdownJSON,
		&est.ItemsValue, &est.ItemsDiscount, &est.MarginCharges,
		&est.MarginDiscount, &est.TaxAmount, &est.FinalValue,
		&est.HasOverpayment, &est.OverpaymentAmount, &est.CreatedBy, &est.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(breakdownJSON) > 0 {
		if err := json.Unmarshal(breakdownJSON, &est.CategoryBreakdown); err != nil {
			return nil, fmt.Errorf("decode category breakdown: %w", err)
		}
	}
	return est, nil
}

func (s *estimationService) Versions(ctx context.Context, projectID int) ([]Estimation, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT"+estimationColumns+" FROM project_estimations WHERE project_id = $1 ORDER BY version DESC",
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list estimation versions for project %d: %w", projectID, err)
	}
	defer rows.Close()

	var versions []Estimation
	for rows.Next() {
		est, err := scanEstimation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan estimation: %w", err)
		}
		versions = append(versions, *est)
	}
	return versions, rows.Err()
}

func (s *estimationService) Items(ctx context.Context, estimationID int) ([]EstimationItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, estimation_id, stable_item_id, category, room_name, item_name,
		       quantity, unit, width, height, unit_price, subtotal,
		       item_discount_percentage, item_discount_amount,
		       margin_charges_percentage, margin_charges_amount,
		       margin_discount_percentage, margin_discount_amount,
		       tax_percentage, amount_before_tax, tax_amount, item_total, status, created_at
		FROM estimation_items
		WHERE estimation_id = $1
		ORDER BY id`,
		estimationID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch items for estimation %d: %w", estimationID, err)
	}
	defer rows.Close()

	var items []EstimationItem
	for rows.Next() {
		var it EstimationItem
		var roomName, unit, status *string
		var width, height *decimal.Decimal
		if err := rows.Scan(
			&it.ID, &it.EstimationID, &it.StableItemID, &it.Category, &roomName, &it.ItemName,
			&it.Quantity, &unit, &width, &height, &it.UnitPrice, &it.Subtotal,
			&it.RawItem.ItemDiscountPercentage, &it.ItemDiscountAmount,
			&it.MarginChargesPercentage, &it.MarginChargesGross,
			&it.RawItem.MarginDiscountPercentage, &it.MarginDiscountAmount,
			&it.TaxPercentage, &it.AmountBeforeTax, &it.TaxAmount, &it.ItemTotal,
			&status, &it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan estimation item: %w", err)
		}
		if roomName != nil {
			it.RoomName = *roomName
		}
		if unit != nil {
			it.Unit = *unit
		}
		if status != nil {
			it.Status = *status
		}
		if width != nil {
			it.Width = *width
		}
		if height != nil {
			it.Height = *height
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *estimationService) Rollback(ctx context.Context, projectID, version int, actor *User) (*Estimation, error) {
	if actor == nil || (actor.Role != RoleAdmin && actor.Role != RoleEstimator) {
		return nil, permissionf("only an admin or estimator may roll back an estimation")
	}

	var estimationID int
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			"SELECT id FROM project_estimations WHERE project_id = $1 AND version = $2 FOR UPDATE",
			projectID, version,
		).Scan(&estimationID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFoundf("estimation version %d not found for project %d", version, projectID)
			}
			return fmt.Errorf("fetch estimation version %d: %w", version, err)
		}

		if _, err := tx.Exec(ctx,
			"UPDATE project_estimations SET is_current = false WHERE project_id = $1 AND is_current",
			projectID,
		); err != nil {
			return fmt.Errorf("supersede current estimation: %w", err)
		}
		if _, err := tx.Exec(ctx,
			"UPDATE project_estimations SET is_current = true WHERE id = $1",
			estimationID,
		); err != nil {
			return fmt.Errorf("activate estimation version %d: %w", version, err)
		}

		if err := logActivityTx(ctx, tx, projectID, "estimation", estimationID, actor.ID, "rolled_back", nil); err != nil {
			return err
		}

		if _, err := recomputeOverpaymentTx(ctx, tx, projectID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, estimationID)
}

func (s *estimationService) RecomputeOverpayment(ctx context.Context, projectID int) (OverpaymentState, error) {
	var state OverpaymentState
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		state, err = recomputeOverpaymentTx(ctx, tx, projectID)
		return err
	})
	return state, err
}

// recomputeOverpaymentTx compares cumulative approved customer payments
// against the current estimation's final value and persists the verdict.
// Reversal payments carry negative amounts, so the plain SUM nets them out.
// A project with no current estimation is left alone.
func recomputeOverpaymentTx(ctx context.Context, tx pgx.Tx, projectID int) (OverpaymentState, error) {
	var estimationID int
	var finalValue decimal.Decimal
	err := tx.QueryRow(ctx, `
		SELECT id, final_value FROM project_estimations
		WHERE project_id = $1 AND is_current
		FOR UPDATE`,
		projectID,
	).Scan(&estimationID, &finalValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OverpaymentState{}, nil
		}
		return OverpaymentState{}, fmt.Errorf("fetch current estimation for project %d: %w", projectID, err)
	}

	var approvedTotal decimal.Decimal
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM customer_payments
		WHERE project_id = $1 AND status = 'approved'`,
		projectID,
	).Scan(&approvedTotal); err != nil {
		return OverpaymentState{}, fmt.Errorf("sum approved payments for project %d: %w", projectID, err)
	}

	state := OverpaymentState{OverpaymentAmount: decimal.Zero}
	if approvedTotal.GreaterThan(finalValue) {
		state.HasOverpayment = true
		state.OverpaymentAmount = approvedTotal.Sub(finalValue)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE project_estimations SET has_overpayment = $1, overpayment_amount = $2 WHERE id = $3",
		state.HasOverpayment, state.OverpaymentAmount, estimationID,
	); err != nil {
		return OverpaymentState{}, fmt.Errorf("persist overpayment state: %w", err)
	}
	return state, nil
}

func nullDecimal(d decimal.Decimal) *decimal.Decimal {
	if d.IsZero() {
		return nil
	}
	return &d
}

func itemStatus(status string) string {
	if status == "" {
		return "queued"
	}
	return status
}
