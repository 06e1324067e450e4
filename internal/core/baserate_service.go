package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// BaseRate is one per-project rate configuration record. Approved records are
// immutable; a change request inserts a new row and approval swaps the active
// flag.
type BaseRate struct {
	ID          int        `json:"id"`
	ProjectID   int        `json:"project_id"`
	Config      RateConfig `json:"config"`
	Status      string     `json:"status"`
	Active      bool       `json:"active"`
	RequestedBy *int       `json:"requested_by,omitempty"`
	ApprovedBy  *int       `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

const (
	BaseRateRequested = "requested"
	BaseRateApproved  = "approved"
	BaseRateRejected  = "rejected"
)

type BaseRateService interface {
	Request(ctx context.Context, projectID int, cfg RateConfig, requestedBy int) (*BaseRate, error)
	// Approve activates the requested base rate after verifying the submitted
	// configuration still matches the stored one field by field.
	Approve(ctx context.Context, baseRateID int, submitted RateConfig, approver *User) (*BaseRate, error)
	Reject(ctx context.Context, baseRateID int, approver *User) error
	Active(ctx context.Context, projectID int) (*BaseRate, error)
	Get(ctx context.Context, baseRateID int) (*BaseRate, error)
	ListForProject(ctx context.Context, projectID int) ([]BaseRate, error)
}

type baseRateService struct {
	pool *pgxpool.Pool
}

func NewBaseRateService(pool *pgxpool.Pool) BaseRateService {
	return &baseRateService{pool: pool}
}

func (s *baseRateService) Request(ctx context.Context, projectID int, cfg RateConfig, requestedBy int) (*BaseRate, error) {
	if err := validateRateConfig(cfg); err != nil {
		return nil, err
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

	ratesJSON, err := json.Marshal(cfg.Categories)
	if err != nil {
		return nil, fmt.Errorf("encode category rates: %w", err)
	}

	var id int
	if err := s.pool.QueryRow(ctx, `
		INSERT INTO project_base_rates (project_id, category_rates, tax_percentage, status, requested_by)
		VALUES ($1, $2, $3, 'requested', $4)
		RETURNING id`,
		projectID, ratesJSON, cfg.TaxPercentage, requestedBy,
	).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert base rate request: %w", err)
	}

	return s.Get(ctx, id)
}

func (s *baseRateService) Approve(ctx context.Context, baseRateID int, submitted RateConfig, approver *User) (*BaseRate, error) {
	if approver == nil || approver.Role != RoleAdmin {
		return nil, permissionf("only an admin may approve a base rate")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var projectID int
	var status string
	var ratesJSON []byte
	var taxPct decimal.Decimal
	if err := tx.QueryRow(ctx, `
		SELECT project_id, status, category_rates, tax_percentage
		FROM project_base_rates
		WHERE id = $1
		FOR UPDATE`,
		baseRateID,
	).Scan(&projectID, &status, &ratesJSON, &taxPct); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("base rate %d not found", baseRateID)
		}
		return nil, fmt.Errorf("fetch base rate %d: %w", baseRateID, err)
	}

	if status != BaseRateRequested {
		return nil, statef("base rate %d cannot be approved: status is %s (must be requested)", baseRateID, status)
	}

	var stored RateConfig
	stored.TaxPercentage = taxPct
	if err := json.Unmarshal(ratesJSON, &stored.Categories); err != nil {
		return nil, fmt.Errorf("decode category rates for base rate %d: %w", baseRateID, err)
	}

	// Optimistic-concurrency guard: the approver re-submits the values they
	// reviewed. A divergence means the request changed under them; they must
	// refetch, not have the newer values silently approved.
	if details := compareRateConfigs(stored, submitted); len(details) > 0 {
		return nil, &ConflictError{
			Msg:     fmt.Sprintf("base rate %d has changed since it was read", baseRateID),
			Details: details,
		}
	}

	if _, err := tx.Exec(ctx,
		"UPDATE project_base_rates SET active = false WHERE project_id = $1 AND active",
		projectID,
	); err != nil {
		return nil, fmt.Errorf("deactivate prior base rates: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE project_base_rates
		SET status = 'approved', active = true, approved_by = $1, approved_at = NOW()
		WHERE id = $2`,
		approver.ID, baseRateID,
	); err != nil {
		return nil, fmt.Errorf("approve base rate %d: %w", baseRateID, err)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE projects SET base_rate_id = $1 WHERE id = $2",
		baseRateID, projectID,
	); err != nil {
		return nil, fmt.Errorf("set project %d active base rate: %w", projectID, err)
	}

	if err := logActivityTx(ctx, tx, projectID, "base_rate", baseRateID, approver.ID, "approved", nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit base rate approval: %w", err)
	}

	return s.Get(ctx, baseRateID)
}

func (s *baseRateService) Reject(ctx context.Context, baseRateID int, approver *User) error {
	if approver == nil || approver.Role != RoleAdmin {
		return permissionf("only an admin may reject a base rate")
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE project_base_rates
		SET status = 'rejected', approved_by = $1, approved_at = NOW()
		WHERE id = $2 AND status = 'requested'`,
		approver.ID, baseRateID,
	)
	if err != nil {
		return fmt.Errorf("reject base rate %d: %w", baseRateID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM project_base_rates WHERE id = $1)", baseRateID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check base rate %d: %w", baseRateID, err)
		}
		if !exists {
			return notFoundf("base rate %d not found", baseRateID)
		}
		return statef("base rate %d cannot be rejected: status is not requested", baseRateID)
	}
	return nil
}

func (s *baseRateService) Active(ctx context.Context, projectID int) (*BaseRate, error) {
	return s.getWhere(ctx, "project_id = $1 AND active", projectID)
}

func (s *baseRateService) Get(ctx context.Context, baseRateID int) (*BaseRate, error) {
	return s.getWhere(ctx, "id = $1", baseRateID)
}

func (s *baseRateService) getWhere(ctx context.Context, where string, arg any) (*BaseRate, error) {
	br := &BaseRate{}
	var ratesJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, project_id, category_rates, tax_percentage, status, active,
		       requested_by, approved_by, approved_at, created_at
		FROM project_base_rates
		WHERE `+where,
		arg,
	).Scan(
		&br.ID, &br.ProjectID, &ratesJSON, &br.Config.TaxPercentage, &br.Status, &br.Active,
		&br.RequestedBy, &br.ApprovedBy, &br.ApprovedAt, &br.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("base rate not found")
		}
		return nil, fmt.Errorf("get base rate: %w", err)
	}
	if err := json.Unmarshal(ratesJSON, &br.Config.Categories); err != nil {
		return nil, fmt.Errorf("decode category rates: %w", err)
	}
	return br, nil
}

func (s *baseRateService) ListForProject(ctx context.Context, projectID int) ([]BaseRate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, category_rates, tax_percentage, status, active,
		       requested_by, approved_by, approved_at, created_at
		FROM project_base_rates
		WHERE project_id = $1
		ORDER BY created_at DESC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list base rates for project %d: %w", projectID, err)
	}
	defer rows.Close()

	var rates []BaseRate
	for rows.Next() {
		var br BaseRate
		var ratesJSON []byte
		if err := rows.Scan(
			&br.ID, &br.ProjectID, &ratesJSON, &br.Config.TaxPercentage, &br.Status, &br.Active,
			&br.RequestedBy, &br.ApprovedBy, &br.ApprovedAt, &br.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan base rate: %w", err)
		}
		if err := json.Unmarshal(ratesJSON, &br.Config.Categories); err != nil {
			return nil, fmt.Errorf("decode category rates: %w", err)
		}
		rates = append(rates, br)
	}
	return rates, rows.Err()
}

func validateRateConfig(cfg RateConfig) error {
	if len(cfg.Categories) == 0 {
		return validationf("rate configuration has no categories")
	}
	if cfg.TaxPercentage.IsNegative() {
		return validationf("tax percentage must not be negative")
	}
	seen := make(map[string]bool, len(cfg.Categories))
	for _, cat := range cfg.Categories {
		if cat.ID == "" {
			return validationf("category %q has no id", cat.Name)
		}
		if seen[cat.ID] {
			return validationf("duplicate category id %q", cat.ID)
		}
		seen[cat.ID] = true
		if cat.MarginPercentage.IsNegative() ||
			cat.MaxItemDiscountPercentage.IsNegative() ||
			cat.MaxMarginDiscountPercentage.IsNegative() {
			return validationf("category %q has a negative percentage", cat.ID)
		}
	}
	return nil
}

// compareRateConfigs reports every field where the submitted configuration
// diverges from the stored one, naming both values.
func compareRateConfigs(stored, submitted RateConfig) []string {
	var details []string
	if !stored.TaxPercentage.Equal(submitted.TaxPercentage) {
		details = append(details, fmt.Sprintf(
			"tax_percentage: expected %s, received %s",
			stored.TaxPercentage.StringFixed(2), submitted.TaxPercentage.StringFixed(2)))
	}

	submittedByID := make(map[string]CategoryRate, len(submitted.Categories))
	for _, cat := range submitted.Categories {
		submittedByID[cat.ID] = cat
	}

	for _, sc := range stored.Categories {
		rc, ok := submittedByID[sc.ID]
		if !ok {
			details = append(details, fmt.Sprintf("category %q: expected present, received absent", sc.ID))
			continue
		}
		delete(submittedByID, sc.ID)

		if sc.Name != rc.Name {
			details = append(details, fmt.Sprintf(
				"category %q name: expected %q, received %q", sc.ID, sc.Name, rc.Name))
		}
		comparePct := func(field string, a, b decimal.Decimal) {
			if !a.Equal(b) {
				details = append(details, fmt.Sprintf(
					"category %q %s: expected %s, received %s",
					sc.ID, field, a.StringFixed(2), b.StringFixed(2)))
			}
		}
		comparePct("margin_percentage", sc.MarginPercentage, rc.MarginPercentage)
		comparePct("max_item_discount_percentage", sc.MaxItemDiscountPercentage, rc.MaxItemDiscountPercentage)
		comparePct("max_margin_discount_percentage", sc.MaxMarginDiscountPercentage, rc.MaxMarginDiscountPercentage)
		if sc.PassThrough != rc.PassThrough {
			details = append(details, fmt.Sprintf(
				"category %q pass_through: expected %t, received %t", sc.ID, sc.PassThrough, rc.PassThrough))
		}
	}

	for id := range submittedByID {
		details = append(details, fmt.Sprintf("category %q: expected absent, received present", id))
	}
	return details
}
