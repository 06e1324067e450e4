package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type ProjectService interface {
	Create(ctx context.Context, name string, customerID *int, actor *User) (*Project, error)
	Get(ctx context.Context, projectID int) (*Project, error)
	List(ctx context.Context) ([]Project, error)
	CreateCustomer(ctx context.Context, name string, email, phone *string) (*Customer, error)
	GetCustomer(ctx context.Context, customerID int) (*Customer, error)
}

type projectService struct {
	pool *pgxpool.Pool
}

// NewProjectService constructs a ProjectService backed by PostgreSQL.
func NewProjectService(pool *pgxpool.Pool) ProjectService {
	return &projectService{pool: pool}
}

func (s *projectService) Create(ctx context.Context, name string, customerID *int, actor *User) (*Project, error) {
	if actor == nil {
		return nil, permissionf("authentication required")
	}
	if name == "" {
		return nil, validationf("project name is required")
	}
	if customerID != nil {
		if _, err := s.GetCustomer(ctx, *customerID); err != nil {
			return nil, err
		}
	}

	var id int
	if err := s.pool.QueryRow(ctx, `
		INSERT INTO projects (name, customer_id, created_by)
		VALUES ($1, $2, $3)
		RETURNING id`,
		name, customerID, actor.ID,
	).Scan(&id); err != nil {
		return nil, fmt.Errorf("create project %q: %w", name, err)
	}
	return s.Get(ctx, id)
}

const projectColumns = `
	id, name, customer_id, base_rate_id, invoiced_amount, has_over_invoice,
	over_invoice_amount, created_by, created_at`

func (s *projectService) Get(ctx context.Context, projectID int) (*Project, error) {
	p := &Project{}
	var invoiced, overInvoice decimal.Decimal
	err := s.pool.QueryRow(ctx,
		"SELECT"+projectColumns+" FROM projects WHERE id = $1",
		projectID,
	).Scan(
		&p.ID, &p.Name, &p.CustomerID, &p.BaseRateID, &invoiced,
		&p.HasOverInvoice, &overInvoice, &p.CreatedBy, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("project %d not found", projectID)
		}
		return nil, fmt.Errorf("get project %d: %w", projectID, err)
	}
	p.InvoicedAmount = invoiced.StringFixed(2)
	p.OverInvoiceAmount = overInvoice.StringFixed(2)
	return p, nil
}

func (s *projectService) List(ctx context.Context) ([]Project, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT"+projectColumns+" FROM projects ORDER BY created_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		var invoiced, overInvoice decimal.Decimal
		if err := rows.Scan(
			&p.ID, &p.Name, &p.CustomerID, &p.BaseRateID, &invoiced,
			&p.HasOverInvoice, &overInvoice, &p.CreatedBy, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.InvoicedAmount = invoiced.StringFixed(2)
		p.OverInvoiceAmount = overInvoice.StringFixed(2)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *projectService) CreateCustomer(ctx context.Context, name string, email, phone *string) (*Customer, error) {
	if name == "" {
		return nil, validationf("customer name is required")
	}
	c := &Customer{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO customers (name, email, phone)
		VALUES ($1, $2, $3)
		RETURNING id, name, email, phone, created_at`,
		name, email, phone,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create customer %q: %w", name, err)
	}
	return c, nil
}

func (s *projectService) GetCustomer(ctx context.Context, customerID int) (*Customer, error) {
	c := &Customer{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at
		FROM customers
		WHERE id = $1`,
		customerID,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("customer %d not found", customerID)
		}
		return nil, fmt.Errorf("get customer %d: %w", customerID, err)
	}
	return c, nil
}
