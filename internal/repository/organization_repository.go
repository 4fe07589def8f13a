package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/impactdash/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// organizationRepository implements OrganizationRepository interface
type organizationRepository struct {
	pool *pgxpool.Pool
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(pool *pgxpool.Pool) OrganizationRepository {
	return &organizationRepository{
		pool: pool,
	}
}

// Create creates a new organization
func (r *organizationRepository) Create(ctx context.Context, org domain.Organization) (domain.Organization, error) {
	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO organizations (id, name, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, name, description, created_at, updated_at`,
		org.ID,
		org.Name,
		pgtype.Text{String: org.Description, Valid: true},
		org.CreatedAt,
		org.UpdatedAt,
	)

	created, err := scanOrganization(row)
	if err != nil {
		return domain.Organization{}, fmt.Errorf("failed to create organization: %w", err)
	}
	return created, nil
}

// GetByID retrieves an organization by ID
func (r *organizationRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Organization, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, name, description, created_at, updated_at FROM organizations WHERE id = $1`,
		id,
	)

	org, err := scanOrganization(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Organization{}, ErrNotFound
		}
		return domain.Organization{}, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// List retrieves all organizations
func (r *organizationRepository) List(ctx context.Context) ([]domain.Organization, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM organizations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	organizations := []domain.Organization{}
	for rows.Next() {
		org, scanErr := scanOrganization(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", scanErr)
		}
		organizations = append(organizations, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate organizations: %w", err)
	}

	return organizations, nil
}

func scanOrganization(row pgx.Row) (domain.Organization, error) {
	var (
		org         domain.Organization
		description pgtype.Text
	)
	if err := row.Scan(&org.ID, &org.Name, &description, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return domain.Organization{}, err
	}
	org.Description = description.String
	return org, nil
}
