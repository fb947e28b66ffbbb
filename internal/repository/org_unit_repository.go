package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/kpi-hub-api/internal/models"
)

const orgUnitColumns = `id, name, kind, parent_id, manager_id, created_at, updated_at`

// OrgUnitRepository provides database access for the org hierarchy.
type OrgUnitRepository struct {
	db *sqlx.DB
}

// NewOrgUnitRepository creates a new instance of OrgUnitRepository.
func NewOrgUnitRepository(db *sqlx.DB) *OrgUnitRepository {
	return &OrgUnitRepository{db: db}
}

// Create inserts a new org unit.
func (r *OrgUnitRepository) Create(ctx context.Context, unit *models.OrgUnit) error {
	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if unit.CreatedAt.IsZero() {
		unit.CreatedAt = now
	}
	unit.UpdatedAt = now
	const query = `INSERT INTO org_units (id, name, kind, parent_id, manager_id, created_at, updated_at) VALUES (:id, :name, :kind, :parent_id, :manager_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, unit); err != nil {
		return fmt.Errorf("create org unit: %w", err)
	}
	return nil
}

// GetByID returns an org unit by identifier.
func (r *OrgUnitRepository) GetByID(ctx context.Context, id string) (*models.OrgUnit, error) {
	query := `SELECT ` + orgUnitColumns + ` FROM org_units WHERE id = $1 LIMIT 1`
	var unit models.OrgUnit
	if err := r.db.GetContext(ctx, &unit, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find org unit by id: %w", err)
	}
	return &unit, nil
}

// List returns org units matching the filter.
func (r *OrgUnitRepository) List(ctx context.Context, filter models.OrgUnitFilter) ([]models.OrgUnit, error) {
	baseQuery := `SELECT ` + orgUnitColumns + ` FROM org_units WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)+1))
		args = append(args, *filter.Kind)
	}
	if filter.ParentID != "" {
		conditions = append(conditions, fmt.Sprintf("parent_id = $%d", len(args)+1))
		args = append(args, filter.ParentID)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}
	baseQuery += " ORDER BY kind, name"

	var units []models.OrgUnit
	if err := r.db.SelectContext(ctx, &units, baseQuery, args...); err != nil {
		return nil, fmt.Errorf("list org units: %w", err)
	}
	return units, nil
}

// Update rewrites the mutable fields of an org unit.
func (r *OrgUnitRepository) Update(ctx context.Context, unit *models.OrgUnit) error {
	unit.UpdatedAt = time.Now().UTC()
	const query = `UPDATE org_units SET name = :name, parent_id = :parent_id, manager_id = :manager_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, unit); err != nil {
		return fmt.Errorf("update org unit: %w", err)
	}
	return nil
}

// HasChildren reports whether any unit points at this one as a parent.
func (r *OrgUnitRepository) HasChildren(ctx context.Context, id string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM org_units WHERE parent_id = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		return false, fmt.Errorf("check org unit children: %w", err)
	}
	return exists, nil
}

// Delete removes an org unit.
func (r *OrgUnitRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM org_units WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete org unit: %w", err)
	}
	return nil
}
