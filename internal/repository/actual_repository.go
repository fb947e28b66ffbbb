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

const actualColumns = `id, kpi_id, owner_id, actual_value, percentage, score, band, status, period, ai_verification, rejection_reason, created_at, updated_at`

// ActualRepository provides database access for reported KPI actuals.
type ActualRepository struct {
	db *sqlx.DB
}

// NewActualRepository creates a new instance of ActualRepository.
func NewActualRepository(db *sqlx.DB) *ActualRepository {
	return &ActualRepository{db: db}
}

// Create inserts a new actual record.
func (r *ActualRepository) Create(ctx context.Context, actual *models.KpiActual) error {
	if actual.ID == "" {
		actual.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if actual.CreatedAt.IsZero() {
		actual.CreatedAt = now
	}
	actual.UpdatedAt = now

	const query = `INSERT INTO kpi_actuals (id, kpi_id, owner_id, actual_value, percentage, score, band, status, period, ai_verification, rejection_reason, created_at, updated_at) VALUES (:id, :kpi_id, :owner_id, :actual_value, :percentage, :score, :band, :status, :period, :ai_verification, :rejection_reason, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, actual); err != nil {
		return fmt.Errorf("create actual: %w", err)
	}
	return nil
}

// GetByID returns an actual by identifier.
func (r *ActualRepository) GetByID(ctx context.Context, id string) (*models.KpiActual, error) {
	query := `SELECT ` + actualColumns + ` FROM kpi_actuals WHERE id = $1 LIMIT 1`
	var actual models.KpiActual
	if err := r.db.GetContext(ctx, &actual, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find actual by id: %w", err)
	}
	return &actual, nil
}

// Update rewrites the mutable fields of an actual.
func (r *ActualRepository) Update(ctx context.Context, actual *models.KpiActual) error {
	actual.UpdatedAt = time.Now().UTC()
	const query = `UPDATE kpi_actuals SET actual_value = :actual_value, percentage = :percentage, score = :score, band = :band, status = :status, ai_verification = :ai_verification, rejection_reason = :rejection_reason, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, actual); err != nil {
		return fmt.Errorf("update actual: %w", err)
	}
	return nil
}

// UpdateStatus transitions the workflow status of an actual.
func (r *ActualRepository) UpdateStatus(ctx context.Context, id string, status models.WorkflowStatus, rejectionReason *string) error {
	const query = `UPDATE kpi_actuals SET status = $2, rejection_reason = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, rejectionReason, time.Now().UTC()); err != nil {
		return fmt.Errorf("update actual status: %w", err)
	}
	return nil
}

// ExistsNonDraft reports whether a submitted actual already exists for the
// KPI and period. Drafts and rejected actuals do not block resubmission.
func (r *ActualRepository) ExistsNonDraft(ctx context.Context, kpiID, period string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM kpi_actuals WHERE kpi_id = $1 AND period = $2 AND status NOT IN ($3, $4, $5))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, kpiID, period, models.StatusDraft, models.StatusRejected, models.StatusChangeRequested); err != nil {
		return false, fmt.Errorf("check duplicate actual: %w", err)
	}
	return exists, nil
}

// List returns actuals matching the filter.
func (r *ActualRepository) List(ctx context.Context, filter models.ActualFilter) ([]models.KpiActual, int, error) {
	baseQuery := `FROM kpi_actuals WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.KpiID != "" {
		conditions = append(conditions, fmt.Sprintf("kpi_id = $%d", len(args)+1))
		args = append(args, filter.KpiID)
	}
	if filter.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)+1))
		args = append(args, filter.OwnerID)
	}
	if len(filter.OwnerIDs) > 0 {
		placeholders := make([]string, len(filter.OwnerIDs))
		for i, id := range filter.OwnerIDs {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, id)
		}
		conditions = append(conditions, fmt.Sprintf("owner_id IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.Period != "" {
		conditions = append(conditions, fmt.Sprintf("period = $%d", len(args)+1))
		args = append(args, filter.Period)
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, s)
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY period DESC, created_at DESC LIMIT %d OFFSET %d", actualColumns, baseQuery, pageSize, offset)

	var actuals []models.KpiActual
	if err := r.db.SelectContext(ctx, &actuals, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list actuals: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count actuals: %w", err)
	}

	return actuals, total, nil
}

// ListApprovedByOwners returns approved actuals for scorecard reporting.
func (r *ActualRepository) ListApprovedByOwners(ctx context.Context, ownerIDs []string, cycleID string) ([]models.KpiActual, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ownerIDs))
	args := make([]interface{}, 0, len(ownerIDs)+1)
	for i, id := range ownerIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	query := fmt.Sprintf(`SELECT a.id, a.kpi_id, a.owner_id, a.actual_value, a.percentage, a.score, a.band, a.status, a.period, a.ai_verification, a.rejection_reason, a.created_at, a.updated_at FROM kpi_actuals a JOIN kpi_definitions k ON k.id = a.kpi_id WHERE a.status = 'APPROVED' AND a.owner_id IN (%s)`, strings.Join(placeholders, ", "))
	if cycleID != "" {
		query += fmt.Sprintf(" AND k.cycle_id = $%d", len(args)+1)
		args = append(args, cycleID)
	}
	query += " ORDER BY a.owner_id, a.period"

	var actuals []models.KpiActual
	if err := r.db.SelectContext(ctx, &actuals, query, args...); err != nil {
		return nil, fmt.Errorf("list approved actuals: %w", err)
	}
	return actuals, nil
}

// CountByStatus groups actuals by workflow status.
func (r *ActualRepository) CountByStatus(ctx context.Context, ownerIDs []string) (map[string]int, error) {
	counts := make(map[string]int)
	if len(ownerIDs) == 0 {
		return counts, nil
	}
	placeholders := make([]string, len(ownerIDs))
	args := make([]interface{}, 0, len(ownerIDs))
	for i, id := range ownerIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	query := fmt.Sprintf(`SELECT status, COUNT(*) AS count FROM kpi_actuals WHERE owner_id IN (%s) GROUP BY status`, strings.Join(placeholders, ", "))

	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count actuals by status: %w", err)
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
