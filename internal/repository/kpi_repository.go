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

const kpiColumns = `id, owner_id, cycle_id, title, type, unit, target, weight, data_source, scale, status, rejection_reason, created_at, updated_at`

// KpiRepository provides database access for KPI definitions.
type KpiRepository struct {
	db *sqlx.DB
}

// NewKpiRepository creates a new instance of KpiRepository.
func NewKpiRepository(db *sqlx.DB) *KpiRepository {
	return &KpiRepository{db: db}
}

// Create inserts a new KPI definition.
func (r *KpiRepository) Create(ctx context.Context, kpi *models.KpiDefinition) error {
	if kpi.ID == "" {
		kpi.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if kpi.CreatedAt.IsZero() {
		kpi.CreatedAt = now
	}
	kpi.UpdatedAt = now

	const query = `INSERT INTO kpi_definitions (id, owner_id, cycle_id, title, type, unit, target, weight, data_source, scale, status, rejection_reason, created_at, updated_at) VALUES (:id, :owner_id, :cycle_id, :title, :type, :unit, :target, :weight, :data_source, :scale, :status, :rejection_reason, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, kpi); err != nil {
		return fmt.Errorf("create kpi: %w", err)
	}
	return nil
}

// GetByID returns a KPI definition by identifier.
func (r *KpiRepository) GetByID(ctx context.Context, id string) (*models.KpiDefinition, error) {
	query := `SELECT ` + kpiColumns + ` FROM kpi_definitions WHERE id = $1 LIMIT 1`
	var kpi models.KpiDefinition
	if err := r.db.GetContext(ctx, &kpi, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find kpi by id: %w", err)
	}
	return &kpi, nil
}

// Update rewrites the mutable goal fields of a KPI definition.
func (r *KpiRepository) Update(ctx context.Context, kpi *models.KpiDefinition) error {
	kpi.UpdatedAt = time.Now().UTC()
	const query = `UPDATE kpi_definitions SET title = :title, type = :type, unit = :unit, target = :target, weight = :weight, data_source = :data_source, scale = :scale, status = :status, rejection_reason = :rejection_reason, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, kpi); err != nil {
		return fmt.Errorf("update kpi: %w", err)
	}
	return nil
}

// UpdateStatus transitions the workflow status of a KPI definition.
func (r *KpiRepository) UpdateStatus(ctx context.Context, id string, status models.WorkflowStatus, rejectionReason *string) error {
	const query = `UPDATE kpi_definitions SET status = $2, rejection_reason = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, rejectionReason, time.Now().UTC()); err != nil {
		return fmt.Errorf("update kpi status: %w", err)
	}
	return nil
}

// ListByOwnerAndCycle returns all KPI definitions a user holds for a cycle.
func (r *KpiRepository) ListByOwnerAndCycle(ctx context.Context, ownerID, cycleID string) ([]models.KpiDefinition, error) {
	query := `SELECT ` + kpiColumns + ` FROM kpi_definitions WHERE owner_id = $1 AND cycle_id = $2 ORDER BY created_at ASC`
	var kpis []models.KpiDefinition
	if err := r.db.SelectContext(ctx, &kpis, query, ownerID, cycleID); err != nil {
		return nil, fmt.Errorf("list kpis for owner and cycle: %w", err)
	}
	return kpis, nil
}

// List returns KPI definitions matching the filter.
func (r *KpiRepository) List(ctx context.Context, filter models.KpiFilter) ([]models.KpiDefinition, int, error) {
	baseQuery := `FROM kpi_definitions WHERE 1=1`
	var conditions []string
	var args []interface{}

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
	if filter.CycleID != "" {
		conditions = append(conditions, fmt.Sprintf("cycle_id = $%d", len(args)+1))
		args = append(args, filter.CycleID)
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", kpiColumns, baseQuery, pageSize, offset)

	var kpis []models.KpiDefinition
	if err := r.db.SelectContext(ctx, &kpis, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list kpis: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count kpis: %w", err)
	}

	return kpis, total, nil
}

// LockApprovedByCycle freezes approved goals when a cycle closes.
func (r *KpiRepository) LockApprovedByCycle(ctx context.Context, cycleID string) (int64, error) {
	const query = `UPDATE kpi_definitions SET status = $2, updated_at = $3 WHERE cycle_id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, cycleID, models.StatusLockedGoals, time.Now().UTC(), models.StatusApproved)
	if err != nil {
		return 0, fmt.Errorf("lock cycle goals: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("lock cycle goals: %w", err)
	}
	return affected, nil
}

// ScoreSummary aggregates approved actual scores for dashboard display.
func (r *KpiRepository) ScoreSummary(ctx context.Context, ownerIDs []string, cycleID string) (float64, error) {
	if len(ownerIDs) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(ownerIDs))
	args := make([]interface{}, 0, len(ownerIDs)+1)
	for i, id := range ownerIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	query := fmt.Sprintf(`SELECT COALESCE(AVG(a.score), 0) FROM kpi_actuals a JOIN kpi_definitions k ON k.id = a.kpi_id WHERE a.status = 'APPROVED' AND a.owner_id IN (%s)`, strings.Join(placeholders, ", "))
	if cycleID != "" {
		query += fmt.Sprintf(" AND k.cycle_id = $%d", len(args)+1)
		args = append(args, cycleID)
	}
	var avg float64
	if err := r.db.GetContext(ctx, &avg, query, args...); err != nil {
		return 0, fmt.Errorf("score summary: %w", err)
	}
	return avg, nil
}

// CountByStatus groups KPI definitions by workflow status.
func (r *KpiRepository) CountByStatus(ctx context.Context, ownerIDs []string, cycleID string) (map[string]int, error) {
	counts := make(map[string]int)
	if len(ownerIDs) == 0 {
		return counts, nil
	}
	placeholders := make([]string, len(ownerIDs))
	args := make([]interface{}, 0, len(ownerIDs)+1)
	for i, id := range ownerIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	query := fmt.Sprintf(`SELECT status, COUNT(*) AS count FROM kpi_definitions WHERE owner_id IN (%s)`, strings.Join(placeholders, ", "))
	if cycleID != "" {
		query += fmt.Sprintf(" AND cycle_id = $%d", len(args)+1)
		args = append(args, cycleID)
	}
	query += " GROUP BY status"

	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count kpis by status: %w", err)
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
