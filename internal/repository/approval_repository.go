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

const approvalColumns = `id, entity_type, entity_id, level, approver_id, decider_id, status, comment, created_at, decided_at`

// ApprovalRepository provides database access for the approval workflow.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository creates a new instance of ApprovalRepository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Create inserts a pending approval row.
func (r *ApprovalRepository) Create(ctx context.Context, approval *models.Approval) error {
	if approval.ID == "" {
		approval.ID = uuid.NewString()
	}
	if approval.CreatedAt.IsZero() {
		approval.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO approvals (id, entity_type, entity_id, level, approver_id, decider_id, status, comment, created_at, decided_at) VALUES (:id, :entity_type, :entity_id, :level, :approver_id, :decider_id, :status, :comment, :created_at, :decided_at)`
	if _, err := r.db.NamedExecContext(ctx, query, approval); err != nil {
		return fmt.Errorf("create approval: %w", err)
	}
	return nil
}

// GetByID returns an approval by identifier.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1 LIMIT 1`
	var approval models.Approval
	if err := r.db.GetContext(ctx, &approval, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find approval by id: %w", err)
	}
	return &approval, nil
}

// FindPendingByEntity returns the open approval row for an entity, if any.
func (r *ApprovalRepository) FindPendingByEntity(ctx context.Context, ref models.EntityRef) (*models.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE entity_type = $1 AND entity_id = $2 AND status = $3 LIMIT 1`
	var approval models.Approval
	if err := r.db.GetContext(ctx, &approval, query, ref.Type, ref.ID, models.ApprovalPending); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find pending approval: %w", err)
	}
	return &approval, nil
}

// ListByEntity returns the full approval history for an entity.
func (r *ApprovalRepository) ListByEntity(ctx context.Context, ref models.EntityRef) ([]models.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE entity_type = $1 AND entity_id = $2 ORDER BY level ASC, created_at ASC`
	var approvals []models.Approval
	if err := r.db.SelectContext(ctx, &approvals, query, ref.Type, ref.ID); err != nil {
		return nil, fmt.Errorf("list entity approvals: %w", err)
	}
	return approvals, nil
}

// List returns approvals matching the filter: pending rows first, overdue
// pending rows above the rest, newest first within each band.
func (r *ApprovalRepository) List(ctx context.Context, filter models.ApprovalFilter) ([]models.Approval, int, error) {
	baseQuery := `FROM approvals WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.ApproverID != "" {
		conditions = append(conditions, fmt.Sprintf("approver_id = $%d", len(args)+1))
		args = append(args, filter.ApproverID)
	}
	if filter.OwnerID != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("((entity_type = 'KPI' AND entity_id IN (SELECT id FROM kpi_definitions WHERE owner_id = $%d)) OR (entity_type = 'ACTUAL' AND entity_id IN (SELECT id FROM kpi_actuals WHERE owner_id = $%d)))", n, n))
		args = append(args, filter.OwnerID)
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, s)
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.EntityType != "" {
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", len(args)+1))
		args = append(args, filter.EntityType)
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

	listArgs := append(append([]interface{}{}, args...), filter.SLACutoff)
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY CASE status WHEN 'PENDING' THEN 0 ELSE 1 END, CASE WHEN status = 'PENDING' AND created_at < $%d THEN 0 ELSE 1 END, created_at DESC LIMIT %d OFFSET %d", approvalColumns, baseQuery, len(args)+1, pageSize, offset)

	var approvals []models.Approval
	if err := r.db.SelectContext(ctx, &approvals, listQuery, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list approvals: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count approvals: %w", err)
	}

	return approvals, total, nil
}

// CountPending returns pending and overdue counts for an approver.
func (r *ApprovalRepository) CountPending(ctx context.Context, approverID string, slaCutoff time.Time) (pending int, overdue int, err error) {
	const query = `SELECT COUNT(*) AS pending, COUNT(*) FILTER (WHERE created_at < $2) AS overdue FROM approvals WHERE approver_id = $1 AND status = 'PENDING'`
	row := struct {
		Pending int `db:"pending"`
		Overdue int `db:"overdue"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, approverID, slaCutoff); err != nil {
		return 0, 0, fmt.Errorf("count pending approvals: %w", err)
	}
	return row.Pending, row.Overdue, nil
}

// DecideParams carries everything a single approval decision changes.
// NextApproval, when set, is the follow-up level to raise in the same
// transaction. EntityStatus is the workflow status the addressed entity
// moves to.
type DecideParams struct {
	ApprovalID      string
	Decision        models.ApprovalStatus
	DeciderID       string
	Comment         *string
	DecidedAt       time.Time
	NextApproval    *models.Approval
	Entity          models.EntityRef
	EntityStatus    models.WorkflowStatus
	RejectionReason *string
}

// Decide applies an approval decision atomically: the pending row is
// closed, the next level is raised if routing requires one, and the
// addressed entity moves to its new workflow status. The WHERE guard on
// status makes a second decision on the same row report sql.ErrNoRows.
func (r *ApprovalRepository) Decide(ctx context.Context, p DecideParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin decide tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE approvals SET status = $2, decider_id = $3, comment = $4, decided_at = $5 WHERE id = $1 AND status = $6`,
		p.ApprovalID, p.Decision, p.DeciderID, p.Comment, p.DecidedAt, models.ApprovalPending)
	if err != nil {
		return fmt.Errorf("close approval: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close approval: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if p.NextApproval != nil {
		next := p.NextApproval
		if next.ID == "" {
			next.ID = uuid.NewString()
		}
		if next.CreatedAt.IsZero() {
			next.CreatedAt = p.DecidedAt
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO approvals (id, entity_type, entity_id, level, approver_id, status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			next.ID, next.EntityType, next.EntityID, next.Level, next.ApproverID, next.Status, next.CreatedAt); err != nil {
			return fmt.Errorf("raise next approval: %w", err)
		}
	}

	table := "kpi_definitions"
	if p.Entity.Type == models.EntityActual {
		table = "kpi_actuals"
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET status = $2, rejection_reason = $3, updated_at = $4 WHERE id = $1`, table),
		p.Entity.ID, p.EntityStatus, p.RejectionReason, p.DecidedAt); err != nil {
		return fmt.Errorf("update entity status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit decide tx: %w", err)
	}
	return nil
}
