package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/kpi-hub-api/internal/models"
)

const cycleColumns = `id, name, start_date, end_date, status, goals_locked, created_at, updated_at`

// CycleRepository provides database access for performance cycles.
type CycleRepository struct {
	db *sqlx.DB
}

// NewCycleRepository creates a new instance of CycleRepository.
func NewCycleRepository(db *sqlx.DB) *CycleRepository {
	return &CycleRepository{db: db}
}

// Create inserts a new cycle.
func (r *CycleRepository) Create(ctx context.Context, cycle *models.Cycle) error {
	if cycle.ID == "" {
		cycle.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cycle.CreatedAt.IsZero() {
		cycle.CreatedAt = now
	}
	cycle.UpdatedAt = now
	const query = `INSERT INTO cycles (id, name, start_date, end_date, status, goals_locked, created_at, updated_at) VALUES (:id, :name, :start_date, :end_date, :status, :goals_locked, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cycle); err != nil {
		return fmt.Errorf("create cycle: %w", err)
	}
	return nil
}

// GetByID returns a cycle by identifier.
func (r *CycleRepository) GetByID(ctx context.Context, id string) (*models.Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles WHERE id = $1 LIMIT 1`
	var cycle models.Cycle
	if err := r.db.GetContext(ctx, &cycle, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find cycle by id: %w", err)
	}
	return &cycle, nil
}

// FindOpen returns the most recently started open cycle, if any.
func (r *CycleRepository) FindOpen(ctx context.Context) (*models.Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles WHERE status = $1 ORDER BY start_date DESC LIMIT 1`
	var cycle models.Cycle
	if err := r.db.GetContext(ctx, &cycle, query, models.CycleOpen); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find open cycle: %w", err)
	}
	return &cycle, nil
}

// List returns all cycles newest first.
func (r *CycleRepository) List(ctx context.Context) ([]models.Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles ORDER BY start_date DESC`
	var cycles []models.Cycle
	if err := r.db.SelectContext(ctx, &cycles, query); err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	return cycles, nil
}

// Close marks a cycle CLOSED with goals locked.
func (r *CycleRepository) Close(ctx context.Context, id string) error {
	const query = `UPDATE cycles SET status = $2, goals_locked = TRUE, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.CycleClosed, time.Now().UTC()); err != nil {
		return fmt.Errorf("close cycle: %w", err)
	}
	return nil
}
