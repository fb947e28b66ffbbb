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

const evidenceColumns = `id, actual_id, file_name, stored_path, mime_type, size_bytes, ocr_text, verification, discrepancies, uploaded_by, indexed_at, created_at`

// EvidenceRepository provides database access for uploaded evidence files.
type EvidenceRepository struct {
	db *sqlx.DB
}

// NewEvidenceRepository creates a new instance of EvidenceRepository.
func NewEvidenceRepository(db *sqlx.DB) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

// Create inserts a new evidence record.
func (r *EvidenceRepository) Create(ctx context.Context, ev *models.Evidence) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO evidence (id, actual_id, file_name, stored_path, mime_type, size_bytes, ocr_text, verification, discrepancies, uploaded_by, indexed_at, created_at) VALUES (:id, :actual_id, :file_name, :stored_path, :mime_type, :size_bytes, :ocr_text, :verification, :discrepancies, :uploaded_by, :indexed_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, ev); err != nil {
		return fmt.Errorf("create evidence: %w", err)
	}
	return nil
}

// GetByID returns an evidence record by identifier.
func (r *EvidenceRepository) GetByID(ctx context.Context, id string) (*models.Evidence, error) {
	query := `SELECT ` + evidenceColumns + ` FROM evidence WHERE id = $1 LIMIT 1`
	var ev models.Evidence
	if err := r.db.GetContext(ctx, &ev, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find evidence by id: %w", err)
	}
	return &ev, nil
}

// ListByActual returns all evidence uploaded for an actual.
func (r *EvidenceRepository) ListByActual(ctx context.Context, actualID string) ([]models.Evidence, error) {
	query := `SELECT ` + evidenceColumns + ` FROM evidence WHERE actual_id = $1 ORDER BY created_at ASC`
	var evs []models.Evidence
	if err := r.db.SelectContext(ctx, &evs, query, actualID); err != nil {
		return nil, fmt.Errorf("list evidence for actual: %w", err)
	}
	return evs, nil
}

// ListUnindexed returns a batch of evidence not yet processed by indexing.
func (r *EvidenceRepository) ListUnindexed(ctx context.Context, limit int) ([]models.Evidence, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + evidenceColumns + ` FROM evidence WHERE indexed_at IS NULL ORDER BY created_at ASC LIMIT $1`
	var evs []models.Evidence
	if err := r.db.SelectContext(ctx, &evs, query, limit); err != nil {
		return nil, fmt.Errorf("list unindexed evidence: %w", err)
	}
	return evs, nil
}

// UpdateVerification stores the extraction output for an evidence record.
func (r *EvidenceRepository) UpdateVerification(ctx context.Context, id string, ocrText *string, verification models.AIVerification, discrepancies []byte, indexedAt time.Time) error {
	const query = `UPDATE evidence SET ocr_text = $2, verification = $3, discrepancies = $4, indexed_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ocrText, verification, discrepancies, indexedAt); err != nil {
		return fmt.Errorf("update evidence verification: %w", err)
	}
	return nil
}

// CountUnindexed returns how many evidence records still await indexing.
func (r *EvidenceRepository) CountUnindexed(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM evidence WHERE indexed_at IS NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("count unindexed evidence: %w", err)
	}
	return count, nil
}
