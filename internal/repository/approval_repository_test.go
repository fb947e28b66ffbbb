package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kpi-hub-api/internal/models"
)

func TestFindPendingByEntity(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "entity_type", "entity_id", "level", "approver_id", "decider_id", "status", "comment", "created_at", "decided_at"}).
		AddRow("ap1", "KPI", "k1", 1, "mgr", nil, "PENDING", nil, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, entity_type, entity_id, level, approver_id, decider_id, status, comment, created_at, decided_at FROM approvals WHERE entity_type = $1 AND entity_id = $2 AND status = $3 LIMIT 1")).
		WithArgs(string(models.EntityKpi), "k1", string(models.ApprovalPending)).
		WillReturnRows(rows)

	approval, err := repo.FindPendingByEntity(context.Background(), models.KpiRef("k1"))
	require.NoError(t, err)
	assert.Equal(t, "ap1", approval.ID)
	assert.Equal(t, 1, approval.Level)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrdersOverdueFirstThenNewest(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	cutoff := time.Now().Add(-3 * 24 * time.Hour)
	rows := sqlmock.NewRows([]string{"id", "entity_type", "entity_id", "level", "approver_id", "decider_id", "status", "comment", "created_at", "decided_at"}).
		AddRow("ap-overdue", "KPI", "k1", 1, "mgr", nil, "PENDING", nil, cutoff.Add(-time.Hour), nil).
		AddRow("ap-fresh", "KPI", "k2", 1, "mgr", nil, "PENDING", nil, time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, entity_type, entity_id, level, approver_id, decider_id, status, comment, created_at, decided_at FROM approvals WHERE 1=1 AND approver_id = $1 ORDER BY CASE status WHEN 'PENDING' THEN 0 ELSE 1 END, CASE WHEN status = 'PENDING' AND created_at < $2 THEN 0 ELSE 1 END, created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("mgr", cutoff).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM approvals WHERE 1=1 AND approver_id = $1")).
		WithArgs("mgr").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	approvals, total, err := repo.List(context.Background(), models.ApprovalFilter{ApproverID: "mgr", SLACutoff: cutoff})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, approvals, 2)
	assert.Equal(t, "ap-overdue", approvals[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecideApproveWithNextLevel(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	decidedAt := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE approvals SET status = $2, decider_id = $3, comment = $4, decided_at = $5 WHERE id = $1 AND status = $6")).
		WithArgs("ap1", string(models.ApprovalApproved), "mgr", nil, decidedAt, string(models.ApprovalPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approvals (id, entity_type, entity_id, level, approver_id, status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)")).
		WithArgs("ap2", string(models.EntityKpi), "k1", 2, "hod", string(models.ApprovalPending), decidedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE kpi_definitions SET status = $2, rejection_reason = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("k1", string(models.StatusWaitingManager), nil, decidedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Decide(context.Background(), DecideParams{
		ApprovalID: "ap1",
		Decision:   models.ApprovalApproved,
		DeciderID:  "mgr",
		DecidedAt:  decidedAt,
		NextApproval: &models.Approval{
			ID:         "ap2",
			EntityType: models.EntityKpi,
			EntityID:   "k1",
			Level:      2,
			ApproverID: "hod",
			Status:     models.ApprovalPending,
			CreatedAt:  decidedAt,
		},
		Entity:       models.KpiRef("k1"),
		EntityStatus: models.StatusWaitingManager,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecideAlreadyDecided(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	decidedAt := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE approvals SET status = $2, decider_id = $3, comment = $4, decided_at = $5 WHERE id = $1 AND status = $6")).
		WithArgs("ap1", string(models.ApprovalApproved), "mgr", nil, decidedAt, string(models.ApprovalPending)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Decide(context.Background(), DecideParams{
		ApprovalID:   "ap1",
		Decision:     models.ApprovalApproved,
		DeciderID:    "mgr",
		DecidedAt:    decidedAt,
		Entity:       models.KpiRef("k1"),
		EntityStatus: models.StatusApproved,
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecideRejectActual(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	decidedAt := time.Now()
	comment := "numbers do not match evidence"
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE approvals SET status = $2, decider_id = $3, comment = $4, decided_at = $5 WHERE id = $1 AND status = $6")).
		WithArgs("ap1", string(models.ApprovalRejected), "mgr", &comment, decidedAt, string(models.ApprovalPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE kpi_actuals SET status = $2, rejection_reason = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("a1", string(models.StatusRejected), &comment, decidedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Decide(context.Background(), DecideParams{
		ApprovalID:      "ap1",
		Decision:        models.ApprovalRejected,
		DeciderID:       "mgr",
		Comment:         &comment,
		DecidedAt:       decidedAt,
		Entity:          models.ActualRef("a1"),
		EntityStatus:    models.StatusRejected,
		RejectionReason: &comment,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
