package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kpi-hub-api/internal/models"
)

func kpiRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "owner_id", "cycle_id", "title", "type", "unit", "target", "weight", "data_source", "scale", "status", "rejection_reason", "created_at", "updated_at"})
}

func TestListByOwnerAndCycle(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewKpiRepository(db)

	now := time.Now()
	rows := kpiRows().
		AddRow("k1", "u1", "c1", "Revenue", string(models.KpiTypeHigherBetter), "USD", 100000.0, 30.0, "CRM", nil, string(models.StatusDraft), nil, now, now).
		AddRow("k2", "u1", "c1", "Churn", string(models.KpiTypeLowerBetter), "%", 5.0, 20.0, "CRM", nil, string(models.StatusDraft), nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, owner_id, cycle_id, title, type, unit, target, weight, data_source, scale, status, rejection_reason, created_at, updated_at FROM kpi_definitions WHERE owner_id = $1 AND cycle_id = $2 ORDER BY created_at ASC")).
		WithArgs("u1", "c1").
		WillReturnRows(rows)

	kpis, err := repo.ListByOwnerAndCycle(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Len(t, kpis, 2)
	assert.Equal(t, "Revenue", kpis[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockApprovedByCycle(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewKpiRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE kpi_definitions SET status = $2, updated_at = $3 WHERE cycle_id = $1 AND status = $4")).
		WithArgs("c1", string(models.StatusLockedGoals), sqlmock.AnyArg(), string(models.StatusApproved)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	affected, err := repo.LockApprovedByCycle(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsNonDraft(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewActualRepository(db)

	rows := sqlmock.NewRows([]string{"exists"}).AddRow(true)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM kpi_actuals WHERE kpi_id = $1 AND period = $2 AND status NOT IN ($3, $4, $5))")).
		WithArgs("k1", "2026-07", string(models.StatusDraft), string(models.StatusRejected), string(models.StatusChangeRequested)).
		WillReturnRows(rows)

	exists, err := repo.ExistsNonDraft(context.Background(), "k1", "2026-07")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
