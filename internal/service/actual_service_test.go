package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kpi-hub-api/internal/dto"
	"github.com/noah-isme/kpi-hub-api/internal/models"
	"github.com/noah-isme/kpi-hub-api/internal/scoring"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
)

type actualRepoStub struct {
	actuals map[string]*models.KpiActual
}

func newActualRepoStub() *actualRepoStub {
	return &actualRepoStub{actuals: make(map[string]*models.KpiActual)}
}

func (s *actualRepoStub) Create(ctx context.Context, actual *models.KpiActual) error {
	if actual.ID == "" {
		actual.ID = uuid.NewString()
	}
	cp := *actual
	s.actuals[actual.ID] = &cp
	return nil
}

func (s *actualRepoStub) GetByID(ctx context.Context, id string) (*models.KpiActual, error) {
	if a, ok := s.actuals[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *actualRepoStub) Update(ctx context.Context, actual *models.KpiActual) error {
	if _, ok := s.actuals[actual.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *actual
	s.actuals[actual.ID] = &cp
	return nil
}

func (s *actualRepoStub) ExistsNonDraft(ctx context.Context, kpiID, period string) (bool, error) {
	for _, a := range s.actuals {
		if a.KpiID == kpiID && a.Period == period &&
			a.Status != models.StatusDraft && a.Status != models.StatusRejected && a.Status != models.StatusChangeRequested {
			return true, nil
		}
	}
	return false, nil
}

func (s *actualRepoStub) List(ctx context.Context, filter models.ActualFilter) ([]models.KpiActual, int, error) {
	var out []models.KpiActual
	for _, a := range s.actuals {
		if filter.OwnerID != "" && a.OwnerID != filter.OwnerID {
			continue
		}
		out = append(out, *a)
	}
	return out, len(out), nil
}

func actualFixture() (*ActualService, *actualRepoStub, *kpiRepoStub, *models.User) {
	lineMgrID := "mgr-1"
	staff := &models.User{ID: "staff-1", Email: "staff@acme.test", Role: models.RoleStaff, Department: "Sales", ManagerID: &lineMgrID, Active: true}
	lineMgr := &models.User{ID: "mgr-1", Email: "lm@acme.test", Role: models.RoleLineManager, Department: "Sales", Active: true}

	repo := newActualRepoStub()
	kpis := newKpiRepoStub()
	entities := newEntityStub()
	approvals := NewApprovalService(newApprovalRepoStub(), newApprovalUsersStub(staff, lineMgr), nil, entities, nil, nil, ApprovalConfig{SLADays: 3})
	svc := NewActualService(repo, kpis, &auditStub{}, approvals, nil, nil, 0)
	return svc, repo, kpis, staff
}

func approvedKpi(kpis *kpiRepoStub, ownerID string) *models.KpiDefinition {
	kpi := draftKpi(ownerID, "Close new deals", 30)
	kpi.Status = models.StatusApproved
	kpis.kpis[kpi.ID] = kpi
	return kpi
}

func TestSubmitActualFreezesScore(t *testing.T) {
	svc, _, kpis, staff := actualFixture()
	kpi := approvedKpi(kpis, staff.ID)

	actual, err := svc.Submit(context.Background(), staff, dto.SubmitActualRequest{
		KpiID:       kpi.ID,
		ActualValue: 12,
		Period:      "2026-07",
	})
	require.NoError(t, err)

	// 12 against a target of 10 is 120%, the Outstanding band.
	assert.Equal(t, 120.0, actual.Percentage)
	assert.Equal(t, 5.0, actual.Score)
	assert.Equal(t, scoring.BandOutstanding, actual.Band)
	assert.Equal(t, models.StatusWaitingLineMgr, actual.Status)
	assert.Equal(t, models.VerificationPending, actual.Verification)

	// A later target change must not rewrite the stored score.
	kpi.Target = 100
	stored, err := svc.Get(context.Background(), claimsFor(staff), actual.ID)
	require.NoError(t, err)
	assert.Equal(t, 120.0, stored.Percentage)
	assert.Equal(t, 5.0, stored.Score)
}

func TestSubmitActualCapsAchievement(t *testing.T) {
	svc, _, kpis, staff := actualFixture()
	kpi := approvedKpi(kpis, staff.ID)

	actual, err := svc.Submit(context.Background(), staff, dto.SubmitActualRequest{
		KpiID:       kpi.ID,
		ActualValue: 50,
		Period:      "2026-07",
	})
	require.NoError(t, err)
	assert.Equal(t, scoring.DefaultCap, actual.Percentage)
}

func TestSubmitActualRejectsDuplicatePeriod(t *testing.T) {
	svc, _, kpis, staff := actualFixture()
	kpi := approvedKpi(kpis, staff.ID)

	_, err := svc.Submit(context.Background(), staff, dto.SubmitActualRequest{KpiID: kpi.ID, ActualValue: 8, Period: "2026-07"})
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), staff, dto.SubmitActualRequest{KpiID: kpi.ID, ActualValue: 9, Period: "2026-07"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateActual.Code, appErrors.FromError(err).Code)
}

func TestSubmitActualAllowsResubmitAfterRejection(t *testing.T) {
	svc, repo, kpis, staff := actualFixture()
	kpi := approvedKpi(kpis, staff.ID)

	first, err := svc.Submit(context.Background(), staff, dto.SubmitActualRequest{KpiID: kpi.ID, ActualValue: 8, Period: "2026-07"})
	require.NoError(t, err)
	repo.actuals[first.ID].Status = models.StatusRejected

	_, err = svc.Submit(context.Background(), staff, dto.SubmitActualRequest{KpiID: kpi.ID, ActualValue: 9, Period: "2026-07"})
	require.NoError(t, err)
}

func TestSubmitActualRequiresApprovedGoal(t *testing.T) {
	svc, _, kpis, staff := actualFixture()
	kpi := draftKpi(staff.ID, "Close new deals", 30)
	kpis.kpis[kpi.ID] = kpi

	_, err := svc.Submit(context.Background(), staff, dto.SubmitActualRequest{KpiID: kpi.ID, ActualValue: 8, Period: "2026-07"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubmitActualRejectsBadPeriod(t *testing.T) {
	svc, _, kpis, staff := actualFixture()
	kpi := approvedKpi(kpis, staff.ID)

	for _, period := range []string{"2026-13", "2026/07", "July 2026", "26-07"} {
		_, err := svc.Submit(context.Background(), staff, dto.SubmitActualRequest{KpiID: kpi.ID, ActualValue: 8, Period: period})
		require.Error(t, err, period)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestSubmitActualForeignKpiForbidden(t *testing.T) {
	svc, _, kpis, staff := actualFixture()
	kpi := approvedKpi(kpis, "someone-else")

	_, err := svc.Submit(context.Background(), staff, dto.SubmitActualRequest{KpiID: kpi.ID, ActualValue: 8, Period: "2026-07"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSubmitMilestoneActualUsesScale(t *testing.T) {
	svc, _, kpis, staff := actualFixture()
	kpi := draftKpi(staff.ID, "Launch platform", 30)
	kpi.Type = models.KpiTypeMilestone
	kpi.Status = models.StatusApproved
	require.NoError(t, kpi.SetScale([]models.MilestoneStep{
		{Threshold: 25, Score: 60},
		{Threshold: 50, Score: 80},
		{Threshold: 100, Score: 120},
	}))
	kpis.kpis[kpi.ID] = kpi

	actual, err := svc.Submit(context.Background(), staff, dto.SubmitActualRequest{KpiID: kpi.ID, ActualValue: 60, Period: "2026-07"})
	require.NoError(t, err)
	assert.Equal(t, 80.0, actual.Score)
	assert.Equal(t, scoring.BandMilestone, actual.Band)
}

func TestPreviewDoesNotPersist(t *testing.T) {
	svc, repo, kpis, staff := actualFixture()
	kpi := approvedKpi(kpis, staff.ID)

	result, err := svc.Preview(context.Background(), claimsFor(staff), kpi.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, 90.0, result.Percentage)
	assert.Equal(t, scoring.BandGood, result.Band)
	assert.Empty(t, repo.actuals)
}
