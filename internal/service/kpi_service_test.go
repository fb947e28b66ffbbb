package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kpi-hub-api/internal/dto"
	"github.com/noah-isme/kpi-hub-api/internal/models"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
)

type kpiRepoStub struct {
	kpis map[string]*models.KpiDefinition
}

func newKpiRepoStub() *kpiRepoStub {
	return &kpiRepoStub{kpis: make(map[string]*models.KpiDefinition)}
}

func (s *kpiRepoStub) Create(ctx context.Context, kpi *models.KpiDefinition) error {
	if kpi.ID == "" {
		kpi.ID = uuid.NewString()
	}
	cp := *kpi
	s.kpis[kpi.ID] = &cp
	return nil
}

func (s *kpiRepoStub) GetByID(ctx context.Context, id string) (*models.KpiDefinition, error) {
	if k, ok := s.kpis[id]; ok {
		cp := *k
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *kpiRepoStub) Update(ctx context.Context, kpi *models.KpiDefinition) error {
	if _, ok := s.kpis[kpi.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *kpi
	s.kpis[kpi.ID] = &cp
	return nil
}

func (s *kpiRepoStub) UpdateStatus(ctx context.Context, id string, status models.WorkflowStatus, rejectionReason *string) error {
	k, ok := s.kpis[id]
	if !ok {
		return sql.ErrNoRows
	}
	k.Status = status
	k.RejectionReason = rejectionReason
	return nil
}

func (s *kpiRepoStub) ListByOwnerAndCycle(ctx context.Context, ownerID, cycleID string) ([]models.KpiDefinition, error) {
	var out []models.KpiDefinition
	for _, k := range s.kpis {
		if k.OwnerID == ownerID && k.CycleID == cycleID {
			out = append(out, *k)
		}
	}
	return out, nil
}

func (s *kpiRepoStub) List(ctx context.Context, filter models.KpiFilter) ([]models.KpiDefinition, int, error) {
	var out []models.KpiDefinition
	for _, k := range s.kpis {
		if filter.OwnerID != "" && k.OwnerID != filter.OwnerID {
			continue
		}
		out = append(out, *k)
	}
	return out, len(out), nil
}

type cycleRepoStub struct {
	cycles map[string]*models.Cycle
}

func (s *cycleRepoStub) GetByID(ctx context.Context, id string) (*models.Cycle, error) {
	if c, ok := s.cycles[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type auditStub struct {
	logs []*models.AuditLog
}

func (s *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func kpiFixture() (*KpiService, *kpiRepoStub, *cycleRepoStub, *approvalRepoStub, *entityStub, *models.User) {
	lineMgrID := "mgr-1"
	staff := &models.User{ID: "staff-1", Email: "staff@acme.test", Role: models.RoleStaff, Department: "Sales", ManagerID: &lineMgrID, Active: true}
	lineMgr := &models.User{ID: "mgr-1", Email: "lm@acme.test", Role: models.RoleLineManager, Department: "Sales", Active: true}

	repo := newKpiRepoStub()
	cycles := &cycleRepoStub{cycles: map[string]*models.Cycle{
		"c1": {ID: "c1", Name: "2026-H1", Status: models.CycleOpen},
	}}
	audit := &auditStub{}
	approvalRepo := newApprovalRepoStub()
	entities := newEntityStub()
	approvalRepo.entities = entities
	approvals := NewApprovalService(approvalRepo, newApprovalUsersStub(staff, lineMgr), nil, entities, nil, nil, ApprovalConfig{SLADays: 3})

	rules := KpiRules{MinKpis: 3, MaxKpis: 10, MinWeight: 5, MaxWeight: 40}
	svc := NewKpiService(repo, cycles, audit, approvals, nil, nil, rules)
	return svc, repo, cycles, approvalRepo, entities, staff
}

func draftKpi(ownerID string, title string, weight float64) *models.KpiDefinition {
	return &models.KpiDefinition{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		CycleID: "c1",
		Title:   title,
		Type:    models.KpiTypeHigherBetter,
		Unit:    "deals",
		Target:  10,
		Weight:  weight,
		Status:  models.StatusDraft,
	}
}

func TestCreateKpiDraft(t *testing.T) {
	svc, repo, _, _, _, staff := kpiFixture()

	kpi, err := svc.Create(context.Background(), staff.ID, dto.CreateKpiRequest{
		CycleID: "c1",
		Title:   "Close new deals",
		Type:    models.KpiTypeHigherBetter,
		Unit:    "deals",
		Target:  12,
		Weight:  30,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, kpi.Status)
	assert.Len(t, repo.kpis, 1)
}

func TestCreateKpiRejectsLockedCycle(t *testing.T) {
	svc, _, cycles, _, _, staff := kpiFixture()
	cycles.cycles["c1"].GoalsLocked = true

	_, err := svc.Create(context.Background(), staff.ID, dto.CreateKpiRequest{
		CycleID: "c1",
		Title:   "Close new deals",
		Type:    models.KpiTypeHigherBetter,
		Unit:    "deals",
		Target:  12,
		Weight:  30,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGoalsLocked.Code, appErrors.FromError(err).Code)
}

func TestCreateMilestoneKpiValidatesScale(t *testing.T) {
	svc, _, _, _, _, staff := kpiFixture()

	_, err := svc.Create(context.Background(), staff.ID, dto.CreateKpiRequest{
		CycleID: "c1",
		Title:   "Launch platform",
		Type:    models.KpiTypeMilestone,
		Unit:    "phase",
		Target:  100,
		Weight:  30,
		Scale: []models.MilestoneStep{
			{Threshold: 50, Score: 120},
			{Threshold: 50, Score: 80},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateRejectedKpiReturnsToDraft(t *testing.T) {
	svc, repo, _, _, _, staff := kpiFixture()
	kpi := draftKpi(staff.ID, "Close new deals", 30)
	kpi.Status = models.StatusRejected
	reason := "targets too low"
	kpi.RejectionReason = &reason
	repo.kpis[kpi.ID] = kpi

	updated, err := svc.Update(context.Background(), claimsFor(staff), kpi.ID, dto.UpdateKpiRequest{
		Title:  "Close new deals",
		Type:   models.KpiTypeHigherBetter,
		Unit:   "deals",
		Target: 20,
		Weight: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, updated.Status)
	assert.Nil(t, updated.RejectionReason)
}

func TestUpdatePendingKpiConflicts(t *testing.T) {
	svc, repo, _, _, _, staff := kpiFixture()
	kpi := draftKpi(staff.ID, "Close new deals", 30)
	kpi.Status = models.StatusWaitingLineMgr
	repo.kpis[kpi.ID] = kpi

	_, err := svc.Update(context.Background(), claimsFor(staff), kpi.ID, dto.UpdateKpiRequest{
		Title:  "Close new deals",
		Type:   models.KpiTypeHigherBetter,
		Unit:   "deals",
		Target: 20,
		Weight: 30,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestGetForeignKpiForbiddenForStaff(t *testing.T) {
	svc, repo, _, _, _, staff := kpiFixture()
	kpi := draftKpi("someone-else", "Their goal", 30)
	repo.kpis[kpi.ID] = kpi

	_, err := svc.Get(context.Background(), claimsFor(staff), kpi.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSubmitReportsAllViolations(t *testing.T) {
	svc, repo, _, _, _, staff := kpiFixture()
	// Two KPIs when the minimum is three, one weight out of bounds, and the
	// total nowhere near 100.
	a := draftKpi(staff.ID, "Deals", 50)
	b := draftKpi(staff.ID, "Churn", 30)
	repo.kpis[a.ID] = a
	repo.kpis[b.ID] = b

	report, err := svc.Submit(context.Background(), staff, dto.SubmitKpisRequest{CycleID: "c1"})
	require.Error(t, err)
	require.NotNil(t, report)
	assert.False(t, report.Valid)
	assert.Contains(t, report.Errors, "a set must contain between 3 and 10 KPIs, got 2")
	assert.Contains(t, report.Errors, fmt.Sprintf("weight of %q must be between 5%% and 40%%, got 50.0%%", "Deals"))
	assert.Contains(t, report.Errors, "weights must total 100%, got 80.0%")

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidWeights.Code, appErr.Code)
	assert.Len(t, appErr.Details, len(report.Errors))
}

func TestSubmitRejectsDuplicateTitles(t *testing.T) {
	svc, repo, _, _, _, staff := kpiFixture()
	weights := []float64{40, 30, 30}
	for i, title := range []string{"Close enterprise deals", "close ENTERPRISE deals", "Reduce churn rate"} {
		kpi := draftKpi(staff.ID, title, weights[i])
		repo.kpis[kpi.ID] = kpi
	}

	report, err := svc.Submit(context.Background(), staff, dto.SubmitKpisRequest{CycleID: "c1"})
	require.Error(t, err)
	require.NotNil(t, report)
	assert.False(t, report.Valid)

	var flagged bool
	for _, e := range report.Errors {
		if strings.Contains(e, "duplicates") {
			flagged = true
		}
	}
	assert.True(t, flagged, "case-insensitive duplicate titles must be rejected")
}

func TestSubmitRejectsMissingRequiredFields(t *testing.T) {
	svc, repo, _, _, _, staff := kpiFixture()
	a := draftKpi(staff.ID, "", 40)
	b := draftKpi(staff.ID, "Reduce churn rate", 30)
	b.Unit = ""
	c := draftKpi(staff.ID, "Grow pipeline coverage", 30)
	for _, kpi := range []*models.KpiDefinition{a, b, c} {
		repo.kpis[kpi.ID] = kpi
	}

	report, err := svc.Submit(context.Background(), staff, dto.SubmitKpisRequest{CycleID: "c1"})
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Contains(t, report.Errors, "every kpi requires a title")
	assert.Contains(t, report.Errors, `kpi "Reduce churn rate" requires a unit of measure`)
}

func TestValidateSetEmitsAdvisoryWarnings(t *testing.T) {
	svc, repo, _, _, _, staff := kpiFixture()
	a := draftKpi(staff.ID, "Deals", 40)
	b := draftKpi(staff.ID, "Reduce churn rate to target", 30)
	b.DataSource = "CRM monthly export"
	c := draftKpi(staff.ID, "Grow partner-sourced pipeline", 30)
	c.DataSource = "CRM"
	for _, kpi := range []*models.KpiDefinition{a, b, c} {
		repo.kpis[kpi.ID] = kpi
	}

	report, err := svc.ValidateSet(context.Background(), staff.ID, "c1")
	require.NoError(t, err)
	assert.True(t, report.Valid, "warnings alone must not invalidate the set")
	assert.Contains(t, report.Warnings, `"Deals" names no data source`)
	assert.Contains(t, report.Warnings, `title "Deals" is very short, a fuller description helps approvers`)
	assert.Contains(t, report.Warnings, `"Deals" carries 40.0% of the total weight, the set may be unbalanced`)
}

func TestSubmitValidSetRaisesApprovals(t *testing.T) {
	svc, repo, _, approvalRepo, entities, staff := kpiFixture()
	for i, w := range []float64{40, 30, 30} {
		kpi := draftKpi(staff.ID, fmt.Sprintf("Goal %d", i+1), w)
		repo.kpis[kpi.ID] = kpi
		entities.owners[kpi.ID] = staff.ID
	}

	report, err := svc.Submit(context.Background(), staff, dto.SubmitKpisRequest{CycleID: "c1"})
	require.NoError(t, err)
	assert.True(t, report.Valid)

	pending := 0
	for _, a := range approvalRepo.approvals {
		if a.Status == models.ApprovalPending {
			pending++
			assert.Equal(t, "mgr-1", a.ApproverID)
		}
	}
	assert.Equal(t, 3, pending)
	for _, k := range repo.kpis {
		assert.Equal(t, models.StatusWaitingLineMgr, k.Status)
	}
}

func TestSubmitWhileAwaitingApprovalConflicts(t *testing.T) {
	svc, repo, _, _, _, staff := kpiFixture()
	for i, w := range []float64{40, 30, 30} {
		kpi := draftKpi(staff.ID, fmt.Sprintf("Goal %d", i+1), w)
		if i == 0 {
			kpi.Status = models.StatusWaitingLineMgr
		}
		repo.kpis[kpi.ID] = kpi
	}

	_, err := svc.Submit(context.Background(), staff, dto.SubmitKpisRequest{CycleID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRequestChangeFromApproved(t *testing.T) {
	svc, repo, _, _, _, staff := kpiFixture()
	admin := &models.User{ID: "adm-1", Role: models.RoleAdmin, Active: true}
	kpi := draftKpi(staff.ID, "Deals", 30)
	kpi.Status = models.StatusApproved
	repo.kpis[kpi.ID] = kpi

	changed, err := svc.RequestChange(context.Background(), claimsFor(admin), kpi.ID, dto.ChangeRequestPayload{Reason: "target baseline moved"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusChangeRequested, changed.Status)
	require.NotNil(t, changed.RejectionReason)
	assert.Equal(t, "target baseline moved", *changed.RejectionReason)
}
