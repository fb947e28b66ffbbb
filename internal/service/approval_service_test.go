package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kpi-hub-api/internal/dto"
	"github.com/noah-isme/kpi-hub-api/internal/models"
	"github.com/noah-isme/kpi-hub-api/internal/repository"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
)

type approvalRepoStub struct {
	approvals map[string]*models.Approval
	entities  *entityStub
}

func newApprovalRepoStub() *approvalRepoStub {
	return &approvalRepoStub{approvals: make(map[string]*models.Approval)}
}

func (s *approvalRepoStub) Create(ctx context.Context, a *models.Approval) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	copy := *a
	s.approvals[a.ID] = &copy
	return nil
}

func (s *approvalRepoStub) GetByID(ctx context.Context, id string) (*models.Approval, error) {
	if a, ok := s.approvals[id]; ok {
		copy := *a
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *approvalRepoStub) FindPendingByEntity(ctx context.Context, ref models.EntityRef) (*models.Approval, error) {
	for _, a := range s.approvals {
		if a.EntityType == ref.Type && a.EntityID == ref.ID && a.Status == models.ApprovalPending {
			copy := *a
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *approvalRepoStub) ListByEntity(ctx context.Context, ref models.EntityRef) ([]models.Approval, error) {
	var out []models.Approval
	for _, a := range s.approvals {
		if a.EntityType == ref.Type && a.EntityID == ref.ID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *approvalRepoStub) List(ctx context.Context, filter models.ApprovalFilter) ([]models.Approval, int, error) {
	var out []models.Approval
	for _, a := range s.approvals {
		if filter.ApproverID != "" && a.ApproverID != filter.ApproverID {
			continue
		}
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (s *approvalRepoStub) Decide(ctx context.Context, p repository.DecideParams) error {
	a, ok := s.approvals[p.ApprovalID]
	if !ok || a.Status != models.ApprovalPending {
		return sql.ErrNoRows
	}
	a.Status = p.Decision
	a.DeciderID = &p.DeciderID
	a.Comment = p.Comment
	a.DecidedAt = &p.DecidedAt
	if p.NextApproval != nil {
		if err := s.Create(ctx, p.NextApproval); err != nil {
			return err
		}
	}
	if s.entities != nil {
		s.entities.statuses[p.Entity.ID] = p.EntityStatus
		s.entities.reasons[p.Entity.ID] = p.RejectionReason
	}
	return nil
}

type approvalUsersStub struct {
	users map[string]*models.User
	logs  []*models.AuditLog
}

func newApprovalUsersStub(users ...*models.User) *approvalUsersStub {
	s := &approvalUsersStub{users: make(map[string]*models.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *approvalUsersStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (s *approvalUsersStub) FindActiveManagerInDepartment(ctx context.Context, department string) (*models.User, error) {
	for _, u := range s.users {
		if u.Role == models.RoleManager && u.Active && u.Department == department {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *approvalUsersStub) FindActiveManagerByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Role == models.RoleManager && u.Active && u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *approvalUsersStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

type approvalOrgsStub struct {
	units map[string]*models.OrgUnit
}

func (s *approvalOrgsStub) GetByID(ctx context.Context, id string) (*models.OrgUnit, error) {
	if u, ok := s.units[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type entityStub struct {
	owners   map[string]string
	statuses map[string]models.WorkflowStatus
	reasons  map[string]*string
}

func newEntityStub() *entityStub {
	return &entityStub{
		owners:   make(map[string]string),
		statuses: make(map[string]models.WorkflowStatus),
		reasons:  make(map[string]*string),
	}
}

func (s *entityStub) OwnerOf(ctx context.Context, ref models.EntityRef) (string, error) {
	if owner, ok := s.owners[ref.ID]; ok {
		return owner, nil
	}
	return "", sql.ErrNoRows
}

func (s *entityStub) UpdateEntityStatus(ctx context.Context, ref models.EntityRef, status models.WorkflowStatus, reason *string) error {
	s.statuses[ref.ID] = status
	s.reasons[ref.ID] = reason
	return nil
}

func claimsFor(u *models.User) *models.JWTClaims {
	return &models.JWTClaims{UserID: u.ID, Role: u.Role, Email: u.Email, FullName: u.FullName}
}

func approvalFixture() (*ApprovalService, *approvalRepoStub, *approvalUsersStub, *entityStub, *models.User, *models.User, *models.User) {
	lineMgrID := "mgr-1"
	staff := &models.User{ID: "staff-1", Email: "staff@acme.test", Role: models.RoleStaff, Department: "Sales", ManagerID: &lineMgrID, Active: true}
	lineMgr := &models.User{ID: "mgr-1", Email: "lm@acme.test", Role: models.RoleLineManager, Department: "Sales", Active: true}
	hod := &models.User{ID: "hod-1", Email: "hod@acme.test", Role: models.RoleManager, Department: "Sales", Active: true}

	repo := newApprovalRepoStub()
	users := newApprovalUsersStub(staff, lineMgr, hod)
	entities := newEntityStub()
	repo.entities = entities
	orgs := &approvalOrgsStub{units: make(map[string]*models.OrgUnit)}
	svc := NewApprovalService(repo, users, orgs, entities, nil, nil, ApprovalConfig{SLADays: 3, AdminProxy: true})
	return svc, repo, users, entities, staff, lineMgr, hod
}

func pendingFor(repo *approvalRepoStub, approverID string) *models.Approval {
	for _, a := range repo.approvals {
		if a.ApproverID == approverID && a.Status == models.ApprovalPending {
			return a
		}
	}
	return nil
}

func TestRaiseRoutesToLineManager(t *testing.T) {
	svc, repo, _, entities, staff, lineMgr, _ := approvalFixture()
	entities.owners["k1"] = staff.ID

	require.NoError(t, svc.Raise(context.Background(), models.KpiRef("k1"), staff))

	open := pendingFor(repo, lineMgr.ID)
	require.NotNil(t, open)
	assert.Equal(t, 1, open.Level)
	assert.Equal(t, models.EntityKpi, open.EntityType)
}

func TestRaiseSkipsToHODWhenNoLineManager(t *testing.T) {
	svc, repo, _, entities, staff, _, hod := approvalFixture()
	staff.ManagerID = nil
	entities.owners["k1"] = staff.ID

	require.NoError(t, svc.Raise(context.Background(), models.KpiRef("k1"), staff))

	open := pendingFor(repo, hod.ID)
	require.NotNil(t, open)
	assert.Equal(t, 2, open.Level)
	assert.Equal(t, models.StatusWaitingManager, entities.statuses["k1"])
}

func TestRaiseFinalizesWhenNobodyCanDecide(t *testing.T) {
	svc, _, users, entities, staff, _, hod := approvalFixture()
	staff.ManagerID = nil
	hod.Active = false
	delete(users.users, hod.ID)
	entities.owners["k1"] = staff.ID

	require.NoError(t, svc.Raise(context.Background(), models.KpiRef("k1"), staff))
	assert.Equal(t, models.StatusApproved, entities.statuses["k1"])
}

func TestApproveLevelOneRaisesLevelTwo(t *testing.T) {
	svc, repo, _, entities, staff, lineMgr, hod := approvalFixture()
	entities.owners["k1"] = staff.ID
	require.NoError(t, svc.Raise(context.Background(), models.KpiRef("k1"), staff))
	first := pendingFor(repo, lineMgr.ID)
	require.NotNil(t, first)

	decided, err := svc.Approve(context.Background(), claimsFor(lineMgr), first.ID, dto.DecisionRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, decided.Status)

	second := pendingFor(repo, hod.ID)
	require.NotNil(t, second)
	assert.Equal(t, 2, second.Level)
}

func TestApproveLevelTwoFinalizes(t *testing.T) {
	svc, repo, _, entities, staff, lineMgr, hod := approvalFixture()
	entities.owners["k1"] = staff.ID
	require.NoError(t, svc.Raise(context.Background(), models.KpiRef("k1"), staff))
	first := pendingFor(repo, lineMgr.ID)
	_, err := svc.Approve(context.Background(), claimsFor(lineMgr), first.ID, dto.DecisionRequest{})
	require.NoError(t, err)

	second := pendingFor(repo, hod.ID)
	require.NotNil(t, second)
	_, err = svc.Approve(context.Background(), claimsFor(hod), second.ID, dto.DecisionRequest{Comment: "well done"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, entities.statuses["k1"])
}

func TestApproveCollapsesWhenSameApprover(t *testing.T) {
	// The line manager also heads the department, so level 2 would land on
	// the person who just decided level 1 and must collapse.
	svc, repo, users, entities, staff, lineMgr, hod := approvalFixture()
	delete(users.users, hod.ID)
	lineMgr.Role = models.RoleManager
	entities.owners["k1"] = staff.ID

	require.NoError(t, svc.Raise(context.Background(), models.KpiRef("k1"), staff))
	first := pendingFor(repo, lineMgr.ID)
	require.NotNil(t, first)

	_, err := svc.Approve(context.Background(), claimsFor(lineMgr), first.ID, dto.DecisionRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, entities.statuses["k1"])
	assert.Nil(t, pendingFor(repo, lineMgr.ID))
}

func TestApprovePrefersAssignedUnitHead(t *testing.T) {
	// Both an assigned org unit head and a department manager exist; level 2
	// must land on the assigned head.
	svc, repo, users, entities, staff, lineMgr, _ := approvalFixture()
	head := &models.User{ID: "head-1", Email: "sales.head@acme.test", Role: models.RoleManager, Department: "Corporate", Active: true}
	users.users[head.ID] = head
	unitID := "unit-sales"
	staff.OrgUnitID = &unitID
	svc.orgs.(*approvalOrgsStub).units[unitID] = &models.OrgUnit{ID: unitID, Name: "Sales", Kind: models.OrgDepartment, ManagerID: &head.ID}
	entities.owners["k1"] = staff.ID

	require.NoError(t, svc.Raise(context.Background(), models.KpiRef("k1"), staff))
	first := pendingFor(repo, lineMgr.ID)
	require.NotNil(t, first)
	_, err := svc.Approve(context.Background(), claimsFor(lineMgr), first.ID, dto.DecisionRequest{})
	require.NoError(t, err)

	second := pendingFor(repo, head.ID)
	require.NotNil(t, second)
	assert.Equal(t, 2, second.Level)
}

func TestApproveSkipsInactiveUnitHead(t *testing.T) {
	svc, repo, users, entities, staff, lineMgr, hod := approvalFixture()
	head := &models.User{ID: "head-1", Email: "sales.head@acme.test", Role: models.RoleManager, Department: "Corporate", Active: false}
	users.users[head.ID] = head
	unitID := "unit-sales"
	staff.OrgUnitID = &unitID
	svc.orgs.(*approvalOrgsStub).units[unitID] = &models.OrgUnit{ID: unitID, Name: "Sales", Kind: models.OrgDepartment, ManagerID: &head.ID}
	entities.owners["k1"] = staff.ID

	require.NoError(t, svc.Raise(context.Background(), models.KpiRef("k1"), staff))
	first := pendingFor(repo, lineMgr.ID)
	_, err := svc.Approve(context.Background(), claimsFor(lineMgr), first.ID, dto.DecisionRequest{})
	require.NoError(t, err)

	second := pendingFor(repo, hod.ID)
	require.NotNil(t, second)
	assert.Equal(t, 2, second.Level)
}

func TestApproveFallsBackToConfiguredHOD(t *testing.T) {
	svc, repo, users, entities, staff, lineMgr, hod := approvalFixture()
	delete(users.users, hod.ID)
	fallback := &models.User{ID: "fb-1", Email: "general.hod@acme.test", Role: models.RoleManager, Department: "Corporate", Active: true}
	users.users[fallback.ID] = fallback
	svc.config.FallbackHODEmail = fallback.Email
	entities.owners["k1"] = staff.ID

	require.NoError(t, svc.Raise(context.Background(), models.KpiRef("k1"), staff))
	first := pendingFor(repo, lineMgr.ID)
	_, err := svc.Approve(context.Background(), claimsFor(lineMgr), first.ID, dto.DecisionRequest{})
	require.NoError(t, err)

	second := pendingFor(repo, fallback.ID)
	require.NotNil(t, second)
	assert.Equal(t, 2, second.Level)
}

func TestRejectRequiresComment(t *testing.T) {
	svc, repo, _, entities, staff, lineMgr, _ := approvalFixture()
	entities.owners["k1"] = staff.ID
	require.NoError(t, svc.Raise(context.Background(), models.KpiRef("k1"), staff))
	first := pendingFor(repo, lineMgr.ID)

	_, err := svc.Reject(context.Background(), claimsFor(lineMgr), first.ID, dto.DecisionRequest{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestRejectIsTerminal(t *testing.T) {
	svc, repo, _, entities, staff, lineMgr, hod := approvalFixture()
	entities.owners["k1"] = staff.ID
	require.NoError(t, svc.Raise(context.Background(), models.KpiRef("k1"), staff))
	first := pendingFor(repo, lineMgr.ID)

	decided, err := svc.Reject(context.Background(), claimsFor(lineMgr), first.ID, dto.DecisionRequest{Comment: "targets too low"})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalRejected, decided.Status)
	assert.Equal(t, models.StatusRejected, entities.statuses["k1"])
	require.NotNil(t, entities.reasons["k1"])
	assert.Equal(t, "targets too low", *entities.reasons["k1"])
	assert.Nil(t, pendingFor(repo, hod.ID))
}

func TestDecideTwiceConflicts(t *testing.T) {
	svc, repo, _, entities, staff, lineMgr, _ := approvalFixture()
	entities.owners["k1"] = staff.ID
	require.NoError(t, svc.Raise(context.Background(), models.KpiRef("k1"), staff))
	first := pendingFor(repo, lineMgr.ID)

	_, err := svc.Approve(context.Background(), claimsFor(lineMgr), first.ID, dto.DecisionRequest{})
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), claimsFor(lineMgr), first.ID, dto.DecisionRequest{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAlreadyDecided.Code, appErr.Code)
}

func TestDecideByWrongApproverForbidden(t *testing.T) {
	svc, repo, _, entities, staff, lineMgr, hod := approvalFixture()
	entities.owners["k1"] = staff.ID
	require.NoError(t, svc.Raise(context.Background(), models.KpiRef("k1"), staff))
	first := pendingFor(repo, lineMgr.ID)

	_, err := svc.Approve(context.Background(), claimsFor(hod), first.ID, dto.DecisionRequest{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestAdminProxyDecides(t *testing.T) {
	svc, repo, users, entities, staff, lineMgr, _ := approvalFixture()
	admin := &models.User{ID: "adm-1", Email: "admin@acme.test", Role: models.RoleAdmin, Active: true}
	users.users[admin.ID] = admin
	entities.owners["k1"] = staff.ID
	require.NoError(t, svc.Raise(context.Background(), models.KpiRef("k1"), staff))
	first := pendingFor(repo, lineMgr.ID)

	decided, err := svc.Approve(context.Background(), claimsFor(admin), first.ID, dto.DecisionRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, decided.Status)
	require.NotNil(t, decided.DeciderID)
	assert.Equal(t, admin.ID, *decided.DeciderID)

	var proxyLogged bool
	for _, log := range users.logs {
		if log.Action == models.AuditActionProxyDecide {
			proxyLogged = true
		}
	}
	assert.True(t, proxyLogged)
}

func TestOverdueFlagging(t *testing.T) {
	svc, repo, _, entities, staff, lineMgr, _ := approvalFixture()
	entities.owners["k1"] = staff.ID
	require.NoError(t, svc.Raise(context.Background(), models.KpiRef("k1"), staff))
	first := pendingFor(repo, lineMgr.ID)
	first.CreatedAt = time.Now().UTC().Add(-4 * 24 * time.Hour)

	views, _, err := svc.List(context.Background(), claimsFor(lineMgr), dto.ApprovalQuery{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].Overdue)
}
