package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/kpi-hub-api/internal/dto"
	"github.com/noah-isme/kpi-hub-api/internal/models"
	"github.com/noah-isme/kpi-hub-api/internal/repository"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
)

type approvalRepository interface {
	Create(ctx context.Context, approval *models.Approval) error
	GetByID(ctx context.Context, id string) (*models.Approval, error)
	FindPendingByEntity(ctx context.Context, ref models.EntityRef) (*models.Approval, error)
	ListByEntity(ctx context.Context, ref models.EntityRef) ([]models.Approval, error)
	List(ctx context.Context, filter models.ApprovalFilter) ([]models.Approval, int, error)
	Decide(ctx context.Context, p repository.DecideParams) error
}

type approvalUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindActiveManagerInDepartment(ctx context.Context, department string) (*models.User, error)
	FindActiveManagerByEmail(ctx context.Context, email string) (*models.User, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type approvalOrgRepository interface {
	GetByID(ctx context.Context, id string) (*models.OrgUnit, error)
}

type approvalEntityAccess interface {
	OwnerOf(ctx context.Context, ref models.EntityRef) (string, error)
	UpdateEntityStatus(ctx context.Context, ref models.EntityRef, status models.WorkflowStatus, reason *string) error
}

// ApprovalConfig tunes routing and SLA behavior.
type ApprovalConfig struct {
	SLADays          int
	FallbackHODEmail string
	AdminProxy       bool
}

// Notifier receives workflow events for async delivery.
type Notifier interface {
	NotifyDecisionNeeded(approval *models.Approval)
	NotifyDecided(approval *models.Approval, ownerID string)
}

// ApprovalService implements the two-level approval workflow. Level 1 goes
// to the owner's line manager; level 2 resolves to the department HOD with
// fallbacks. A level whose approver equals the previous decider collapses.
type ApprovalService struct {
	repo     approvalRepository
	users    approvalUserRepository
	orgs     approvalOrgRepository
	entities approvalEntityAccess
	notifier Notifier
	logger   *zap.Logger
	config   ApprovalConfig
	now      func() time.Time
}

// NewApprovalService constructs an ApprovalService instance.
func NewApprovalService(repo approvalRepository, users approvalUserRepository, orgs approvalOrgRepository, entities approvalEntityAccess, notifier Notifier, logger *zap.Logger, config ApprovalConfig) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		repo:     repo,
		users:    users,
		orgs:     orgs,
		entities: entities,
		notifier: notifier,
		logger:   logger,
		config:   config,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Raise opens the level-1 approval for a freshly submitted entity. When the
// owner has no line manager the submission routes straight to level 2, and
// when that is unresolvable too the entity finalizes immediately.
func (s *ApprovalService) Raise(ctx context.Context, ref models.EntityRef, owner *models.User) error {
	if existing, err := s.repo.FindPendingByEntity(ctx, ref); err == nil && existing != nil {
		return appErrors.Clone(appErrors.ErrConflict, "entity already has a pending approval")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending approval")
	}

	if owner.ManagerID != nil {
		mgr, err := s.users.FindByID(ctx, *owner.ManagerID)
		if err == nil && mgr.Active {
			approval := &models.Approval{
				EntityType: ref.Type,
				EntityID:   ref.ID,
				Level:      1,
				ApproverID: mgr.ID,
				Status:     models.ApprovalPending,
				CreatedAt:  s.now(),
			}
			if err := s.repo.Create(ctx, approval); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to raise approval")
			}
			s.notify(func(n Notifier) { n.NotifyDecisionNeeded(approval) })
			return nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load line manager")
		}
		s.logger.Warn("line manager unavailable, skipping to level 2",
			zap.String("owner", owner.ID), zap.String("manager", *owner.ManagerID))
	}

	hod, err := s.resolveLevelTwo(ctx, owner, "")
	if err != nil {
		return err
	}
	if hod == nil {
		// Nobody can decide; the submission finalizes unreviewed.
		return s.finalizeUnreviewed(ctx, ref, owner)
	}

	approval := &models.Approval{
		EntityType: ref.Type,
		EntityID:   ref.ID,
		Level:      2,
		ApproverID: hod.ID,
		Status:     models.ApprovalPending,
		CreatedAt:  s.now(),
	}
	if err := s.repo.Create(ctx, approval); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to raise approval")
	}
	// Level 1 was skipped, so the entity sits at the level-2 waiting state.
	if err := s.entities.UpdateEntityStatus(ctx, ref, models.StatusWaitingManager, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance entity status")
	}
	s.notify(func(n Notifier) { n.NotifyDecisionNeeded(approval) })
	return nil
}

// Approve records a positive decision. Approving level 1 raises level 2
// inside the same transaction unless routing collapses or dead-ends, in
// which case the entity is final APPROVED.
func (s *ApprovalService) Approve(ctx context.Context, actor *models.JWTClaims, approvalID string, req dto.DecisionRequest) (*models.Approval, error) {
	approval, owner, err := s.loadForDecision(ctx, actor, approvalID)
	if err != nil {
		return nil, err
	}

	decidedAt := s.now()
	var comment *string
	if c := strings.TrimSpace(req.Comment); c != "" {
		comment = &c
	}

	params := repository.DecideParams{
		ApprovalID: approval.ID,
		Decision:   models.ApprovalApproved,
		DeciderID:  actor.UserID,
		Comment:    comment,
		DecidedAt:  decidedAt,
		Entity:     approval.Entity(),
	}

	if approval.Level == 1 {
		hod, err := s.resolveLevelTwo(ctx, owner, actor.UserID)
		if err != nil {
			return nil, err
		}
		if hod != nil {
			params.NextApproval = &models.Approval{
				EntityType: approval.EntityType,
				EntityID:   approval.EntityID,
				Level:      2,
				ApproverID: hod.ID,
				Status:     models.ApprovalPending,
				CreatedAt:  decidedAt,
			}
			params.EntityStatus = models.StatusWaitingManager
		} else {
			// Level 2 collapsed onto the same approver or is unresolvable.
			params.EntityStatus = models.StatusApproved
		}
	} else {
		params.EntityStatus = models.StatusApproved
	}

	if err := s.applyDecision(ctx, params, actor, approval); err != nil {
		return nil, err
	}

	approval.Status = models.ApprovalApproved
	approval.DeciderID = &actor.UserID
	approval.Comment = comment
	approval.DecidedAt = &decidedAt

	if params.NextApproval != nil {
		next := params.NextApproval
		s.notify(func(n Notifier) { n.NotifyDecisionNeeded(next) })
	} else {
		s.notify(func(n Notifier) { n.NotifyDecided(approval, owner.ID) })
	}
	return approval, nil
}

// Reject records a negative decision. A comment is mandatory; rejection is
// terminal at any level and returns the entity to the owner for editing.
func (s *ApprovalService) Reject(ctx context.Context, actor *models.JWTClaims, approvalID string, req dto.DecisionRequest) (*models.Approval, error) {
	comment := strings.TrimSpace(req.Comment)
	if comment == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a comment is required when rejecting")
	}

	approval, owner, err := s.loadForDecision(ctx, actor, approvalID)
	if err != nil {
		return nil, err
	}

	decidedAt := s.now()
	params := repository.DecideParams{
		ApprovalID:      approval.ID,
		Decision:        models.ApprovalRejected,
		DeciderID:       actor.UserID,
		Comment:         &comment,
		DecidedAt:       decidedAt,
		Entity:          approval.Entity(),
		EntityStatus:    models.StatusRejected,
		RejectionReason: &comment,
	}

	if err := s.applyDecision(ctx, params, actor, approval); err != nil {
		return nil, err
	}

	approval.Status = models.ApprovalRejected
	approval.DeciderID = &actor.UserID
	approval.Comment = &comment
	approval.DecidedAt = &decidedAt

	s.notify(func(n Notifier) { n.NotifyDecided(approval, owner.ID) })
	return approval, nil
}

// List returns approvals addressed to or raised by the caller, pending
// first and overdue flagged.
func (s *ApprovalService) List(ctx context.Context, actor *models.JWTClaims, query dto.ApprovalQuery) ([]dto.ApprovalView, int, error) {
	filter := models.ApprovalFilter{
		Status:     query.Status,
		EntityType: query.EntityType,
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	if s.config.SLADays > 0 {
		filter.SLACutoff = s.now().Add(-time.Duration(s.config.SLADays) * 24 * time.Hour)
	}
	if query.Raised {
		filter.OwnerID = actor.UserID
	} else {
		filter.ApproverID = actor.UserID
	}

	approvals, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvals")
	}

	now := s.now()
	views := make([]dto.ApprovalView, len(approvals))
	for i, a := range approvals {
		views[i] = dto.ApprovalView{Approval: a, Overdue: a.Overdue(s.config.SLADays, now)}
	}
	return views, total, nil
}

// History returns the full decision trail for an entity.
func (s *ApprovalService) History(ctx context.Context, ref models.EntityRef) ([]models.Approval, error) {
	approvals, err := s.repo.ListByEntity(ctx, ref)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval history")
	}
	return approvals, nil
}

// loadForDecision fetches the approval and checks the actor may decide it.
func (s *ApprovalService) loadForDecision(ctx context.Context, actor *models.JWTClaims, approvalID string) (*models.Approval, *models.User, error) {
	approval, err := s.repo.GetByID(ctx, approvalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "approval not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval")
	}

	if approval.Status != models.ApprovalPending {
		return nil, nil, appErrors.Clone(appErrors.ErrAlreadyDecided, fmt.Sprintf("approval was already %s", strings.ToLower(string(approval.Status))))
	}

	isProxy := actor.Role == models.RoleAdmin && s.config.AdminProxy
	if approval.ApproverID != actor.UserID && !isProxy {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "approval is addressed to another user")
	}

	ownerID, err := s.entities.OwnerOf(ctx, approval.Entity())
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve entity owner")
	}
	owner, err := s.users.FindByID(ctx, ownerID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entity owner")
	}

	return approval, owner, nil
}

// applyDecision runs the transactional decide and records the audit entry.
func (s *ApprovalService) applyDecision(ctx context.Context, params repository.DecideParams, actor *models.JWTClaims, approval *models.Approval) error {
	if err := s.repo.Decide(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrAlreadyDecided, "approval was decided concurrently")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply decision")
	}

	action := models.AuditActionDecide
	if approval.ApproverID != actor.UserID {
		action = models.AuditActionProxyDecide
	}
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "approvals",
		ResourceID: &approval.ID,
		NewValues:  []byte(fmt.Sprintf(`{"decision":%q,"entity_type":%q,"entity_id":%q}`, params.Decision, approval.EntityType, approval.EntityID)),
	}); err != nil {
		s.logger.Warn("failed to record decision audit log", zap.Error(err))
	}
	return nil
}

// resolveLevelTwo finds the level-2 approver for an owner: the explicit org
// HOD first, then the first active MANAGER in the owner's department, then
// the configured fallback. Returns nil when nobody can decide, or when the
// resolved approver equals previousDecider (self-approval collapse).
func (s *ApprovalService) resolveLevelTwo(ctx context.Context, owner *models.User, previousDecider string) (*models.User, error) {
	var candidate *models.User

	if s.orgs != nil && owner.OrgUnitID != nil {
		unit, err := s.orgs.GetByID(ctx, *owner.OrgUnitID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve org unit")
		}
		if err == nil && unit.ManagerID != nil {
			head, err := s.users.FindByID(ctx, *unit.ManagerID)
			if err == nil && head.Active {
				candidate = head
			} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load org unit head")
			}
		}
	}

	if candidate == nil && owner.Department != "" {
		hod, err := s.users.FindActiveManagerInDepartment(ctx, owner.Department)
		if err == nil {
			candidate = hod
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve department manager")
		}
	}

	if candidate == nil && s.config.FallbackHODEmail != "" {
		fallback, err := s.users.FindActiveManagerByEmail(ctx, s.config.FallbackHODEmail)
		if err == nil {
			candidate = fallback
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve fallback approver")
		}
	}

	if candidate == nil {
		s.logger.Warn("no level-2 approver resolvable", zap.String("owner", owner.ID), zap.String("department", owner.Department))
		return nil, nil
	}
	if previousDecider != "" && candidate.ID == previousDecider {
		return nil, nil
	}
	if candidate.ID == owner.ID {
		return nil, nil
	}
	return candidate, nil
}

// finalizeUnreviewed marks an entity APPROVED when no approver exists.
func (s *ApprovalService) finalizeUnreviewed(ctx context.Context, ref models.EntityRef, owner *models.User) error {
	record := &models.Approval{
		EntityType: ref.Type,
		EntityID:   ref.ID,
		Level:      1,
		ApproverID: owner.ID,
		DeciderID:  &owner.ID,
		Status:     models.ApprovalApproved,
		CreatedAt:  s.now(),
	}
	decidedAt := s.now()
	record.DecidedAt = &decidedAt
	if err := s.repo.Create(ctx, record); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record auto approval")
	}

	if err := s.entities.UpdateEntityStatus(ctx, ref, models.StatusApproved, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize entity")
	}
	return nil
}

func (s *ApprovalService) notify(fn func(Notifier)) {
	if s.notifier == nil {
		return
	}
	fn(s.notifier)
}
