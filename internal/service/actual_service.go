package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/kpi-hub-api/internal/dto"
	"github.com/noah-isme/kpi-hub-api/internal/models"
	"github.com/noah-isme/kpi-hub-api/internal/scoring"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
)

type actualRepository interface {
	Create(ctx context.Context, actual *models.KpiActual) error
	GetByID(ctx context.Context, id string) (*models.KpiActual, error)
	Update(ctx context.Context, actual *models.KpiActual) error
	ExistsNonDraft(ctx context.Context, kpiID, period string) (bool, error)
	List(ctx context.Context, filter models.ActualFilter) ([]models.KpiActual, int, error)
}

type actualKpiReader interface {
	GetByID(ctx context.Context, id string) (*models.KpiDefinition, error)
}

// ActualService provides result reporting use cases. Scores are computed on
// submission and frozen on the row; later target edits do not rescore.
type ActualService struct {
	repo      actualRepository
	kpis      actualKpiReader
	audit     kpiAuditRepository
	approvals *ApprovalService
	validator *validator.Validate
	logger    *zap.Logger
	cap       float64
}

// NewActualService constructs an ActualService instance.
func NewActualService(repo actualRepository, kpis actualKpiReader, audit kpiAuditRepository, approvals *ApprovalService, validate *validator.Validate, logger *zap.Logger, achievementCap float64) *ActualService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ActualService{repo: repo, kpis: kpis, audit: audit, approvals: approvals, validator: validate, logger: logger, cap: achievementCap}
}

// Submit reports an actual value for a KPI period and raises its approval.
func (s *ActualService) Submit(ctx context.Context, owner *models.User, req dto.SubmitActualRequest) (*models.KpiActual, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid actual payload")
	}
	if !models.ValidPeriod(req.Period) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "period must use the YYYY-MM form")
	}

	kpi, err := s.kpis.GetByID(ctx, req.KpiID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "kpi not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load kpi")
	}
	if kpi.OwnerID != owner.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "kpi belongs to another user")
	}
	if kpi.Status != models.StatusApproved && kpi.Status != models.StatusLockedGoals {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("actuals can only be reported against approved goals, kpi is %s", kpi.Status))
	}

	exists, err := s.repo.ExistsNonDraft(ctx, req.KpiID, req.Period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check for duplicates")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateActual, fmt.Sprintf("an actual for period %s is already submitted", req.Period))
	}

	scale, err := kpi.Scale()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode milestone scale")
	}

	result := scoring.Evaluate(kpi.Type, req.ActualValue, kpi.Target, scale, s.cap)
	if result.Band == scoring.BandInvalid {
		return nil, appErrors.Clone(appErrors.ErrValidation, result.Explanation)
	}

	actual := &models.KpiActual{
		KpiID:        kpi.ID,
		OwnerID:      owner.ID,
		ActualValue:  req.ActualValue,
		Percentage:   result.Percentage,
		Score:        result.Score,
		Band:         result.Band,
		Status:       models.StatusWaitingLineMgr,
		Period:       req.Period,
		Verification: models.VerificationPending,
	}
	if err := s.repo.Create(ctx, actual); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create actual")
	}

	if err := s.approvals.Raise(ctx, models.ActualRef(actual.ID), owner); err != nil {
		return nil, err
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &owner.ID,
		Action:     models.AuditActionActualSubmit,
		Resource:   "actuals",
		ResourceID: &actual.ID,
		NewValues:  []byte(fmt.Sprintf(`{"kpi_id":%q,"period":%q,"score":%.2f}`, kpi.ID, req.Period, result.Score)),
	}); err != nil {
		s.logger.Warn("failed to record actual submit audit log", zap.Error(err))
	}

	return actual, nil
}

// Get loads an actual and enforces ownership visibility.
func (s *ActualService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.KpiActual, error) {
	actual, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "actual not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actual")
	}
	if actor != nil && actor.Role == models.RoleStaff && actual.OwnerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "actual belongs to another user")
	}
	return actual, nil
}

// List returns actuals visible to the actor.
func (s *ActualService) List(ctx context.Context, actor *models.JWTClaims, query dto.ActualQuery) ([]models.KpiActual, int, error) {
	filter := models.ActualFilter{
		KpiID:    query.KpiID,
		Period:   query.Period,
		Status:   query.Status,
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if actor != nil && actor.Role == models.RoleStaff {
		filter.OwnerID = actor.UserID
	}
	actuals, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list actuals")
	}
	return actuals, total, nil
}

// SetVerification stores the evidence gatekeeper verdict on an actual.
func (s *ActualService) SetVerification(ctx context.Context, actualID string, verdict models.AIVerification) error {
	actual, err := s.repo.GetByID(ctx, actualID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "actual not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actual")
	}
	actual.Verification = verdict
	if err := s.repo.Update(ctx, actual); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update verification")
	}
	return nil
}

// Preview scores a value against a KPI without persisting anything.
func (s *ActualService) Preview(ctx context.Context, actor *models.JWTClaims, kpiID string, value float64) (*scoring.Result, error) {
	kpi, err := s.kpis.GetByID(ctx, kpiID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "kpi not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load kpi")
	}
	if actor != nil && actor.Role == models.RoleStaff && kpi.OwnerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "kpi belongs to another user")
	}
	scale, err := kpi.Scale()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode milestone scale")
	}
	result := scoring.Evaluate(kpi.Type, value, kpi.Target, scale, s.cap)
	return &result, nil
}
