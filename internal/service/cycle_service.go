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
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
)

type cycleRepository interface {
	Create(ctx context.Context, cycle *models.Cycle) error
	GetByID(ctx context.Context, id string) (*models.Cycle, error)
	FindOpen(ctx context.Context) (*models.Cycle, error)
	List(ctx context.Context) ([]models.Cycle, error)
	Close(ctx context.Context, id string) error
}

type cycleKpiLocker interface {
	LockApprovedByCycle(ctx context.Context, cycleID string) (int64, error)
}

// CycleService provides performance cycle administration.
type CycleService struct {
	repo      cycleRepository
	kpis      cycleKpiLocker
	audit     kpiAuditRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCycleService constructs a CycleService instance.
func NewCycleService(repo cycleRepository, kpis cycleKpiLocker, audit kpiAuditRepository, validate *validator.Validate, logger *zap.Logger) *CycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CycleService{repo: repo, kpis: kpis, audit: audit, validator: validate, logger: logger}
}

// Create opens a new performance cycle.
func (s *CycleService) Create(ctx context.Context, req dto.CreateCycleRequest) (*models.Cycle, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cycle payload")
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must be after start date")
	}

	cycle := &models.Cycle{
		Name:      req.Name,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Status:    models.CycleOpen,
	}
	if err := s.repo.Create(ctx, cycle); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create cycle")
	}
	return cycle, nil
}

// Get returns one cycle by ID.
func (s *CycleService) Get(ctx context.Context, id string) (*models.Cycle, error) {
	cycle, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "cycle not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cycle")
	}
	return cycle, nil
}

// Current returns the open cycle, if one exists.
func (s *CycleService) Current(ctx context.Context) (*models.Cycle, error) {
	cycle, err := s.repo.FindOpen(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no open cycle")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load open cycle")
	}
	return cycle, nil
}

// List returns all cycles.
func (s *CycleService) List(ctx context.Context) ([]models.Cycle, error) {
	cycles, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cycles")
	}
	return cycles, nil
}

// Close ends a cycle and freezes every approved goal in it.
func (s *CycleService) Close(ctx context.Context, actorID, id string) (*models.Cycle, error) {
	cycle, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cycle.Status == models.CycleClosed {
		return nil, appErrors.Clone(appErrors.ErrConflict, "cycle is already closed")
	}

	locked, err := s.kpis.LockApprovedByCycle(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock cycle goals")
	}
	if err := s.repo.Close(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close cycle")
	}

	cycle.Status = models.CycleClosed
	cycle.GoalsLocked = true

	s.logger.Info("cycle closed", zap.String("cycle", id), zap.Int64("goals_locked", locked))
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionCycleClose,
		Resource:   "cycles",
		ResourceID: &id,
		NewValues:  []byte(fmt.Sprintf(`{"goals_locked":%d}`, locked)),
	}); err != nil {
		s.logger.Warn("failed to record cycle close audit log", zap.Error(err))
	}

	return cycle, nil
}
