package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/kpi-hub-api/internal/dto"
	"github.com/noah-isme/kpi-hub-api/internal/models"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
)

type orgUnitRepository interface {
	Create(ctx context.Context, unit *models.OrgUnit) error
	GetByID(ctx context.Context, id string) (*models.OrgUnit, error)
	List(ctx context.Context, filter models.OrgUnitFilter) ([]models.OrgUnit, error)
	Update(ctx context.Context, unit *models.OrgUnit) error
	HasChildren(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// OrgUnitService maintains the display hierarchy. Approval routing reads
// the user manager chain, so tree edits never affect open approvals.
type OrgUnitService struct {
	repo      orgUnitRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewOrgUnitService constructs an OrgUnitService instance.
func NewOrgUnitService(repo orgUnitRepository, validate *validator.Validate, logger *zap.Logger) *OrgUnitService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &OrgUnitService{repo: repo, validator: validate, logger: logger}
}

// Create adds an org unit to the tree.
func (s *OrgUnitService) Create(ctx context.Context, req dto.CreateOrgUnitRequest) (*models.OrgUnit, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid org unit payload")
	}
	if req.ParentID != nil {
		if _, err := s.Get(ctx, *req.ParentID); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "parent org unit not found")
		}
	}

	unit := &models.OrgUnit{
		Name:      req.Name,
		Kind:      req.Kind,
		ParentID:  req.ParentID,
		ManagerID: req.ManagerID,
	}
	if err := s.repo.Create(ctx, unit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create org unit")
	}
	return unit, nil
}

// Get returns one org unit by ID.
func (s *OrgUnitService) Get(ctx context.Context, id string) (*models.OrgUnit, error) {
	unit, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "org unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load org unit")
	}
	return unit, nil
}

// List returns org units matching the filter.
func (s *OrgUnitService) List(ctx context.Context, filter models.OrgUnitFilter) ([]models.OrgUnit, error) {
	units, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list org units")
	}
	return units, nil
}

// Update renames or re-parents an org unit.
func (s *OrgUnitService) Update(ctx context.Context, id string, req dto.UpdateOrgUnitRequest) (*models.OrgUnit, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid org unit payload")
	}

	unit, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.ParentID != nil {
		if *req.ParentID == id {
			return nil, appErrors.Clone(appErrors.ErrValidation, "an org unit cannot be its own parent")
		}
		if _, err := s.Get(ctx, *req.ParentID); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "parent org unit not found")
		}
	}

	unit.Name = req.Name
	unit.ParentID = req.ParentID
	unit.ManagerID = req.ManagerID
	if err := s.repo.Update(ctx, unit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update org unit")
	}
	return unit, nil
}

// Delete removes a leaf org unit.
func (s *OrgUnitService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	hasChildren, err := s.repo.HasChildren(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check children")
	}
	if hasChildren {
		return appErrors.Clone(appErrors.ErrConflict, "org unit still has child units")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete org unit")
	}
	return nil
}
