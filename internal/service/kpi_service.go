package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/kpi-hub-api/internal/dto"
	"github.com/noah-isme/kpi-hub-api/internal/models"
	"github.com/noah-isme/kpi-hub-api/internal/scoring"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
)

type kpiRepository interface {
	Create(ctx context.Context, kpi *models.KpiDefinition) error
	GetByID(ctx context.Context, id string) (*models.KpiDefinition, error)
	Update(ctx context.Context, kpi *models.KpiDefinition) error
	UpdateStatus(ctx context.Context, id string, status models.WorkflowStatus, rejectionReason *string) error
	ListByOwnerAndCycle(ctx context.Context, ownerID, cycleID string) ([]models.KpiDefinition, error)
	List(ctx context.Context, filter models.KpiFilter) ([]models.KpiDefinition, int, error)
}

type kpiCycleRepository interface {
	GetByID(ctx context.Context, id string) (*models.Cycle, error)
}

type kpiAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// KpiRules carries the configurable validation bounds for a KPI set.
type KpiRules struct {
	MinKpis   int
	MaxKpis   int
	MinWeight float64
	MaxWeight float64
}

// KpiService provides goal definition and submission use cases.
type KpiService struct {
	repo      kpiRepository
	cycles    kpiCycleRepository
	audit     kpiAuditRepository
	approvals *ApprovalService
	validator *validator.Validate
	logger    *zap.Logger
	rules     KpiRules
}

// NewKpiService constructs a KpiService instance.
func NewKpiService(repo kpiRepository, cycles kpiCycleRepository, audit kpiAuditRepository, approvals *ApprovalService, validate *validator.Validate, logger *zap.Logger, rules KpiRules) *KpiService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &KpiService{repo: repo, cycles: cycles, audit: audit, approvals: approvals, validator: validate, logger: logger, rules: rules}
}

// Create drafts a new KPI goal for the owner.
func (s *KpiService) Create(ctx context.Context, ownerID string, req dto.CreateKpiRequest) (*models.KpiDefinition, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid kpi payload")
	}

	cycle, err := s.loadCycle(ctx, req.CycleID)
	if err != nil {
		return nil, err
	}
	if cycle.Status != models.CycleOpen || cycle.GoalsLocked {
		return nil, appErrors.Clone(appErrors.ErrGoalsLocked, "cycle is not open for goal setting")
	}

	kpi := &models.KpiDefinition{
		OwnerID:    ownerID,
		CycleID:    req.CycleID,
		Title:      req.Title,
		Type:       req.Type,
		Unit:       req.Unit,
		Target:     req.Target,
		Weight:     req.Weight,
		DataSource: req.DataSource,
		Status:     models.StatusDraft,
	}
	if err := s.applyScale(kpi, req.Type, req.Scale); err != nil {
		return nil, err
	}
	if errs := s.validateGoal(kpi); len(errs) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, errs[0]).WithDetails(errs...)
	}

	if err := s.repo.Create(ctx, kpi); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create kpi")
	}
	return kpi, nil
}

// Update edits a KPI while its status still permits editing.
func (s *KpiService) Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateKpiRequest) (*models.KpiDefinition, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid kpi payload")
	}

	kpi, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !kpi.Status.Editable() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("kpi in status %s cannot be edited", kpi.Status))
	}

	kpi.Title = req.Title
	kpi.Type = req.Type
	kpi.Unit = req.Unit
	kpi.Target = req.Target
	kpi.Weight = req.Weight
	kpi.DataSource = req.DataSource
	if err := s.applyScale(kpi, req.Type, req.Scale); err != nil {
		return nil, err
	}
	if errs := s.validateGoal(kpi); len(errs) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, errs[0]).WithDetails(errs...)
	}

	// Editing a rejected or change-requested goal pulls it back to draft.
	kpi.Status = models.StatusDraft
	kpi.RejectionReason = nil

	if err := s.repo.Update(ctx, kpi); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update kpi")
	}
	return kpi, nil
}

// Get loads a KPI and enforces ownership visibility.
func (s *KpiService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.KpiDefinition, error) {
	kpi, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "kpi not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load kpi")
	}
	if actor != nil && actor.Role == models.RoleStaff && kpi.OwnerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "kpi belongs to another user")
	}
	return kpi, nil
}

// List returns KPI definitions visible to the actor.
func (s *KpiService) List(ctx context.Context, actor *models.JWTClaims, query dto.KpiQuery) ([]models.KpiDefinition, int, error) {
	filter := models.KpiFilter{
		CycleID:  query.CycleID,
		OwnerID:  query.OwnerID,
		Status:   query.Status,
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if actor != nil && actor.Role == models.RoleStaff {
		filter.OwnerID = actor.UserID
		filter.OwnerIDs = nil
	}
	kpis, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list kpis")
	}
	return kpis, total, nil
}

// ValidateSet runs the set-level rules without submitting, for preview.
func (s *KpiService) ValidateSet(ctx context.Context, ownerID, cycleID string) (*dto.RuleReport, error) {
	kpis, err := s.repo.ListByOwnerAndCycle(ctx, ownerID, cycleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load kpi set")
	}
	report := s.checkSet(kpis)
	return &report, nil
}

// Submit sends the owner's complete draft set for a cycle into approval.
// All rules are evaluated together and every violation is reported.
func (s *KpiService) Submit(ctx context.Context, owner *models.User, req dto.SubmitKpisRequest) (*dto.RuleReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submit payload")
	}

	cycle, err := s.loadCycle(ctx, req.CycleID)
	if err != nil {
		return nil, err
	}
	if cycle.Status != models.CycleOpen || cycle.GoalsLocked {
		return nil, appErrors.Clone(appErrors.ErrGoalsLocked, "cycle is not open for goal submission")
	}

	kpis, err := s.repo.ListByOwnerAndCycle(ctx, owner.ID, req.CycleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load kpi set")
	}

	var submittable []models.KpiDefinition
	for _, kpi := range kpis {
		if kpi.Status.Editable() {
			submittable = append(submittable, kpi)
		} else if kpi.Status.Pending() {
			return nil, appErrors.Clone(appErrors.ErrConflict, "kpi set is already awaiting approval")
		}
	}

	report := s.checkSet(submittable)
	if !report.Valid {
		return &report, appErrors.Clone(appErrors.ErrInvalidWeights, "kpi set failed validation").WithDetails(report.Errors...)
	}

	for i := range submittable {
		kpi := &submittable[i]
		next, ok := models.NextStatus(kpi.Status, models.EventSubmit)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("kpi %s cannot be submitted from %s", kpi.ID, kpi.Status))
		}
		if err := s.repo.UpdateStatus(ctx, kpi.ID, next, nil); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit kpi")
		}
		if err := s.approvals.Raise(ctx, models.KpiRef(kpi.ID), owner); err != nil {
			return nil, err
		}
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &owner.ID,
		Action:     models.AuditActionKpiSubmit,
		Resource:   "kpis",
		ResourceID: &req.CycleID,
		NewValues:  []byte(fmt.Sprintf(`{"submitted":%d}`, len(submittable))),
	}); err != nil {
		s.logger.Warn("failed to record kpi submit audit log", zap.Error(err))
	}

	return &report, nil
}

// RequestChange moves an approved KPI back into editing. Admin only.
func (s *KpiService) RequestChange(ctx context.Context, actor *models.JWTClaims, id string, req dto.ChangeRequestPayload) (*models.KpiDefinition, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "change reason is required")
	}

	kpi, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	next, ok := models.NextStatus(kpi.Status, models.EventRequestChange)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("change cannot be requested from status %s", kpi.Status))
	}

	reason := req.Reason
	if err := s.repo.UpdateStatus(ctx, id, next, &reason); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to request change")
	}
	kpi.Status = next
	kpi.RejectionReason = &reason

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionChangeRequest,
		Resource:   "kpis",
		ResourceID: &id,
		NewValues:  []byte(fmt.Sprintf(`{"reason":%q}`, reason)),
	}); err != nil {
		s.logger.Warn("failed to record change request audit log", zap.Error(err))
	}

	return kpi, nil
}

func (s *KpiService) loadCycle(ctx context.Context, cycleID string) (*models.Cycle, error) {
	cycle, err := s.cycles.GetByID(ctx, cycleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "cycle not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cycle")
	}
	return cycle, nil
}

func (s *KpiService) applyScale(kpi *models.KpiDefinition, kpiType models.KpiType, scale []models.MilestoneStep) error {
	if kpiType != models.KpiTypeMilestone {
		kpi.ScaleJSON = nil
		return nil
	}
	if err := scoring.ValidateScale(scale); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if err := kpi.SetScale(scale); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode milestone scale")
	}
	return nil
}

// validateGoal checks one KPI in isolation.
func (s *KpiService) validateGoal(kpi *models.KpiDefinition) []string {
	var errs []string
	if strings.TrimSpace(kpi.Title) == "" {
		errs = append(errs, "every kpi requires a title")
	}
	if strings.TrimSpace(kpi.Unit) == "" {
		errs = append(errs, fmt.Sprintf("kpi %q requires a unit of measure", kpi.Title))
	}
	if kpi.Weight < s.rules.MinWeight || kpi.Weight > s.rules.MaxWeight {
		errs = append(errs, fmt.Sprintf("weight of %q must be between %.0f%% and %.0f%%, got %.1f%%", kpi.Title, s.rules.MinWeight, s.rules.MaxWeight, kpi.Weight))
	}
	switch kpi.Type {
	case models.KpiTypeHigherBetter, models.KpiTypeLowerBetter:
		if kpi.Target <= 0 {
			errs = append(errs, fmt.Sprintf("target of %q must be positive", kpi.Title))
		}
	case models.KpiTypeMilestone:
		if len(kpi.ScaleJSON) == 0 {
			errs = append(errs, fmt.Sprintf("milestone kpi %q requires a scoring scale", kpi.Title))
		}
	case models.KpiTypeBoolean, models.KpiTypeBehavior:
	default:
		errs = append(errs, fmt.Sprintf("kpi %q has unknown type %s", kpi.Title, kpi.Type))
	}
	return errs
}

// Thresholds for the advisory checks. Neither blocks a submission.
const (
	shortTitleLength = 10
	unbalancedWeight = 35.0
)

// checkSet evaluates every set-level rule and reports all violations,
// not just the first one. Warnings never flip Valid.
func (s *KpiService) checkSet(kpis []models.KpiDefinition) dto.RuleReport {
	report := dto.RuleReport{Valid: true}

	if len(kpis) < s.rules.MinKpis || len(kpis) > s.rules.MaxKpis {
		report.Errors = append(report.Errors, fmt.Sprintf("a set must contain between %d and %d KPIs, got %d", s.rules.MinKpis, s.rules.MaxKpis, len(kpis)))
	}

	var totalWeight float64
	seenTitles := make(map[string]string, len(kpis))
	for i := range kpis {
		kpi := &kpis[i]
		totalWeight += kpi.Weight
		report.Errors = append(report.Errors, s.validateGoal(kpi)...)

		title := strings.TrimSpace(kpi.Title)
		key := strings.ToLower(title)
		if first, dup := seenTitles[key]; dup && key != "" {
			report.Errors = append(report.Errors, fmt.Sprintf("titles %q and %q are duplicates, every kpi needs a distinct title", first, kpi.Title))
		} else if key != "" {
			seenTitles[key] = kpi.Title
		}

		if strings.TrimSpace(kpi.DataSource) == "" {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%q names no data source", kpi.Title))
		}
		if len(title) > 0 && len(title) < shortTitleLength {
			report.Warnings = append(report.Warnings, fmt.Sprintf("title %q is very short, a fuller description helps approvers", kpi.Title))
		}
		if kpi.Weight > unbalancedWeight {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%q carries %.1f%% of the total weight, the set may be unbalanced", kpi.Title, kpi.Weight))
		}
	}

	if len(kpis) > 0 && totalWeight != 100 {
		report.Errors = append(report.Errors, fmt.Sprintf("weights must total 100%%, got %.1f%%", totalWeight))
	}

	report.Valid = len(report.Errors) == 0
	return report
}
