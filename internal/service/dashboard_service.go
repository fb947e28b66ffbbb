package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/kpi-hub-api/internal/dto"
	"github.com/noah-isme/kpi-hub-api/internal/models"
	appErrors "github.com/noah-isme/kpi-hub-api/pkg/errors"
)

type dashboardKpiRepository interface {
	CountByStatus(ctx context.Context, ownerIDs []string, cycleID string) (map[string]int, error)
	ScoreSummary(ctx context.Context, ownerIDs []string, cycleID string) (float64, error)
}

type dashboardActualRepository interface {
	CountByStatus(ctx context.Context, ownerIDs []string) (map[string]int, error)
}

type dashboardApprovalRepository interface {
	CountPending(ctx context.Context, approverID string, slaCutoff time.Time) (pending int, overdue int, err error)
}

type dashboardUserRepository interface {
	ListDirectReports(ctx context.Context, managerID string) ([]string, error)
	ListDepartmentMembers(ctx context.Context, department string) ([]string, error)
	ListActiveIDs(ctx context.Context) ([]string, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// DashboardService aggregates workflow state scoped to the caller's role:
// staff see their own records, line managers their reports, managers their
// department, admins everything.
type DashboardService struct {
	kpis      dashboardKpiRepository
	actuals   dashboardActualRepository
	approvals dashboardApprovalRepository
	users     dashboardUserRepository
	cache     dashboardCache
	metrics   *MetricsService
	logger    *zap.Logger
	slaDays   int
	cacheTTL  time.Duration
}

// NewDashboardService constructs a DashboardService instance.
func NewDashboardService(kpis dashboardKpiRepository, actuals dashboardActualRepository, approvals dashboardApprovalRepository, users dashboardUserRepository, cache dashboardCache, metrics *MetricsService, logger *zap.Logger, slaDays int, cacheTTL time.Duration) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &DashboardService{kpis: kpis, actuals: actuals, approvals: approvals, users: users, cache: cache, metrics: metrics, logger: logger, slaDays: slaDays, cacheTTL: cacheTTL}
}

// Summary builds the dashboard payload for the caller's scope. The second
// return value reports whether the payload came from cache.
func (s *DashboardService) Summary(ctx context.Context, actor *models.User, cycleID string) (*dto.DashboardSummary, bool, error) {
	cacheKey := fmt.Sprintf("dashboard:%s:%s", actor.ID, cycleID)
	if s.cache != nil {
		var cached dto.DashboardSummary
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, true, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
	}

	ownerIDs, err := s.scope(ctx, actor)
	if err != nil {
		return nil, false, err
	}

	kpiCounts, err := s.kpis.CountByStatus(ctx, ownerIDs, cycleID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count kpis")
	}
	actualCounts, err := s.actuals.CountByStatus(ctx, ownerIDs)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count actuals")
	}
	avgScore, err := s.kpis.ScoreSummary(ctx, ownerIDs, cycleID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to average scores")
	}

	slaCutoff := time.Now().UTC().Add(-time.Duration(s.slaDays) * 24 * time.Hour)
	pending, overdue, err := s.approvals.CountPending(ctx, actor.ID, slaCutoff)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count approvals")
	}

	summary := &dto.DashboardSummary{
		CycleID:          cycleID,
		KpisByStatus:     kpiCounts,
		ActualsByStatus:  actualCounts,
		AverageScore:     avgScore,
		PendingApprovals: pending,
		OverdueApprovals: overdue,
		GeneratedAt:      time.Now().UTC(),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, summary, s.cacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return summary, false, nil
}

// Invalidate drops cached summaries for the given users, for example after
// a decision changes their pending counts.
func (s *DashboardService) Invalidate(ctx context.Context, userIDs ...string) {
	if s.cache == nil {
		return
	}
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("dashboard:%s:*", id)); err != nil {
			s.logger.Warn("dashboard cache invalidation failed", zap.String("user", id), zap.Error(err))
		}
	}
}

// scope resolves which users' records the actor may aggregate over.
func (s *DashboardService) scope(ctx context.Context, actor *models.User) ([]string, error) {
	switch actor.Role {
	case models.RoleStaff:
		return []string{actor.ID}, nil
	case models.RoleLineManager:
		reports, err := s.users.ListDirectReports(ctx, actor.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
		}
		return append(reports, actor.ID), nil
	case models.RoleManager:
		members, err := s.users.ListDepartmentMembers(ctx, actor.Department)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list department")
		}
		if len(members) == 0 {
			members = []string{actor.ID}
		}
		return members, nil
	case models.RoleAdmin:
		all, err := s.users.ListActiveIDs(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
		}
		if len(all) == 0 {
			all = []string{actor.ID}
		}
		return all, nil
	default:
		return []string{actor.ID}, nil
	}
}
