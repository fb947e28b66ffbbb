package dto

import "time"

// DashboardSummary aggregates workflow state for the caller's scope.
type DashboardSummary struct {
	CycleID          string         `json:"cycle_id,omitempty"`
	KpisByStatus     map[string]int `json:"kpis_by_status"`
	ActualsByStatus  map[string]int `json:"actuals_by_status"`
	AverageScore     float64        `json:"average_score"`
	PendingApprovals int            `json:"pending_approvals"`
	OverdueApprovals int            `json:"overdue_approvals"`
	GeneratedAt      time.Time      `json:"generated_at"`
}
