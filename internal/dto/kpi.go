package dto

import "github.com/noah-isme/kpi-hub-api/internal/models"

// CreateKpiRequest payload for drafting a KPI goal.
type CreateKpiRequest struct {
	CycleID    string                 `json:"cycle_id" validate:"required"`
	Title      string                 `json:"title" validate:"required"`
	Type       models.KpiType         `json:"type" validate:"required"`
	Unit       string                 `json:"unit" validate:"required"`
	Target     float64                `json:"target"`
	Weight     float64                `json:"weight" validate:"required"`
	DataSource string                 `json:"data_source"`
	Scale      []models.MilestoneStep `json:"scale,omitempty"`
}

// UpdateKpiRequest payload for editing a KPI while it is still editable.
type UpdateKpiRequest struct {
	Title      string                 `json:"title" validate:"required"`
	Type       models.KpiType         `json:"type" validate:"required"`
	Unit       string                 `json:"unit" validate:"required"`
	Target     float64                `json:"target"`
	Weight     float64                `json:"weight" validate:"required"`
	DataSource string                 `json:"data_source"`
	Scale      []models.MilestoneStep `json:"scale,omitempty"`
}

// SubmitKpisRequest sends a user's full KPI set for a cycle into approval.
type SubmitKpisRequest struct {
	CycleID string `json:"cycle_id" validate:"required"`
}

// ChangeRequestPayload is the admin-initiated side branch back to edit.
type ChangeRequestPayload struct {
	Reason string `json:"reason" validate:"required"`
}

// KpiQuery mirrors supported listing filters.
type KpiQuery struct {
	CycleID string
	OwnerID string
	Status  []models.WorkflowStatus
	Page    int
	PageSize int
}

// RuleReport is the collect-all validation outcome for a KPI set.
type RuleReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
