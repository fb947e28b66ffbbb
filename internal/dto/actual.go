package dto

import "github.com/noah-isme/kpi-hub-api/internal/models"

// SubmitActualRequest reports a result for one KPI in a period.
type SubmitActualRequest struct {
	KpiID       string  `json:"kpi_id" validate:"required"`
	ActualValue float64 `json:"actual_value"`
	Period      string  `json:"period" validate:"required"`
}

// ActualQuery mirrors supported listing filters.
type ActualQuery struct {
	KpiID    string
	Period   string
	Status   []models.WorkflowStatus
	Page     int
	PageSize int
}

// VerificationReport is the SmartValidator verdict attached to an actual.
type VerificationReport struct {
	Passed        bool     `json:"passed"`
	Discrepancies []string `json:"discrepancies,omitempty"`
	ExtractedText string   `json:"extracted_text,omitempty"`
}
