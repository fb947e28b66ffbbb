package dto

import "github.com/noah-isme/kpi-hub-api/internal/models"

// DecisionRequest carries the approver's comment for approve/reject calls.
// Comment is mandatory on reject, optional on approve.
type DecisionRequest struct {
	Comment string `json:"comment"`
}

// ApprovalQuery mirrors supported listing filters.
type ApprovalQuery struct {
	Status     []models.ApprovalStatus
	EntityType models.EntityType
	Raised     bool // list approvals for entities the caller owns instead of addressed ones
	Page       int
	PageSize   int
}

// ApprovalView decorates an approval row with display-only workflow state.
type ApprovalView struct {
	models.Approval
	Overdue bool `json:"overdue"`
}
