package dto

import "github.com/noah-isme/kpi-hub-api/internal/models"

// CreateOrgUnitRequest payload for adding an org unit.
type CreateOrgUnitRequest struct {
	Name      string             `json:"name" validate:"required"`
	Kind      models.OrgUnitKind `json:"kind" validate:"required"`
	ParentID  *string            `json:"parent_id"`
	ManagerID *string            `json:"manager_id"`
}

// UpdateOrgUnitRequest payload for renaming or re-parenting an org unit.
type UpdateOrgUnitRequest struct {
	Name      string  `json:"name" validate:"required"`
	ParentID  *string `json:"parent_id"`
	ManagerID *string `json:"manager_id"`
}
