package dto

import "github.com/noah-isme/kpi-hub-api/internal/models"

// CreateUserRequest payload for admin user creation.
type CreateUserRequest struct {
	Email      string          `json:"email" validate:"required,email"`
	Password   string          `json:"password" validate:"required,min=6"`
	FullName   string          `json:"full_name" validate:"required"`
	Role       models.UserRole `json:"role" validate:"required"`
	ManagerID  *string         `json:"manager_id"`
	Department string          `json:"department"`
	OrgUnitID  *string         `json:"org_unit_id"`
}

// UpdateUserRequest payload for admin user updates.
type UpdateUserRequest struct {
	FullName   string          `json:"full_name" validate:"required"`
	Role       models.UserRole `json:"role" validate:"required"`
	ManagerID  *string         `json:"manager_id"`
	Department string          `json:"department"`
	OrgUnitID  *string         `json:"org_unit_id"`
	Active     *bool           `json:"active"`
}
