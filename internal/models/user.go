package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleStaff       UserRole = "STAFF"
	RoleLineManager UserRole = "LINE_MANAGER"
	RoleManager     UserRole = "MANAGER"
	RoleAdmin       UserRole = "ADMIN"
)

// User represents an application user stored in the users table.
// ManagerID points at the user's direct line manager and drives level-1
// approval routing; Department drives level-2 resolution.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	ManagerID    *string    `db:"manager_id" json:"manager_id,omitempty"`
	Department   string     `db:"department" json:"department"`
	OrgUnitID    *string    `db:"org_unit_id" json:"org_unit_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role       *UserRole
	Active     *bool
	Department string
	ManagerID  string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
