package models

import "time"

// OrgUnitKind is the level of an org unit in the hierarchy.
type OrgUnitKind string

const (
	OrgCompany    OrgUnitKind = "COMPANY"
	OrgDivision   OrgUnitKind = "DIVISION"
	OrgDepartment OrgUnitKind = "DEPARTMENT"
	OrgTeam       OrgUnitKind = "TEAM"
)

// OrgUnit is a hierarchical grouping of users. ManagerID names the unit's
// head, who is the first candidate when level-2 approvals are routed.
type OrgUnit struct {
	ID        string      `db:"id" json:"id"`
	Name      string      `db:"name" json:"name"`
	Kind      OrgUnitKind `db:"kind" json:"kind"`
	ParentID  *string     `db:"parent_id" json:"parent_id,omitempty"`
	ManagerID *string     `db:"manager_id" json:"manager_id,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// OrgUnitFilter captures filtering criteria for listing org units.
type OrgUnitFilter struct {
	Kind     *OrgUnitKind
	ParentID string
}
