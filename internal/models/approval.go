package models

import "time"

// EntityType discriminates what an approval row addresses.
type EntityType string

const (
	EntityKpi    EntityType = "KPI"
	EntityActual EntityType = "ACTUAL"
)

// EntityRef is the tagged reference stored as (entity_type, entity_id).
type EntityRef struct {
	Type EntityType `json:"type"`
	ID   string     `json:"id"`
}

// KpiRef builds a reference to a KPI definition.
func KpiRef(id string) EntityRef { return EntityRef{Type: EntityKpi, ID: id} }

// ActualRef builds a reference to a KPI actual.
func ActualRef(id string) EntityRef { return EntityRef{Type: EntityActual, ID: id} }

// ApprovalStatus is the decision state of one approval level.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Approval is an addressed decision request. One entity accumulates one row
// per level over its lifetime; at most one PENDING row per (entity, level).
type Approval struct {
	ID         string         `db:"id" json:"id"`
	EntityType EntityType     `db:"entity_type" json:"entity_type"`
	EntityID   string         `db:"entity_id" json:"entity_id"`
	Level      int            `db:"level" json:"level"`
	ApproverID string         `db:"approver_id" json:"approver_id"`
	DeciderID  *string        `db:"decider_id" json:"decider_id,omitempty"`
	Status     ApprovalStatus `db:"status" json:"status"`
	Comment    *string        `db:"comment" json:"comment,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	DecidedAt  *time.Time     `db:"decided_at" json:"decided_at,omitempty"`
}

// Entity returns the tagged reference for this approval.
func (a *Approval) Entity() EntityRef {
	return EntityRef{Type: a.EntityType, ID: a.EntityID}
}

// Overdue reports whether a pending approval has exceeded the SLA.
func (a *Approval) Overdue(slaDays int, now time.Time) bool {
	if a.Status != ApprovalPending || slaDays <= 0 {
		return false
	}
	return now.Sub(a.CreatedAt) > time.Duration(slaDays)*24*time.Hour
}

// ApprovalFilter captures filtering criteria for listing approvals.
// SLACutoff, when set, marks pending rows created before it as overdue
// for ordering purposes.
type ApprovalFilter struct {
	ApproverID string
	OwnerID    string
	Status     []ApprovalStatus
	EntityType EntityType
	SLACutoff  time.Time
	Page       int
	PageSize   int
}
