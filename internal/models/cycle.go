package models

import "time"

// CycleStatus is the lifecycle of a performance cycle.
type CycleStatus string

const (
	CycleOpen   CycleStatus = "OPEN"
	CycleClosed CycleStatus = "CLOSED"
)

// Cycle is a performance period that KPI sets are defined against.
type Cycle struct {
	ID          string      `db:"id" json:"id"`
	Name        string      `db:"name" json:"name"`
	StartDate   time.Time   `db:"start_date" json:"start_date"`
	EndDate     time.Time   `db:"end_date" json:"end_date"`
	Status      CycleStatus `db:"status" json:"status"`
	GoalsLocked bool        `db:"goals_locked" json:"goals_locked"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}
