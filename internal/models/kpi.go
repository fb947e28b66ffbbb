package models

import (
	"encoding/json"
	"time"
)

// KpiType classifies how an actual value is scored against the target.
type KpiType string

const (
	KpiTypeHigherBetter KpiType = "HIGHER_BETTER"
	KpiTypeLowerBetter  KpiType = "LOWER_BETTER"
	KpiTypeMilestone    KpiType = "MILESTONE"
	KpiTypeBoolean      KpiType = "BOOLEAN"
	KpiTypeBehavior     KpiType = "BEHAVIOR"
)

// MilestoneStep pairs an achievement threshold with the score it unlocks.
// Steps are ordered by threshold; score levels must strictly increase.
type MilestoneStep struct {
	Threshold float64 `json:"threshold"`
	Score     float64 `json:"score"`
}

// KpiDefinition is a goal record owned by a staff member for one cycle.
// Rows are never hard-deleted; lifecycle is status-driven.
type KpiDefinition struct {
	ID              string         `db:"id" json:"id"`
	OwnerID         string         `db:"owner_id" json:"owner_id"`
	CycleID         string         `db:"cycle_id" json:"cycle_id"`
	Title           string         `db:"title" json:"title"`
	Type            KpiType        `db:"type" json:"type"`
	Unit            string         `db:"unit" json:"unit"`
	Target          float64        `db:"target" json:"target"`
	Weight          float64        `db:"weight" json:"weight"`
	DataSource      string         `db:"data_source" json:"data_source,omitempty"`
	ScaleJSON       []byte         `db:"scale" json:"-"`
	Status          WorkflowStatus `db:"status" json:"status"`
	RejectionReason *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// Scale decodes the milestone scale stored as JSON.
func (k *KpiDefinition) Scale() ([]MilestoneStep, error) {
	if len(k.ScaleJSON) == 0 {
		return nil, nil
	}
	var steps []MilestoneStep
	if err := json.Unmarshal(k.ScaleJSON, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// SetScale encodes the milestone scale for persistence.
func (k *KpiDefinition) SetScale(steps []MilestoneStep) error {
	if len(steps) == 0 {
		k.ScaleJSON = nil
		return nil
	}
	raw, err := json.Marshal(steps)
	if err != nil {
		return err
	}
	k.ScaleJSON = raw
	return nil
}

// KpiFilter captures filtering criteria for listing KPI definitions.
type KpiFilter struct {
	OwnerID    string
	OwnerIDs   []string
	CycleID    string
	Department string
	Status     []WorkflowStatus
	Page       int
	PageSize   int
}
