package models

import (
	"regexp"
	"time"
)

// AIVerification reflects the evidence gatekeeper's verdict on an actual.
type AIVerification string

const (
	VerificationPending AIVerification = "PENDING"
	VerificationPassed  AIVerification = "PASSED"
	VerificationFlagged AIVerification = "FLAGGED"
	VerificationSkipped AIVerification = "SKIPPED"
)

// KpiActual is a reported result for one KPI definition in a period.
type KpiActual struct {
	ID              string         `db:"id" json:"id"`
	KpiID           string         `db:"kpi_id" json:"kpi_id"`
	OwnerID         string         `db:"owner_id" json:"owner_id"`
	ActualValue     float64        `db:"actual_value" json:"actual_value"`
	Percentage      float64        `db:"percentage" json:"percentage"`
	Score           float64        `db:"score" json:"score"`
	Band            string         `db:"band" json:"band"`
	Status          WorkflowStatus `db:"status" json:"status"`
	Period          string         `db:"period" json:"period"`
	Verification    AIVerification `db:"ai_verification" json:"ai_verification"`
	RejectionReason *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// ActualFilter captures filtering criteria for listing actuals.
type ActualFilter struct {
	KpiID    string
	OwnerID  string
	OwnerIDs []string
	Period   string
	Status   []WorkflowStatus
	Page     int
	PageSize int
}

var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ValidPeriod reports whether the period uses the YYYY-MM form.
func ValidPeriod(period string) bool {
	return periodPattern.MatchString(period)
}
