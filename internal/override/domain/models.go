// Package domain models the manual override workflow: a bounded deviation
// from a calculated amount, optionally gated behind human approval.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type OverrideStatus string

const (
	StatusProposed OverrideStatus = "proposed"
	StatusApproved OverrideStatus = "approved"
	StatusRejected OverrideStatus = "rejected"
	StatusApplied  OverrideStatus = "applied"
)

// OverrideRequest tracks one override attempt against a recorded rule
// application. Proposed requests wait for a human decision; rejected is
// terminal; approved requests become applied once the ledger row is
// updated. Immediate overrides (no approval required) are written directly
// as applied so the attempt still shows up in the trail.
type OverrideRequest struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	AgencyID          snowflake.ID   `json:"agency_id" gorm:"column:agency_id;not null;index"`
	RuleApplicationID snowflake.ID   `json:"rule_application_id" gorm:"not null;index"`
	RequestedAmount   float64        `json:"requested_amount" gorm:"not null"`
	CalculatedAmount  float64        `json:"calculated_amount" gorm:"not null"`
	Reason            string         `json:"reason" gorm:"type:text;not null"`
	RequestedBy       string         `json:"requested_by" gorm:"type:text;not null"`
	Status            OverrideStatus `json:"status" gorm:"type:text;not null;index"`
	DecidedBy         *string        `json:"decided_by,omitempty" gorm:"type:text"`
	DecidedAt         *time.Time     `json:"decided_at,omitempty"`
	DecisionNote      *string        `json:"decision_note,omitempty" gorm:"type:text"`
	CreatedAt         time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (OverrideRequest) TableName() string { return "override_requests" }

// Pending reports whether the request still awaits a decision.
func (r *OverrideRequest) Pending() bool { return r.Status == StatusProposed }
