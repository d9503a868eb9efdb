// Package domain contains the append-only ledger of rule applications. One
// row records one category's evaluation outcome for one transaction and is
// the source of truth for override analytics and revenue reporting.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	ruledomain "github.com/voyagekit/tariff/internal/rule/domain"
	"gorm.io/datatypes"
)

// RuleApplication is immutable once written. Corrections are new rows. The
// single exception is the override transition: final_amount, override_* and
// updated_at may change exactly once, when a permitted override resolves,
// because the override outcome is part of this record's own lifecycle
// rather than a new economic event.
type RuleApplication struct {
	ID               snowflake.ID        `json:"id" gorm:"primaryKey"`
	AgencyID         snowflake.ID        `json:"agency_id" gorm:"column:agency_id;not null;index"`
	RuleID           snowflake.ID        `json:"rule_id" gorm:"not null;index"`
	RuleName         string              `json:"rule_name" gorm:"type:text;not null"`
	RuleType         ruledomain.RuleType `json:"rule_type" gorm:"type:text;not null;index"`
	AppliedToType    string              `json:"applied_to_type" gorm:"type:text;not null"`
	AppliedToID      string              `json:"applied_to_id" gorm:"type:text;not null;index"`
	OriginalAmount   float64             `json:"original_amount" gorm:"not null"`
	CalculatedAmount float64             `json:"calculated_amount" gorm:"not null"`
	FinalAmount      float64             `json:"final_amount" gorm:"not null"`
	Currency         string              `json:"currency" gorm:"type:text;not null"`
	OverrideApplied  bool                `json:"override_applied" gorm:"not null;default:false"`
	OverrideReason   *string             `json:"override_reason,omitempty" gorm:"type:text"`
	OverrideBy       *string             `json:"override_by,omitempty" gorm:"type:text"`
	Context          datatypes.JSONMap   `json:"context,omitempty" gorm:"type:text"`
	ApplicationDate  time.Time           `json:"application_date" gorm:"not null;index"`
	CreatedAt        time.Time           `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time           `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (RuleApplication) TableName() string { return "rule_applications" }

// ApplicationCursor marks the paging position in the ledger.
type ApplicationCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

// ListFilter narrows ledger queries for analytics and display.
type ListFilter struct {
	AgencyID        snowflake.ID
	RuleID          *snowflake.ID
	RuleType        *ruledomain.RuleType
	AppliedToType   string
	AppliedToID     string
	OverrideApplied *bool
	StartAt         *time.Time
	EndAt           *time.Time
	Cursor          *ApplicationCursor
	Limit           int
}
