// Package domain contains the rule store models: versioned, immutable
// pricing rules for service fees, markups and commissions.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// RuleType is the independent evaluation category a rule belongs to.
type RuleType string

var (
	ServiceFee RuleType = "service_fee"
	Markup     RuleType = "markup"
	Commission RuleType = "commission"
)

// RuleTypes lists every category in evaluation order.
func RuleTypes() []RuleType {
	return []RuleType{ServiceFee, Markup, Commission}
}

// ParseRuleType normalizes a caller-supplied category name.
func ParseRuleType(value string) (RuleType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(ServiceFee):
		return ServiceFee, nil
	case string(Markup):
		return Markup, nil
	case string(Commission):
		return Commission, nil
	default:
		return "", ErrInvalidRuleType
	}
}

// CalculationType selects how a rule's value turns into an amount.
type CalculationType string

var (
	Fixed      CalculationType = "fixed"
	Percentage CalculationType = "percentage"
)

// Conditions constrains which transactions a rule applies to. An empty list
// matches any value; a non-empty list requires membership, compared
// case-insensitively.
type Conditions struct {
	Suppliers         []string `json:"suppliers,omitempty"`
	RouteOrigins      []string `json:"route_origins,omitempty"`
	RouteDestinations []string `json:"route_destinations,omitempty"`
	AgentEmails       []string `json:"agent_emails,omitempty"`
	ClientTypes       []string `json:"client_types,omitempty"`
	BookingClasses    []string `json:"booking_classes,omitempty"`
	Currencies        []string `json:"currencies,omitempty"`
}

// OverrideSettings gates manual overrides of a rule's calculated amount.
// MaxOverridePercentage is on a 0-100 scale and bounds the deviation
// percentage |requested-calculated|/calculated*100.
type OverrideSettings struct {
	AllowAgentOverride    bool    `json:"allow_agent_override"`
	RequireApproval       bool    `json:"require_approval"`
	MaxOverridePercentage float64 `json:"max_override_percentage"`
}

// ServiceRule is one immutable version of a pricing rule. Edits insert a new
// version row and retire the prior one; rows referenced by past evaluations
// are never rewritten.
type ServiceRule struct {
	ID               snowflake.ID     `json:"id" gorm:"primaryKey"`
	AgencyID         snowflake.ID     `json:"agency_id" gorm:"column:agency_id;not null;index"`
	RuleName         string           `json:"rule_name" gorm:"type:text;not null;index"`
	RuleType         RuleType         `json:"rule_type" gorm:"type:text;not null;index"`
	CalculationType  CalculationType  `json:"calculation_type" gorm:"type:text;not null"`
	Value            float64          `json:"value" gorm:"not null"`
	Priority         int32            `json:"priority" gorm:"not null;default:100"`
	Active           bool             `json:"active" gorm:"not null;default:true"`
	Version          int32            `json:"version" gorm:"not null;default:1"`
	RetiredAt        *time.Time       `json:"retired_at,omitempty"`
	Conditions       Conditions       `json:"conditions" gorm:"type:text;serializer:json"`
	OverrideSettings OverrideSettings `json:"override_settings" gorm:"type:text;serializer:json"`
	EffectiveDate    time.Time        `json:"effective_date" gorm:"not null"`
	ExpiryDate       *time.Time       `json:"expiry_date,omitempty"`
	CreatedAt        time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time        `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ServiceRule) TableName() string { return "service_rules" }

// EligibleAt reports whether the rule may apply on the given date: it must
// be active and asOf must fall inside [effective_date, expiry_date], where a
// nil expiry never expires.
func (r ServiceRule) EligibleAt(asOf time.Time) bool {
	if !r.Active {
		return false
	}
	if asOf.Before(r.EffectiveDate) {
		return false
	}
	if r.ExpiryDate != nil && asOf.After(*r.ExpiryDate) {
		return false
	}
	return true
}

// Normalize trims and lowercases all condition lists so matching is a plain
// membership test at evaluation time.
func (c Conditions) Normalize() Conditions {
	return Conditions{
		Suppliers:         normalizeList(c.Suppliers),
		RouteOrigins:      normalizeList(c.RouteOrigins),
		RouteDestinations: normalizeList(c.RouteDestinations),
		AgentEmails:       normalizeList(c.AgentEmails),
		ClientTypes:       normalizeList(c.ClientTypes),
		BookingClasses:    normalizeList(c.BookingClasses),
		Currencies:        normalizeList(c.Currencies),
	}
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
