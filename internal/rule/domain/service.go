package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	// NewVersion inserts an updated copy of the rule as version n+1 and
	// retires the prior row. The old version stays readable forever.
	NewVersion(ctx context.Context, id string, req CreateRequest) (*Response, error)
	Deactivate(ctx context.Context, id string) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, includeRetired bool) ([]Response, error)
	// ListActive returns the eligible rule snapshot used by evaluation.
	ListActive(ctx context.Context, asOf time.Time, ruleType *RuleType) ([]ServiceRule, error)
}

type CreateRequest struct {
	RuleName         string           `json:"rule_name"`
	RuleType         RuleType         `json:"rule_type"`
	CalculationType  CalculationType  `json:"calculation_type"`
	Value            float64          `json:"value"`
	Priority         *int32           `json:"priority"`
	Active           *bool            `json:"active"`
	Conditions       Conditions       `json:"conditions"`
	OverrideSettings OverrideSettings `json:"override_settings"`
	EffectiveDate    *time.Time       `json:"effective_date"`
	ExpiryDate       *time.Time       `json:"expiry_date"`
}

type Response struct {
	ID               snowflake.ID     `json:"id"`
	AgencyID         snowflake.ID     `json:"agency_id"`
	RuleName         string           `json:"rule_name"`
	RuleType         RuleType         `json:"rule_type"`
	CalculationType  CalculationType  `json:"calculation_type"`
	Value            float64          `json:"value"`
	Priority         int32            `json:"priority"`
	Active           bool             `json:"active"`
	Version          int32            `json:"version"`
	RetiredAt        *time.Time       `json:"retired_at,omitempty"`
	Conditions       Conditions       `json:"conditions"`
	OverrideSettings OverrideSettings `json:"override_settings"`
	EffectiveDate    time.Time        `json:"effective_date"`
	ExpiryDate       *time.Time       `json:"expiry_date,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

var (
	ErrInvalidAgency          = errors.New("invalid_agency")
	ErrInvalidRuleName        = errors.New("invalid_rule_name")
	ErrDuplicateRuleName      = errors.New("duplicate_rule_name")
	ErrInvalidRuleType        = errors.New("invalid_rule_type")
	ErrInvalidCalculationType = errors.New("invalid_calculation_type")
	ErrInvalidValue           = errors.New("invalid_value")
	ErrInvalidOverrideLimit   = errors.New("invalid_override_limit")
	ErrInvalidDateRange       = errors.New("invalid_date_range")
	ErrInvalidID              = errors.New("invalid_id")
	ErrRuleRetired            = errors.New("rule_retired")
	ErrNotFound               = errors.New("not_found")
)
