package domain

import (
	"context"
	"errors"
	"time"

	ruledomain "github.com/voyagekit/tariff/internal/rule/domain"
	"github.com/voyagekit/tariff/pkg/db/pagination"
)

var (
	ErrInvalidAgency     = errors.New("invalid_agency")
	ErrInvalidID         = errors.New("invalid_id")
	ErrNotFound          = errors.New("rule_application_not_found")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
	ErrInvalidTimeRange  = errors.New("invalid_time_range")
	ErrAlreadyOverridden = errors.New("rule_application_already_overridden")

	// ErrRecordDeferred signals that the write failed and was queued for
	// retry. Evaluation results remain valid; the row lands later.
	ErrRecordDeferred = errors.New("rule_application_deferred")
)

// RecordInput is the ledger entry an evaluation produces for each category
// that resolved to a winning rule.
type RecordInput struct {
	RuleID           string
	RuleName         string
	RuleType         ruledomain.RuleType
	AppliedToType    string
	AppliedToID      string
	OriginalAmount   float64
	CalculatedAmount float64
	FinalAmount      float64
	Currency         string
	Context          map[string]interface{}
	ApplicationDate  time.Time
}

type ListRequest struct {
	RuleID          string
	RuleType        string
	AppliedToType   string
	AppliedToID     string
	OverrideApplied *bool
	StartAt         *time.Time
	EndAt           *time.Time
	Pagination      pagination.Pagination
}

type ListResponse struct {
	Applications []*RuleApplication   `json:"applications"`
	PageInfo     *pagination.PageInfo `json:"page_info"`
}

type Service interface {
	// Record appends a ledger row. On storage failure the row is queued
	// for retry and ErrRecordDeferred is returned; callers must not treat
	// that as an evaluation failure.
	Record(ctx context.Context, in RecordInput) (*RuleApplication, error)

	Get(ctx context.Context, id string) (*RuleApplication, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)

	// ApplyOverride finalizes an approved override onto the ledger row.
	// It is the only mutation a recorded application accepts, and only
	// while override_applied is still false.
	ApplyOverride(ctx context.Context, id string, upd OverrideUpdate) (*RuleApplication, error)
}
