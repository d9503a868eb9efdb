package domain

import (
	"context"
	"errors"

	auditdomain "github.com/voyagekit/tariff/internal/audit/domain"
)

var (
	ErrInvalidAgency        = errors.New("invalid_agency")
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidRequester     = errors.New("invalid_requester")
	ErrInvalidReason        = errors.New("invalid_reason")
	ErrInvalidDecision      = errors.New("invalid_decision")
	ErrOverrideNotAllowed   = errors.New("override_not_allowed")
	ErrOverridePending      = errors.New("override_request_pending")
	ErrOverrideExceedsLimit = errors.New("override_exceeds_limit")
	ErrInvalidOverrideState = errors.New("invalid_override_state")
	ErrApplicationNotFound  = errors.New("application_not_found")
	ErrRequestNotFound      = errors.New("request_not_found")
)

type RequestInput struct {
	RuleApplicationID string  `json:"rule_application_id"`
	RequestedAmount   float64 `json:"requested_amount"`
	Reason            string  `json:"reason"`
	RequestedBy       string  `json:"requested_by"`
}

// RequestOutcome reports how a submission resolved: applied immediately,
// or parked as a proposed request awaiting approval.
type RequestOutcome struct {
	Request     *OverrideRequest             `json:"request"`
	Application *auditdomain.RuleApplication `json:"application"`
	Pending     bool                         `json:"pending"`
}

type DecideInput struct {
	Decision  string `json:"decision"` // approved | rejected
	DecidedBy string `json:"decided_by"`
	Note      string `json:"note,omitempty"`
}

type Service interface {
	// Request submits an override against a recorded rule application.
	// Depending on the winning rule version's override settings it is
	// rejected, applied immediately, or parked for approval.
	Request(ctx context.Context, in RequestInput) (*RequestOutcome, error)

	// Decide resolves a proposed request. Approval updates the ledger
	// row's final amount and moves the request to applied; rejection is
	// terminal and leaves the calculated amount standing.
	Decide(ctx context.Context, requestID string, in DecideInput) (*auditdomain.RuleApplication, error)

	Get(ctx context.Context, requestID string) (*OverrideRequest, error)
	List(ctx context.Context, status string) ([]OverrideRequest, error)
}
