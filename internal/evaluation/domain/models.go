// Package domain defines the evaluation contract: a transaction context in,
// one winning adjustment per category out, plus the ledger rows written.
package domain

import (
	"context"
	"errors"
	"time"

	auditdomain "github.com/voyagekit/tariff/internal/audit/domain"
	ruledomain "github.com/voyagekit/tariff/internal/rule/domain"
)

var (
	ErrInvalidAgency    = errors.New("invalid_agency")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidAppliedTo = errors.New("invalid_applied_to")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrRateLimited      = errors.New("rate_limited")
)

// TransactionContext is the pricing input supplied by booking and ticketing
// flows. Amounts stay in the stated currency; no conversion happens here.
type TransactionContext struct {
	AppliedToType    string  `json:"applied_to_type"`
	AppliedToID      string  `json:"applied_to_id"`
	Supplier         string  `json:"supplier,omitempty"`
	RouteOrigin      string  `json:"route_origin,omitempty"`
	RouteDestination string  `json:"route_destination,omitempty"`
	AgentEmail       string  `json:"agent_email,omitempty"`
	ClientType       string  `json:"client_type,omitempty"`
	BookingClass     string  `json:"booking_class,omitempty"`
	Currency         string  `json:"currency"`
	BaseAmount       float64 `json:"base_amount"`
}

// Adjustment is the winning rule's contribution for one category.
type Adjustment struct {
	RuleID          string                     `json:"rule_id"`
	RuleName        string                     `json:"rule_name"`
	RuleType        ruledomain.RuleType        `json:"rule_type"`
	CalculationType ruledomain.CalculationType `json:"calculation_type"`
	Value           float64                    `json:"value"`
	Amount          float64                    `json:"amount"`
	ApplicationID   string                     `json:"application_id,omitempty"`
}

// Adjustments carries at most one winner per category. A nil entry means no
// eligible rule matched, which is a valid zero-adjustment outcome.
type Adjustments struct {
	ServiceFee *Adjustment `json:"service_fee,omitempty"`
	Markup     *Adjustment `json:"markup,omitempty"`
	Commission *Adjustment `json:"commission,omitempty"`
}

// Total sums the category amounts.
func (a Adjustments) Total() float64 {
	var total float64
	for _, adj := range []*Adjustment{a.ServiceFee, a.Markup, a.Commission} {
		if adj != nil {
			total += adj.Amount
		}
	}
	return total
}

// Set stores the adjustment under its category slot.
func (a *Adjustments) Set(adj *Adjustment) {
	switch adj.RuleType {
	case ruledomain.ServiceFee:
		a.ServiceFee = adj
	case ruledomain.Markup:
		a.Markup = adj
	case ruledomain.Commission:
		a.Commission = adj
	}
}

type EvaluateRequest struct {
	Transaction TransactionContext `json:"transaction"`
	AsOf        *time.Time         `json:"as_of,omitempty"`
}

type EvaluationResult struct {
	Adjustments  Adjustments                    `json:"adjustments"`
	Total        float64                        `json:"total"`
	Currency     string                         `json:"currency"`
	Applications []*auditdomain.RuleApplication `json:"applications"`
	EvaluatedAt  time.Time                      `json:"evaluated_at"`
}

type Service interface {
	// Evaluate prices one transaction against the active rule snapshot.
	// Ledger write trouble never fails the call; rows are retried in the
	// background.
	Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluationResult, error)
}
