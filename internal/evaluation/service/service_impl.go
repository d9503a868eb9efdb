package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/voyagekit/tariff/internal/agencyctx"
	auditdomain "github.com/voyagekit/tariff/internal/audit/domain"
	"github.com/voyagekit/tariff/internal/clock"
	evaldomain "github.com/voyagekit/tariff/internal/evaluation/domain"
	"github.com/voyagekit/tariff/internal/observability/metrics"
	"github.com/voyagekit/tariff/internal/ratelimit"
	ruledomain "github.com/voyagekit/tariff/internal/rule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	RuleSvc  ruledomain.Service
	AuditSvc auditdomain.Service
	Metrics  *metrics.Metrics
	Limiter  *ratelimit.EvaluateLimiter `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	clock    clock.Clock
	ruleSvc  ruledomain.Service
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
	limiter  *ratelimit.EvaluateLimiter
}

func NewService(p Params) evaldomain.Service {
	return &Service{
		log:      p.Log.Named("evaluation.service"),
		clock:    p.Clock,
		ruleSvc:  p.RuleSvc,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
		limiter:  p.Limiter,
	}
}

func (s *Service) Evaluate(ctx context.Context, req evaldomain.EvaluateRequest) (*evaldomain.EvaluationResult, error) {
	agencyID, ok := agencyctx.AgencyIDFromContext(ctx)
	if !ok || agencyID == 0 {
		return nil, evaldomain.ErrInvalidAgency
	}

	txn := req.Transaction
	if strings.TrimSpace(txn.AppliedToType) == "" || strings.TrimSpace(txn.AppliedToID) == "" {
		return nil, evaldomain.ErrInvalidAppliedTo
	}
	if strings.TrimSpace(txn.Currency) == "" {
		return nil, evaldomain.ErrInvalidCurrency
	}
	if txn.BaseAmount < 0 {
		return nil, evaldomain.ErrInvalidAmount
	}

	if res, err := s.limiter.Allow(ctx, agencyID); err != nil {
		s.log.Warn("rate limiter unavailable, allowing evaluation", zap.Error(err))
	} else if !res.Allowed {
		return nil, evaldomain.ErrRateLimited
	}

	asOf := s.clock.Now()
	if req.AsOf != nil {
		asOf = req.AsOf.UTC()
	}

	// One snapshot read for all three categories so a concurrent rule
	// edit can never produce a mixed old/new outcome.
	snapshot, err := s.ruleSvc.ListActive(ctx, asOf, nil)
	if err != nil {
		return nil, err
	}

	result := &evaldomain.EvaluationResult{
		Currency:    txn.Currency,
		EvaluatedAt: asOf,
	}

	for _, ruleType := range ruledomain.RuleTypes() {
		winner := selectWinner(matchingRules(snapshot, ruleType, txn))
		if winner == nil {
			continue
		}

		amount := calculate(winner, txn.BaseAmount)
		adj := &evaldomain.Adjustment{
			RuleID:          winner.ID.String(),
			RuleName:        winner.RuleName,
			RuleType:        winner.RuleType,
			CalculationType: winner.CalculationType,
			Value:           winner.Value,
			Amount:          amount,
		}

		app := s.recordApplication(ctx, winner, txn, amount, asOf)
		if app != nil {
			adj.ApplicationID = app.ID.String()
			result.Applications = append(result.Applications, app)
		}
		result.Adjustments.Set(adj)
	}

	result.Total = result.Adjustments.Total()
	s.metrics.RecordEvaluation(ctx, txn.AppliedToType)

	return result, nil
}

func matchingRules(snapshot []ruledomain.ServiceRule, ruleType ruledomain.RuleType, txn evaldomain.TransactionContext) []*ruledomain.ServiceRule {
	var matched []*ruledomain.ServiceRule
	for i := range snapshot {
		rule := &snapshot[i]
		if rule.RuleType != ruleType {
			continue
		}
		if ruleMatches(rule, txn) {
			matched = append(matched, rule)
		}
	}
	return matched
}

func (s *Service) recordApplication(
	ctx context.Context,
	winner *ruledomain.ServiceRule,
	txn evaldomain.TransactionContext,
	amount float64,
	asOf time.Time,
) *auditdomain.RuleApplication {
	app, err := s.auditSvc.Record(ctx, auditdomain.RecordInput{
		RuleID:           winner.ID.String(),
		RuleName:         winner.RuleName,
		RuleType:         winner.RuleType,
		AppliedToType:    txn.AppliedToType,
		AppliedToID:      txn.AppliedToID,
		OriginalAmount:   txn.BaseAmount,
		CalculatedAmount: amount,
		FinalAmount:      amount,
		Currency:         txn.Currency,
		Context:          transactionSnapshot(txn),
		ApplicationDate:  asOf,
	})
	if err != nil {
		if errors.Is(err, auditdomain.ErrRecordDeferred) {
			s.log.Warn("ledger append deferred, evaluation result unaffected",
				zap.String("rule_id", winner.ID.String()),
				zap.String("applied_to_id", txn.AppliedToID),
			)
			return app
		}
		s.log.Error("ledger append failed",
			zap.String("rule_id", winner.ID.String()),
			zap.String("applied_to_id", txn.AppliedToID),
			zap.Error(err),
		)
		return nil
	}
	return app
}

func transactionSnapshot(txn evaldomain.TransactionContext) map[string]interface{} {
	snapshot := map[string]interface{}{
		"base_amount": txn.BaseAmount,
		"currency":    txn.Currency,
	}
	for key, value := range map[string]string{
		"supplier":          txn.Supplier,
		"route_origin":      txn.RouteOrigin,
		"route_destination": txn.RouteDestination,
		"agent_email":       txn.AgentEmail,
		"client_type":       txn.ClientType,
		"booking_class":     txn.BookingClass,
	} {
		if strings.TrimSpace(value) != "" {
			snapshot[key] = value
		}
	}
	return snapshot
}
