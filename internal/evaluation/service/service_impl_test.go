package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/voyagekit/tariff/internal/agencyctx"
	auditdomain "github.com/voyagekit/tariff/internal/audit/domain"
	"github.com/voyagekit/tariff/internal/clock"
	evaldomain "github.com/voyagekit/tariff/internal/evaluation/domain"
	ruledomain "github.com/voyagekit/tariff/internal/rule/domain"
	"go.uber.org/zap"
)

type ruleStub struct {
	ruledomain.Service

	snapshot []ruledomain.ServiceRule
	err      error
	asOfSeen time.Time
}

func (s *ruleStub) ListActive(ctx context.Context, asOf time.Time, ruleType *ruledomain.RuleType) ([]ruledomain.ServiceRule, error) {
	s.asOfSeen = asOf
	return s.snapshot, s.err
}

type auditStub struct {
	auditdomain.Service

	node     *snowflake.Node
	err      error
	recorded []auditdomain.RecordInput
}

func (s *auditStub) Record(ctx context.Context, in auditdomain.RecordInput) (*auditdomain.RuleApplication, error) {
	s.recorded = append(s.recorded, in)
	if s.err != nil && !errors.Is(s.err, auditdomain.ErrRecordDeferred) {
		return nil, s.err
	}
	app := &auditdomain.RuleApplication{
		ID:               s.node.Generate(),
		RuleName:         in.RuleName,
		RuleType:         in.RuleType,
		OriginalAmount:   in.OriginalAmount,
		CalculatedAmount: in.CalculatedAmount,
		FinalAmount:      in.FinalAmount,
		Currency:         in.Currency,
	}
	return app, s.err
}

func newEvalService(t *testing.T, rules *ruleStub, audit *auditStub) (evaldomain.Service, *clock.FakeClock) {
	t.Helper()
	fake := clock.NewFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		Log:      zap.NewNop(),
		Clock:    fake,
		RuleSvc:  rules,
		AuditSvc: audit,
	})
	return svc, fake
}

func evalContext(t *testing.T, node *snowflake.Node) context.Context {
	t.Helper()
	return agencyctx.WithAgencyID(context.Background(), int64(node.Generate()))
}

func baseTransaction() evaldomain.TransactionContext {
	return evaldomain.TransactionContext{
		AppliedToType: "booking",
		AppliedToID:   "BK-5001",
		Supplier:      "AA",
		Currency:      "USD",
		BaseAmount:    1000,
	}
}

func TestEvaluatePercentageMarkup(t *testing.T) {
	node := mustNode(t)
	rules := &ruleStub{snapshot: []ruledomain.ServiceRule{{
		ID:              node.Generate(),
		RuleName:        "aa-markup",
		RuleType:        ruledomain.Markup,
		CalculationType: ruledomain.Percentage,
		Value:           10,
		Conditions:      ruledomain.Conditions{Suppliers: []string{"aa"}},
	}}}
	audit := &auditStub{node: node}
	svc, _ := newEvalService(t, rules, audit)

	res, err := svc.Evaluate(evalContext(t, node), evaldomain.EvaluateRequest{Transaction: baseTransaction()})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Adjustments.Markup == nil {
		t.Fatal("expected markup adjustment")
	}
	if res.Adjustments.Markup.Amount != 100.00 {
		t.Fatalf("markup amount = %v, want 100.00", res.Adjustments.Markup.Amount)
	}
	if res.Adjustments.ServiceFee != nil || res.Adjustments.Commission != nil {
		t.Fatal("unmatched categories must stay zero")
	}
	if res.Total != 100.00 {
		t.Fatalf("total = %v, want 100.00", res.Total)
	}
	if len(res.Applications) != 1 || len(audit.recorded) != 1 {
		t.Fatalf("expected one ledger row, got %d returned / %d recorded", len(res.Applications), len(audit.recorded))
	}
	if audit.recorded[0].FinalAmount != 100.00 {
		t.Fatalf("recorded final amount = %v, want 100.00", audit.recorded[0].FinalAmount)
	}
}

func TestEvaluatePriorityWinsRegardlessOfOrder(t *testing.T) {
	node := mustNode(t)
	high := ruledomain.ServiceRule{
		ID:              node.Generate(),
		RuleName:        "priority-fee",
		RuleType:        ruledomain.ServiceFee,
		CalculationType: ruledomain.Fixed,
		Value:           50,
		Priority:        1,
	}
	low := ruledomain.ServiceRule{
		ID:              node.Generate(),
		RuleName:        "fallback-fee",
		RuleType:        ruledomain.ServiceFee,
		CalculationType: ruledomain.Fixed,
		Value:           30,
		Priority:        2,
	}

	for _, snapshot := range [][]ruledomain.ServiceRule{{high, low}, {low, high}} {
		rules := &ruleStub{snapshot: snapshot}
		audit := &auditStub{node: node}
		svc, _ := newEvalService(t, rules, audit)

		res, err := svc.Evaluate(evalContext(t, node), evaldomain.EvaluateRequest{Transaction: baseTransaction()})
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if res.Adjustments.ServiceFee == nil || res.Adjustments.ServiceFee.Amount != 50 {
			t.Fatalf("expected priority-1 fixed 50 to win, got %+v", res.Adjustments.ServiceFee)
		}
		if res.Adjustments.ServiceFee.RuleName != "priority-fee" {
			t.Fatalf("wrong winner %q", res.Adjustments.ServiceFee.RuleName)
		}
	}
}

func TestEvaluateCurrencyConstraintNoMatch(t *testing.T) {
	node := mustNode(t)
	rules := &ruleStub{snapshot: []ruledomain.ServiceRule{{
		ID:              node.Generate(),
		RuleName:        "usd-eur-fee",
		RuleType:        ruledomain.ServiceFee,
		CalculationType: ruledomain.Fixed,
		Value:           25,
		Conditions:      ruledomain.Conditions{Currencies: []string{"usd", "eur"}},
	}}}
	audit := &auditStub{node: node}
	svc, _ := newEvalService(t, rules, audit)

	txn := baseTransaction()
	txn.Currency = "GBP"

	res, err := svc.Evaluate(evalContext(t, node), evaldomain.EvaluateRequest{Transaction: txn})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Adjustments.ServiceFee != nil {
		t.Fatalf("expected zero adjustment for GBP, got %+v", res.Adjustments.ServiceFee)
	}
	if res.Total != 0 || len(res.Applications) != 0 {
		t.Fatalf("expected empty result, got total=%v apps=%d", res.Total, len(res.Applications))
	}
	if len(audit.recorded) != 0 {
		t.Fatal("no ledger row may be written without a winner")
	}
}

func TestEvaluateAuditFailureDoesNotFailResult(t *testing.T) {
	node := mustNode(t)
	rules := &ruleStub{snapshot: []ruledomain.ServiceRule{{
		ID:              node.Generate(),
		RuleName:        "flat-fee",
		RuleType:        ruledomain.ServiceFee,
		CalculationType: ruledomain.Fixed,
		Value:           40,
	}}}
	audit := &auditStub{node: node, err: auditdomain.ErrRecordDeferred}
	svc, _ := newEvalService(t, rules, audit)

	res, err := svc.Evaluate(evalContext(t, node), evaldomain.EvaluateRequest{Transaction: baseTransaction()})
	if err != nil {
		t.Fatalf("evaluate must not fail on deferred ledger write: %v", err)
	}
	if res.Adjustments.ServiceFee == nil || res.Adjustments.ServiceFee.Amount != 40 {
		t.Fatalf("expected adjustment despite audit trouble, got %+v", res.Adjustments.ServiceFee)
	}

	audit = &auditStub{node: node, err: errors.New("db down")}
	svc, _ = newEvalService(t, rules, audit)

	res, err = svc.Evaluate(evalContext(t, node), evaldomain.EvaluateRequest{Transaction: baseTransaction()})
	if err != nil {
		t.Fatalf("evaluate must not fail on hard ledger error: %v", err)
	}
	if res.Adjustments.ServiceFee == nil || res.Adjustments.ServiceFee.Amount != 40 {
		t.Fatalf("expected adjustment despite ledger error, got %+v", res.Adjustments.ServiceFee)
	}
	if len(res.Applications) != 0 {
		t.Fatal("failed ledger rows must not be reported as written")
	}
}

func TestEvaluateUsesRequestedAsOf(t *testing.T) {
	node := mustNode(t)
	rules := &ruleStub{}
	audit := &auditStub{node: node}
	svc, fake := newEvalService(t, rules, audit)

	res, err := svc.Evaluate(evalContext(t, node), evaldomain.EvaluateRequest{Transaction: baseTransaction()})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !rules.asOfSeen.Equal(fake.Now()) {
		t.Fatalf("expected clock asOf %v, got %v", fake.Now(), rules.asOfSeen)
	}
	if !res.EvaluatedAt.Equal(fake.Now()) {
		t.Fatalf("expected evaluated_at from clock, got %v", res.EvaluatedAt)
	}

	asOf := time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC)
	if _, err := svc.Evaluate(evalContext(t, node), evaldomain.EvaluateRequest{
		Transaction: baseTransaction(),
		AsOf:        &asOf,
	}); err != nil {
		t.Fatalf("evaluate with asOf: %v", err)
	}
	if !rules.asOfSeen.Equal(asOf) {
		t.Fatalf("expected requested asOf %v, got %v", asOf, rules.asOfSeen)
	}
}

func TestEvaluateInputValidation(t *testing.T) {
	node := mustNode(t)
	svc, _ := newEvalService(t, &ruleStub{}, &auditStub{node: node})

	if _, err := svc.Evaluate(context.Background(), evaldomain.EvaluateRequest{Transaction: baseTransaction()}); !errors.Is(err, evaldomain.ErrInvalidAgency) {
		t.Fatalf("expected ErrInvalidAgency, got %v", err)
	}

	txn := baseTransaction()
	txn.AppliedToID = ""
	if _, err := svc.Evaluate(evalContext(t, node), evaldomain.EvaluateRequest{Transaction: txn}); !errors.Is(err, evaldomain.ErrInvalidAppliedTo) {
		t.Fatalf("expected ErrInvalidAppliedTo, got %v", err)
	}

	txn = baseTransaction()
	txn.Currency = " "
	if _, err := svc.Evaluate(evalContext(t, node), evaldomain.EvaluateRequest{Transaction: txn}); !errors.Is(err, evaldomain.ErrInvalidCurrency) {
		t.Fatalf("expected ErrInvalidCurrency, got %v", err)
	}

	txn = baseTransaction()
	txn.BaseAmount = -1
	if _, err := svc.Evaluate(evalContext(t, node), evaldomain.EvaluateRequest{Transaction: txn}); !errors.Is(err, evaldomain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}
