package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/voyagekit/tariff/internal/agencyctx"
	"github.com/voyagekit/tariff/internal/cache"
	"github.com/voyagekit/tariff/internal/clock"
	"github.com/voyagekit/tariff/internal/rule/domain"
	rulerepo "github.com/voyagekit/tariff/internal/rule/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestCreateRuleNormalizesConditions(t *testing.T) {
	node := mustNode(t)
	agencyID := node.Generate()

	svc, _, _ := setupRuleService(t, node)
	ctx := agencyctx.WithAgencyID(context.Background(), int64(agencyID))

	resp, err := svc.Create(ctx, domain.CreateRequest{
		RuleName:        "GDS Service Fee",
		RuleType:        "Service_Fee",
		CalculationType: "Percentage",
		Value:           10,
		Conditions: domain.Conditions{
			Suppliers:  []string{" Amadeus ", "SABRE"},
			Currencies: []string{"USD", ""},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.ID == 0 {
		t.Fatal("expected generated rule id")
	}
	if resp.Version != 1 {
		t.Fatalf("expected version 1, got %d", resp.Version)
	}
	if resp.Priority != 100 {
		t.Fatalf("expected default priority 100, got %d", resp.Priority)
	}
	if !resp.Active {
		t.Fatal("expected rule active by default")
	}
	if resp.RuleType != domain.ServiceFee {
		t.Fatalf("expected normalized rule type, got %q", resp.RuleType)
	}
	if got := resp.Conditions.Suppliers; len(got) != 2 || got[0] != "amadeus" || got[1] != "sabre" {
		t.Fatalf("expected lowercased trimmed suppliers, got %v", got)
	}
	if got := resp.Conditions.Currencies; len(got) != 1 || got[0] != "usd" {
		t.Fatalf("expected empty currency entries dropped, got %v", got)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	node := mustNode(t)
	agencyID := node.Generate()

	svc, _, fake := setupRuleService(t, node)
	ctx := agencyctx.WithAgencyID(context.Background(), int64(agencyID))

	now := fake.Now()
	past := now.Add(-time.Hour)

	cases := []struct {
		name string
		req  domain.CreateRequest
		want error
	}{
		{
			name: "missing name",
			req:  domain.CreateRequest{RuleType: "markup", CalculationType: "fixed", Value: 5},
			want: domain.ErrInvalidRuleName,
		},
		{
			name: "unknown rule type",
			req:  domain.CreateRequest{RuleName: "r", RuleType: "discount", CalculationType: "fixed", Value: 5},
			want: domain.ErrInvalidRuleType,
		},
		{
			name: "unknown calculation type",
			req:  domain.CreateRequest{RuleName: "r", RuleType: "markup", CalculationType: "tiered", Value: 5},
			want: domain.ErrInvalidCalculationType,
		},
		{
			name: "negative value",
			req:  domain.CreateRequest{RuleName: "r", RuleType: "markup", CalculationType: "fixed", Value: -1},
			want: domain.ErrInvalidValue,
		},
		{
			name: "percentage above 100",
			req:  domain.CreateRequest{RuleName: "r", RuleType: "markup", CalculationType: "percentage", Value: 101},
			want: domain.ErrInvalidValue,
		},
		{
			name: "negative override limit",
			req: domain.CreateRequest{
				RuleName: "r", RuleType: "markup", CalculationType: "fixed", Value: 5,
				OverrideSettings: domain.OverrideSettings{MaxOverridePercentage: -1},
			},
			want: domain.ErrInvalidOverrideLimit,
		},
		{
			name: "expiry before effective",
			req: domain.CreateRequest{
				RuleName: "r", RuleType: "markup", CalculationType: "fixed", Value: 5,
				EffectiveDate: &now, ExpiryDate: &past,
			},
			want: domain.ErrInvalidDateRange,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := svc.Create(context.Background(), domain.CreateRequest{
		RuleName: "r", RuleType: "markup", CalculationType: "fixed", Value: 5,
	}); !errors.Is(err, domain.ErrInvalidAgency) {
		t.Fatalf("expected ErrInvalidAgency without agency context, got %v", err)
	}
}

func TestCreateRuleDuplicateNameCaseInsensitive(t *testing.T) {
	node := mustNode(t)
	agencyID := node.Generate()

	svc, _, _ := setupRuleService(t, node)
	ctx := agencyctx.WithAgencyID(context.Background(), int64(agencyID))

	if _, err := svc.Create(ctx, validRule("Corporate Markup")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, validRule("corporate markup")); !errors.Is(err, domain.ErrDuplicateRuleName) {
		t.Fatalf("expected ErrDuplicateRuleName, got %v", err)
	}

	// A different agency may reuse the name.
	otherCtx := agencyctx.WithAgencyID(context.Background(), int64(node.Generate()))
	if _, err := svc.Create(otherCtx, validRule("Corporate Markup")); err != nil {
		t.Fatalf("create in other agency: %v", err)
	}
}

func TestNewVersionRetiresPriorAndKeepsName(t *testing.T) {
	node := mustNode(t)
	agencyID := node.Generate()

	svc, _, _ := setupRuleService(t, node)
	ctx := agencyctx.WithAgencyID(context.Background(), int64(agencyID))

	v1, err := svc.Create(ctx, validRule("Corporate Markup"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	update := validRule("Renamed Should Be Ignored")
	update.Value = 7.5
	v2, err := svc.NewVersion(ctx, v1.ID.String(), update)
	if err != nil {
		t.Fatalf("new version: %v", err)
	}
	if v2.Version != 2 {
		t.Fatalf("expected version 2, got %d", v2.Version)
	}
	if v2.RuleName != "Corporate Markup" {
		t.Fatalf("expected name carried over, got %q", v2.RuleName)
	}
	if v2.ID == v1.ID {
		t.Fatal("expected a fresh row for the new version")
	}
	if v2.Value != 7.5 {
		t.Fatalf("expected updated value, got %v", v2.Value)
	}

	// The prior version stays readable, marked retired.
	old, err := svc.Get(ctx, v1.ID.String())
	if err != nil {
		t.Fatalf("get prior version: %v", err)
	}
	if old.RetiredAt == nil {
		t.Fatal("expected prior version retired")
	}
	if old.Active {
		t.Fatal("expected prior version inactive")
	}
	if old.Value != v1.Value {
		t.Fatalf("expected prior version untouched, got %v", old.Value)
	}

	// Updating the retired row is refused; the live head must be targeted.
	if _, err := svc.NewVersion(ctx, v1.ID.String(), update); !errors.Is(err, domain.ErrRuleRetired) {
		t.Fatalf("expected ErrRuleRetired, got %v", err)
	}
}

func TestDeactivateRule(t *testing.T) {
	node := mustNode(t)
	agencyID := node.Generate()

	svc, _, fake := setupRuleService(t, node)
	ctx := agencyctx.WithAgencyID(context.Background(), int64(agencyID))

	created, err := svc.Create(ctx, validRule("Corporate Markup"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	retired, err := svc.Deactivate(ctx, created.ID.String())
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if retired.RetiredAt == nil || retired.Active {
		t.Fatal("expected retired inactive rule")
	}

	active, err := svc.ListActive(ctx, fake.Now(), nil)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active rules, got %d", len(active))
	}

	if _, err := svc.Deactivate(ctx, created.ID.String()); !errors.Is(err, domain.ErrRuleRetired) {
		t.Fatalf("expected ErrRuleRetired, got %v", err)
	}
}

func TestListActiveEligibilityWindow(t *testing.T) {
	node := mustNode(t)
	agencyID := node.Generate()

	svc, _, fake := setupRuleService(t, node)
	ctx := agencyctx.WithAgencyID(context.Background(), int64(agencyID))

	now := fake.Now()
	future := now.Add(48 * time.Hour)
	pastStart := now.Add(-48 * time.Hour)
	pastEnd := now.Add(-24 * time.Hour)
	inactive := false

	current := validRule("current")
	if _, err := svc.Create(ctx, current); err != nil {
		t.Fatalf("create current: %v", err)
	}

	notYet := validRule("not-yet")
	notYet.EffectiveDate = &future
	if _, err := svc.Create(ctx, notYet); err != nil {
		t.Fatalf("create not-yet: %v", err)
	}

	expired := validRule("expired")
	expired.EffectiveDate = &pastStart
	expired.ExpiryDate = &pastEnd
	if _, err := svc.Create(ctx, expired); err != nil {
		t.Fatalf("create expired: %v", err)
	}

	disabled := validRule("disabled")
	disabled.Active = &inactive
	if _, err := svc.Create(ctx, disabled); err != nil {
		t.Fatalf("create disabled: %v", err)
	}

	active, err := svc.ListActive(ctx, now, nil)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].RuleName != "current" {
		t.Fatalf("expected only the current rule, got %d rules", len(active))
	}

	// The future rule becomes eligible once asOf reaches its window.
	later, err := svc.ListActive(ctx, future.Add(time.Hour), nil)
	if err != nil {
		t.Fatalf("list active later: %v", err)
	}
	if len(later) != 2 {
		t.Fatalf("expected current and not-yet rules, got %d", len(later))
	}
}

func TestListActiveFiltersByRuleType(t *testing.T) {
	node := mustNode(t)
	agencyID := node.Generate()

	svc, _, fake := setupRuleService(t, node)
	ctx := agencyctx.WithAgencyID(context.Background(), int64(agencyID))

	fee := validRule("fee")
	fee.RuleType = "service_fee"
	if _, err := svc.Create(ctx, fee); err != nil {
		t.Fatalf("create fee: %v", err)
	}
	markup := validRule("markup")
	if _, err := svc.Create(ctx, markup); err != nil {
		t.Fatalf("create markup: %v", err)
	}

	feeType := domain.ServiceFee
	active, err := svc.ListActive(ctx, fake.Now(), &feeType)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].RuleType != domain.ServiceFee {
		t.Fatalf("expected one service_fee rule, got %d", len(active))
	}
}

func TestListActiveSnapshotCache(t *testing.T) {
	node := mustNode(t)
	agencyID := node.Generate()

	svc, db, fake := setupRuleService(t, node)
	ctx := agencyctx.WithAgencyID(context.Background(), int64(agencyID))

	if _, err := svc.Create(ctx, validRule("cached")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.ListActive(ctx, fake.Now(), nil); err != nil {
		t.Fatalf("warm snapshot: %v", err)
	}

	// A write that bypasses the service is invisible until the snapshot
	// is invalidated by a rule-store write.
	rogue := &domain.ServiceRule{
		ID:              node.Generate(),
		AgencyID:        agencyID,
		RuleName:        "rogue",
		RuleType:        domain.Markup,
		CalculationType: domain.Fixed,
		Value:           1,
		Priority:        100,
		Active:          true,
		Version:         1,
		EffectiveDate:   fake.Now().Add(-time.Hour),
		CreatedAt:       fake.Now(),
		UpdatedAt:       fake.Now(),
	}
	if err := db.Create(rogue).Error; err != nil {
		t.Fatalf("insert rogue row: %v", err)
	}

	cached, err := svc.ListActive(ctx, fake.Now(), nil)
	if err != nil {
		t.Fatalf("list from snapshot: %v", err)
	}
	if len(cached) != 1 {
		t.Fatalf("expected snapshot to hide the rogue row, got %d rules", len(cached))
	}

	if _, err := svc.Create(ctx, validRule("invalidates")); err != nil {
		t.Fatalf("create: %v", err)
	}
	fresh, err := svc.ListActive(ctx, fake.Now(), nil)
	if err != nil {
		t.Fatalf("list after invalidation: %v", err)
	}
	if len(fresh) != 3 {
		t.Fatalf("expected reloaded snapshot with 3 rules, got %d", len(fresh))
	}
}

func TestGetRuleErrors(t *testing.T) {
	node := mustNode(t)
	agencyID := node.Generate()

	svc, _, _ := setupRuleService(t, node)
	ctx := agencyctx.WithAgencyID(context.Background(), int64(agencyID))

	if _, err := svc.Get(ctx, "not-a-snowflake"); !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := svc.Get(ctx, node.Generate().String()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListScopedToAgency(t *testing.T) {
	node := mustNode(t)
	agencyID := node.Generate()
	otherID := node.Generate()

	svc, _, _ := setupRuleService(t, node)
	ctx := agencyctx.WithAgencyID(context.Background(), int64(agencyID))
	otherCtx := agencyctx.WithAgencyID(context.Background(), int64(otherID))

	if _, err := svc.Create(ctx, validRule("mine")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(otherCtx, validRule("theirs")); err != nil {
		t.Fatalf("create: %v", err)
	}

	mine, err := svc.List(ctx, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 1 || mine[0].RuleName != "mine" {
		t.Fatalf("expected only own agency rules, got %d", len(mine))
	}
}

func TestListIncludeRetired(t *testing.T) {
	node := mustNode(t)
	agencyID := node.Generate()

	svc, _, _ := setupRuleService(t, node)
	ctx := agencyctx.WithAgencyID(context.Background(), int64(agencyID))

	created, err := svc.Create(ctx, validRule("versioned"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.NewVersion(ctx, created.ID.String(), validRule("versioned")); err != nil {
		t.Fatalf("new version: %v", err)
	}

	live, err := svc.List(ctx, false)
	if err != nil {
		t.Fatalf("list live: %v", err)
	}
	if len(live) != 1 || live[0].Version != 2 {
		t.Fatalf("expected only the live head, got %d rules", len(live))
	}

	all, err := svc.List(ctx, true)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both versions, got %d", len(all))
	}
}

func setupRuleService(t *testing.T, node *snowflake.Node) (domain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	prepareRuleSchema(t, db)

	fake := clock.NewFakeClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Repo:     rulerepo.Provide(),
		Snapshot: cache.NewRuleSnapshotCache(time.Minute),
	})

	return svc, db, fake
}

func prepareRuleSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec(`CREATE TABLE service_rules (
		id BIGINT PRIMARY KEY,
		agency_id BIGINT NOT NULL,
		rule_name TEXT NOT NULL,
		rule_type TEXT NOT NULL,
		calculation_type TEXT NOT NULL,
		value REAL NOT NULL,
		priority INTEGER NOT NULL DEFAULT 100,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		version INTEGER NOT NULL DEFAULT 1,
		retired_at DATETIME,
		conditions TEXT,
		override_settings TEXT,
		effective_date DATETIME NOT NULL,
		expiry_date DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
}

func validRule(name string) domain.CreateRequest {
	return domain.CreateRequest{
		RuleName:        name,
		RuleType:        "markup",
		CalculationType: "fixed",
		Value:           5,
	}
}

func mustNode(t *testing.T, ids ...int64) *snowflake.Node {
	t.Helper()
	nodeID := int64(4)
	if len(ids) > 0 {
		nodeID = ids[0]
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}
