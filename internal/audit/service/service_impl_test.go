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
	"github.com/voyagekit/tariff/internal/audit/domain"
	auditrepo "github.com/voyagekit/tariff/internal/audit/repository"
	"github.com/voyagekit/tariff/internal/clock"
	"github.com/voyagekit/tariff/internal/config"
	ruledomain "github.com/voyagekit/tariff/internal/rule/domain"
	"github.com/voyagekit/tariff/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestRecordAppendsRow(t *testing.T) {
	node := mustNode(t)
	agencyID := node.Generate()
	ruleID := node.Generate()

	svc, db, _ := setupAuditService(t, node)
	ctx := agencyctx.WithAgencyID(context.Background(), int64(agencyID))

	app, err := svc.Record(ctx, domain.RecordInput{
		RuleID:           ruleID.String(),
		RuleName:         "gds-service-fee",
		RuleType:         ruledomain.ServiceFee,
		AppliedToType:    "booking",
		AppliedToID:      "BK-1001",
		OriginalAmount:   1000,
		CalculatedAmount: 100,
		FinalAmount:      100,
		Currency:         "USD",
		Context:          map[string]interface{}{"supplier": "amadeus"},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if app.ID == 0 {
		t.Fatal("expected generated application id")
	}
	if app.ApplicationDate.IsZero() {
		t.Fatal("expected application date defaulted from clock")
	}

	if count := countApplications(t, db); count != 1 {
		t.Fatalf("expected 1 rule application, got %d", count)
	}

	stored, err := svc.Get(ctx, app.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.RuleName != "gds-service-fee" || stored.CalculatedAmount != 100 {
		t.Fatalf("unexpected stored row: %+v", stored)
	}
	if stored.OverrideApplied {
		t.Fatal("new row must not be marked overridden")
	}
}

func TestRecordWithoutAgencyFails(t *testing.T) {
	node := mustNode(t)
	svc, _, _ := setupAuditService(t, node)

	_, err := svc.Record(context.Background(), domain.RecordInput{RuleID: node.Generate().String()})
	if !errors.Is(err, domain.ErrInvalidAgency) {
		t.Fatalf("expected ErrInvalidAgency, got %v", err)
	}
}

func TestRecordDefersOnStorageFailure(t *testing.T) {
	node := mustNode(t)
	agencyID := node.Generate()

	svc, db, queue := setupAuditService(t, node)
	ctx := agencyctx.WithAgencyID(context.Background(), int64(agencyID))

	// Dropping the table makes the first append fail.
	if err := db.Exec(`DROP TABLE rule_applications`).Error; err != nil {
		t.Fatalf("drop table: %v", err)
	}

	app, err := svc.Record(ctx, domain.RecordInput{
		RuleID:           node.Generate().String(),
		RuleName:         "late-fee",
		RuleType:         ruledomain.ServiceFee,
		AppliedToType:    "booking",
		AppliedToID:      "BK-2002",
		OriginalAmount:   500,
		CalculatedAmount: 25,
		FinalAmount:      25,
		Currency:         "EUR",
	})
	if !errors.Is(err, domain.ErrRecordDeferred) {
		t.Fatalf("expected ErrRecordDeferred, got %v", err)
	}
	if app == nil || app.ID == 0 {
		t.Fatal("deferred record must still return the built row")
	}
	if queue.Depth() != 1 {
		t.Fatalf("expected 1 queued row, got %d", queue.Depth())
	}
}

func TestListNewestFirstWithCursor(t *testing.T) {
	node := mustNode(t)
	agencyID := node.Generate()

	svc, _, _ := setupAuditService(t, node)
	ctx := agencyctx.WithAgencyID(context.Background(), int64(agencyID))

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		recordApplication(t, ctx, svc, node, ruledomain.ServiceFee, base.Add(time.Duration(i)*time.Hour))
	}

	first, err := svc.List(ctx, domain.ListRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(first.Applications) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(first.Applications))
	}
	if !first.PageInfo.HasMore {
		t.Fatal("expected more pages")
	}
	if first.Applications[0].CreatedAt.Before(first.Applications[1].CreatedAt) {
		t.Fatal("expected newest-first ordering")
	}

	second, err := svc.List(ctx, domain.ListRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.PageInfo.NextPageToken},
	})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(second.Applications) != 2 {
		t.Fatalf("expected 2 rows on second page, got %d", len(second.Applications))
	}
	if second.Applications[0].ID == first.Applications[1].ID {
		t.Fatal("second page must start after the first page cursor")
	}

	third, err := svc.List(ctx, domain.ListRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: second.PageInfo.NextPageToken},
	})
	if err != nil {
		t.Fatalf("list third page: %v", err)
	}
	if len(third.Applications) != 1 || third.PageInfo.HasMore {
		t.Fatalf("expected final page of 1, got %d (hasMore=%v)", len(third.Applications), third.PageInfo.HasMore)
	}
}

func TestListFilters(t *testing.T) {
	node := mustNode(t)
	agencyID := node.Generate()

	svc, _, _ := setupAuditService(t, node)
	ctx := agencyctx.WithAgencyID(context.Background(), int64(agencyID))

	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	recordApplication(t, ctx, svc, node, ruledomain.ServiceFee, at)
	recordApplication(t, ctx, svc, node, ruledomain.Commission, at.Add(time.Hour))

	res, err := svc.List(ctx, domain.ListRequest{RuleType: "commission"})
	if err != nil {
		t.Fatalf("list by rule type: %v", err)
	}
	if len(res.Applications) != 1 || res.Applications[0].RuleType != ruledomain.Commission {
		t.Fatalf("expected only commission rows, got %+v", res.Applications)
	}

	start := at.Add(30 * time.Minute)
	res, err = svc.List(ctx, domain.ListRequest{StartAt: &start})
	if err != nil {
		t.Fatalf("list by start: %v", err)
	}
	if len(res.Applications) != 1 {
		t.Fatalf("expected 1 row after %v, got %d", start, len(res.Applications))
	}

	end := at
	_, err = svc.List(ctx, domain.ListRequest{StartAt: &start, EndAt: &end})
	if !errors.Is(err, domain.ErrInvalidTimeRange) {
		t.Fatalf("expected ErrInvalidTimeRange, got %v", err)
	}

	_, err = svc.List(ctx, domain.ListRequest{
		Pagination: pagination.Pagination{PageToken: "not-base64!"},
	})
	if !errors.Is(err, domain.ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestListPageSizeBounds(t *testing.T) {
	node := mustNode(t)
	agencyID := node.Generate()

	svc, _, _ := setupAuditService(t, node)
	impl := svc.(*Service)

	tests := []struct {
		name     string
		pageSize int
		want     int
	}{
		{"zero falls back to default", 0, defaultPageSize},
		{"negative falls back to default", -5, defaultPageSize},
		{"within bounds kept", 40, 40},
		{"at cap kept", maxPageSize, maxPageSize},
		{"beyond cap clamped", 1000000, maxPageSize},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			filter, err := impl.buildFilter(agencyID, domain.ListRequest{
				Pagination: pagination.Pagination{PageSize: tc.pageSize},
			})
			if err != nil {
				t.Fatalf("build filter: %v", err)
			}
			if filter.Limit != tc.want {
				t.Fatalf("page size %d: expected limit %d, got %d", tc.pageSize, tc.want, filter.Limit)
			}
		})
	}
}

func TestListScopedToAgency(t *testing.T) {
	node := mustNode(t)
	agencyA := node.Generate()
	agencyB := node.Generate()

	svc, _, _ := setupAuditService(t, node)
	ctxA := agencyctx.WithAgencyID(context.Background(), int64(agencyA))
	ctxB := agencyctx.WithAgencyID(context.Background(), int64(agencyB))

	recordApplication(t, ctxA, svc, node, ruledomain.Markup, time.Now().UTC())

	res, err := svc.List(ctxB, domain.ListRequest{})
	if err != nil {
		t.Fatalf("list other agency: %v", err)
	}
	if len(res.Applications) != 0 {
		t.Fatalf("expected no rows for other agency, got %d", len(res.Applications))
	}
}

func TestApplyOverrideOnce(t *testing.T) {
	node := mustNode(t)
	agencyID := node.Generate()

	svc, _, _ := setupAuditService(t, node)
	ctx := agencyctx.WithAgencyID(context.Background(), int64(agencyID))

	app := recordApplication(t, ctx, svc, node, ruledomain.ServiceFee, time.Now().UTC())

	updated, err := svc.ApplyOverride(ctx, app.ID.String(), domain.OverrideUpdate{
		FinalAmount: 90,
		Reason:      "loyal corporate client",
		By:          "agent@example.com",
	})
	if err != nil {
		t.Fatalf("apply override: %v", err)
	}
	if !updated.OverrideApplied || updated.FinalAmount != 90 {
		t.Fatalf("expected overridden row, got %+v", updated)
	}
	if updated.OverrideReason == nil || *updated.OverrideReason != "loyal corporate client" {
		t.Fatalf("expected override reason persisted, got %+v", updated.OverrideReason)
	}
	if updated.CalculatedAmount != 100 {
		t.Fatalf("calculated amount must stay untouched, got %v", updated.CalculatedAmount)
	}

	_, err = svc.ApplyOverride(ctx, app.ID.String(), domain.OverrideUpdate{
		FinalAmount: 80,
		Reason:      "second attempt",
		By:          "agent@example.com",
	})
	if !errors.Is(err, domain.ErrAlreadyOverridden) {
		t.Fatalf("expected ErrAlreadyOverridden, got %v", err)
	}
}

func TestGetUnknownApplication(t *testing.T) {
	node := mustNode(t)
	agencyID := node.Generate()

	svc, _, _ := setupAuditService(t, node)
	ctx := agencyctx.WithAgencyID(context.Background(), int64(agencyID))

	_, err := svc.Get(ctx, node.Generate().String())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = svc.Get(ctx, "not-a-snowflake")
	if !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestRetryQueueFlushesParkedRows(t *testing.T) {
	holder := config.NewStaticEngineConfigHolder(config.DefaultEngineConfig())

	var failures int
	queue := newRetryQueue(holder, zap.NewNop(), nil, func(ctx context.Context, app *domain.RuleApplication) error {
		if failures > 0 {
			failures--
			return errors.New("db down")
		}
		return nil
	})

	node := mustNode(t)
	row := &domain.RuleApplication{ID: node.Generate()}

	failures = 1
	queue.park(row)

	flushed, remaining := queue.Flush(context.Background())
	if flushed != 0 || remaining != 1 {
		t.Fatalf("expected row to stay parked, got flushed=%d remaining=%d", flushed, remaining)
	}

	flushed, remaining = queue.Flush(context.Background())
	if flushed != 1 || remaining != 0 {
		t.Fatalf("expected row to flush, got flushed=%d remaining=%d", flushed, remaining)
	}
	if queue.Depth() != 0 {
		t.Fatalf("expected empty queue, got depth %d", queue.Depth())
	}
}

func recordApplication(
	t *testing.T,
	ctx context.Context,
	svc domain.Service,
	node *snowflake.Node,
	ruleType ruledomain.RuleType,
	appliedAt time.Time,
) *domain.RuleApplication {
	t.Helper()
	app, err := svc.Record(ctx, domain.RecordInput{
		RuleID:           node.Generate().String(),
		RuleName:         fmt.Sprintf("rule-%s", ruleType),
		RuleType:         ruleType,
		AppliedToType:    "booking",
		AppliedToID:      node.Generate().String(),
		OriginalAmount:   1000,
		CalculatedAmount: 100,
		FinalAmount:      100,
		Currency:         "USD",
		ApplicationDate:  appliedAt,
	})
	if err != nil {
		t.Fatalf("record %s: %v", ruleType, err)
	}
	return app
}

func setupAuditService(t *testing.T, node *snowflake.Node) (domain.Service, *gorm.DB, *RetryQueue) {
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
	prepareApplicationSchema(t, db)

	repo := auditrepo.Provide()
	holder := config.NewStaticEngineConfigHolder(config.DefaultEngineConfig())
	queue := newRetryQueue(holder, zap.NewNop(), nil, func(ctx context.Context, app *domain.RuleApplication) error {
		return repo.Insert(ctx, db, app)
	})

	fake := clock.NewFakeClock(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repo,
		Retry: queue,
	})

	return svc, db, queue
}

func prepareApplicationSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec(`CREATE TABLE rule_applications (
		id BIGINT PRIMARY KEY,
		agency_id BIGINT NOT NULL,
		rule_id BIGINT NOT NULL,
		rule_name TEXT NOT NULL,
		rule_type TEXT NOT NULL,
		applied_to_type TEXT NOT NULL,
		applied_to_id TEXT NOT NULL,
		original_amount DOUBLE PRECISION NOT NULL,
		calculated_amount DOUBLE PRECISION NOT NULL,
		final_amount DOUBLE PRECISION NOT NULL,
		currency TEXT NOT NULL,
		override_applied BOOLEAN NOT NULL DEFAULT FALSE,
		override_reason TEXT,
		override_by TEXT,
		context TEXT,
		application_date DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create rule_applications: %v", err)
	}
}

func countApplications(t *testing.T, db *gorm.DB) int {
	t.Helper()
	var count int
	if err := db.Raw(`SELECT COUNT(1) FROM rule_applications`).Scan(&count).Error; err != nil {
		t.Fatalf("count rule applications: %v", err)
	}
	return count
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}
