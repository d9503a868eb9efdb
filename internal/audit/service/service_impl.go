package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/voyagekit/tariff/internal/agencyctx"
	"github.com/voyagekit/tariff/internal/audit/domain"
	"github.com/voyagekit/tariff/internal/clock"
	"github.com/voyagekit/tariff/internal/observability/metrics"
	ruledomain "github.com/voyagekit/tariff/internal/rule/domain"
	"github.com/voyagekit/tariff/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// List page size bounds. The form-level validate tag is not enforced by
// gin, so the cap lives here.
const (
	defaultPageSize = 25
	maxPageSize     = 250
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *metrics.Metrics
	Retry   *RetryQueue
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	metrics *metrics.Metrics
	retry   *RetryQueue
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("audit.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
		retry:   p.Retry,
	}
}

func (s *Service) Record(ctx context.Context, in domain.RecordInput) (*domain.RuleApplication, error) {
	agencyID, ok := agencyctx.AgencyIDFromContext(ctx)
	if !ok || agencyID == 0 {
		return nil, domain.ErrInvalidAgency
	}

	ruleID, err := snowflake.ParseString(in.RuleID)
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	now := s.clock.Now()
	appliedAt := in.ApplicationDate
	if appliedAt.IsZero() {
		appliedAt = now
	}

	app := &domain.RuleApplication{
		ID:               s.genID.Generate(),
		AgencyID:         agencyID,
		RuleID:           ruleID,
		RuleName:         in.RuleName,
		RuleType:         in.RuleType,
		AppliedToType:    in.AppliedToType,
		AppliedToID:      in.AppliedToID,
		OriginalAmount:   in.OriginalAmount,
		CalculatedAmount: in.CalculatedAmount,
		FinalAmount:      in.FinalAmount,
		Currency:         in.Currency,
		Context:          datatypes.JSONMap(in.Context),
		ApplicationDate:  appliedAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Insert(ctx, s.db, app); err != nil {
		s.log.Warn("ledger append failed, deferring",
			zap.String("rule_application_id", app.ID.String()),
			zap.Error(err),
		)
		s.retry.Enqueue(app)
		return app, domain.ErrRecordDeferred
	}

	s.metrics.RecordRuleApplication(ctx, string(app.RuleType))
	return app, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.RuleApplication, error) {
	agencyID, ok := agencyctx.AgencyIDFromContext(ctx)
	if !ok || agencyID == 0 {
		return nil, domain.ErrInvalidAgency
	}

	appID, err := snowflake.ParseString(id)
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	app, err := s.repo.FindByID(ctx, s.db, agencyID, appID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, domain.ErrNotFound
	}
	return app, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	agencyID, ok := agencyctx.AgencyIDFromContext(ctx)
	if !ok || agencyID == 0 {
		return nil, domain.ErrInvalidAgency
	}

	filter, err := s.buildFilter(agencyID, req)
	if err != nil {
		return nil, err
	}

	apps, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	apps, pageInfo := pagination.BuildCursorPageInfo(apps, filter.Limit, func(app *domain.RuleApplication) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        app.ID.String(),
			CreatedAt: app.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	return &domain.ListResponse{Applications: apps, PageInfo: pageInfo}, nil
}

func (s *Service) ApplyOverride(ctx context.Context, id string, upd domain.OverrideUpdate) (*domain.RuleApplication, error) {
	agencyID, ok := agencyctx.AgencyIDFromContext(ctx)
	if !ok || agencyID == 0 {
		return nil, domain.ErrInvalidAgency
	}

	appID, err := snowflake.ParseString(id)
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	app, err := s.repo.FindByID(ctx, s.db, agencyID, appID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, domain.ErrNotFound
	}

	if upd.At.IsZero() {
		upd.At = s.clock.Now()
	}

	affected, err := s.repo.ApplyOverride(ctx, s.db, agencyID, appID, upd)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, domain.ErrAlreadyOverridden
	}

	return s.repo.FindByID(ctx, s.db, agencyID, appID)
}

func (s *Service) buildFilter(agencyID snowflake.ID, req domain.ListRequest) (domain.ListFilter, error) {
	filter := domain.ListFilter{
		AgencyID:        agencyID,
		AppliedToType:   req.AppliedToType,
		AppliedToID:     req.AppliedToID,
		OverrideApplied: req.OverrideApplied,
		StartAt:         req.StartAt,
		EndAt:           req.EndAt,
		Limit:           req.Pagination.PageSize,
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}

	if req.RuleID != "" {
		ruleID, err := snowflake.ParseString(req.RuleID)
		if err != nil {
			return domain.ListFilter{}, domain.ErrInvalidID
		}
		filter.RuleID = &ruleID
	}
	if req.RuleType != "" {
		ruleType, err := ruledomain.ParseRuleType(req.RuleType)
		if err != nil {
			return domain.ListFilter{}, err
		}
		filter.RuleType = &ruleType
	}
	if req.StartAt != nil && req.EndAt != nil && req.EndAt.Before(*req.StartAt) {
		return domain.ListFilter{}, domain.ErrInvalidTimeRange
	}

	if req.Pagination.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.Pagination.PageToken)
		if err != nil {
			return domain.ListFilter{}, domain.ErrInvalidPageToken
		}
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListFilter{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return domain.ListFilter{}, domain.ErrInvalidPageToken
		}
		filter.Cursor = &domain.ApplicationCursor{ID: cursorID, CreatedAt: createdAt}
	}

	return filter, nil
}
