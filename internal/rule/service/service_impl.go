package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/voyagekit/tariff/internal/agencyctx"
	"github.com/voyagekit/tariff/internal/cache"
	"github.com/voyagekit/tariff/internal/clock"
	ruledomain "github.com/voyagekit/tariff/internal/rule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     ruledomain.Repository
	Snapshot cache.RuleSnapshotCache
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     ruledomain.Repository
	snapshot cache.RuleSnapshotCache
}

func NewService(p Params) ruledomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("rule.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		snapshot: p.Snapshot,
	}
}

func (s *Service) Create(ctx context.Context, req ruledomain.CreateRequest) (*ruledomain.Response, error) {
	agencyID, ok := agencyctx.AgencyIDFromContext(ctx)
	if !ok || agencyID == 0 {
		return nil, ruledomain.ErrInvalidAgency
	}

	entity, err := s.buildRule(ctx, agencyID, req, 1)
	if err != nil {
		return nil, err
	}

	taken, err := s.ruleNameTaken(ctx, agencyID, entity.RuleName, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ruledomain.ErrDuplicateRuleName
	}

	if err := s.repo.Insert(ctx, s.db, entity); err != nil {
		return nil, err
	}
	s.snapshot.Invalidate(agencyID)

	return toResponse(entity), nil
}

func (s *Service) NewVersion(ctx context.Context, id string, req ruledomain.CreateRequest) (*ruledomain.Response, error) {
	agencyID, ok := agencyctx.AgencyIDFromContext(ctx)
	if !ok || agencyID == 0 {
		return nil, ruledomain.ErrInvalidAgency
	}

	ruleID, err := parseID(id)
	if err != nil {
		return nil, ruledomain.ErrInvalidID
	}

	prior, err := s.repo.FindByID(ctx, s.db, agencyID, ruleID)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		return nil, ruledomain.ErrNotFound
	}
	if prior.RetiredAt != nil {
		return nil, ruledomain.ErrRuleRetired
	}

	// New versions keep the rule's name; everything else comes from the
	// request so a version is a full self-contained definition.
	req.RuleName = prior.RuleName
	entity, err := s.buildRule(ctx, agencyID, req, prior.Version+1)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Retire(ctx, tx, agencyID, prior.ID, now); err != nil {
			return err
		}
		return s.repo.Insert(ctx, tx, entity)
	})
	if err != nil {
		return nil, err
	}
	s.snapshot.Invalidate(agencyID)

	return toResponse(entity), nil
}

func (s *Service) Deactivate(ctx context.Context, id string) (*ruledomain.Response, error) {
	agencyID, ok := agencyctx.AgencyIDFromContext(ctx)
	if !ok || agencyID == 0 {
		return nil, ruledomain.ErrInvalidAgency
	}

	ruleID, err := parseID(id)
	if err != nil {
		return nil, ruledomain.ErrInvalidID
	}

	entity, err := s.repo.FindByID(ctx, s.db, agencyID, ruleID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, ruledomain.ErrNotFound
	}
	if entity.RetiredAt != nil {
		return nil, ruledomain.ErrRuleRetired
	}

	now := s.clock.Now()
	if err := s.repo.Retire(ctx, s.db, agencyID, ruleID, now); err != nil {
		return nil, err
	}
	s.snapshot.Invalidate(agencyID)

	entity.Active = false
	entity.RetiredAt = &now
	entity.UpdatedAt = now
	return toResponse(entity), nil
}

func (s *Service) Get(ctx context.Context, id string) (*ruledomain.Response, error) {
	agencyID, ok := agencyctx.AgencyIDFromContext(ctx)
	if !ok || agencyID == 0 {
		return nil, ruledomain.ErrInvalidAgency
	}

	ruleID, err := parseID(id)
	if err != nil {
		return nil, ruledomain.ErrInvalidID
	}

	entity, err := s.repo.FindByID(ctx, s.db, agencyID, ruleID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, ruledomain.ErrNotFound
	}

	return toResponse(entity), nil
}

func (s *Service) List(ctx context.Context, includeRetired bool) ([]ruledomain.Response, error) {
	agencyID, ok := agencyctx.AgencyIDFromContext(ctx)
	if !ok || agencyID == 0 {
		return nil, ruledomain.ErrInvalidAgency
	}

	items, err := s.repo.List(ctx, s.db, agencyID, includeRetired)
	if err != nil {
		return nil, err
	}

	resp := make([]ruledomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) ListActive(ctx context.Context, asOf time.Time, ruleType *ruledomain.RuleType) ([]ruledomain.ServiceRule, error) {
	agencyID, ok := agencyctx.AgencyIDFromContext(ctx)
	if !ok || agencyID == 0 {
		return nil, ruledomain.ErrInvalidAgency
	}

	current, hit := s.snapshot.Get(agencyID)
	if !hit {
		loaded, err := s.repo.List(ctx, s.db, agencyID, false)
		if err != nil {
			return nil, err
		}
		s.snapshot.Set(agencyID, loaded)
		current = loaded
	}

	asOf = asOf.UTC()
	out := make([]ruledomain.ServiceRule, 0, len(current))
	for _, rule := range current {
		if !rule.EligibleAt(asOf) {
			continue
		}
		if ruleType != nil && rule.RuleType != *ruleType {
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

func (s *Service) buildRule(ctx context.Context, agencyID snowflake.ID, req ruledomain.CreateRequest, version int32) (*ruledomain.ServiceRule, error) {
	name := strings.TrimSpace(req.RuleName)
	if name == "" {
		return nil, ruledomain.ErrInvalidRuleName
	}

	ruleType, err := parseRuleType(req.RuleType)
	if err != nil {
		return nil, err
	}
	calcType, err := parseCalculationType(req.CalculationType)
	if err != nil {
		return nil, err
	}

	if req.Value < 0 {
		return nil, ruledomain.ErrInvalidValue
	}
	if calcType == ruledomain.Percentage && req.Value > 100 {
		return nil, ruledomain.ErrInvalidValue
	}
	if req.OverrideSettings.MaxOverridePercentage < 0 {
		return nil, ruledomain.ErrInvalidOverrideLimit
	}

	now := s.clock.Now()
	effective := now
	if req.EffectiveDate != nil {
		effective = req.EffectiveDate.UTC()
	}
	var expiry *time.Time
	if req.ExpiryDate != nil {
		e := req.ExpiryDate.UTC()
		if e.Before(effective) {
			return nil, ruledomain.ErrInvalidDateRange
		}
		expiry = &e
	}

	priority := int32(100)
	if req.Priority != nil {
		priority = *req.Priority
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	return &ruledomain.ServiceRule{
		ID:               s.genID.Generate(),
		AgencyID:         agencyID,
		RuleName:         name,
		RuleType:         ruleType,
		CalculationType:  calcType,
		Value:            req.Value,
		Priority:         priority,
		Active:           active,
		Version:          version,
		Conditions:       req.Conditions.Normalize(),
		OverrideSettings: req.OverrideSettings,
		EffectiveDate:    effective,
		ExpiryDate:       expiry,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func (s *Service) ruleNameTaken(ctx context.Context, agencyID snowflake.ID, name string, exclude snowflake.ID) (bool, error) {
	items, err := s.repo.List(ctx, s.db, agencyID, false)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.ID == exclude {
			continue
		}
		if strings.EqualFold(item.RuleName, name) {
			return true, nil
		}
	}
	return false, nil
}

func toResponse(r *ruledomain.ServiceRule) *ruledomain.Response {
	return &ruledomain.Response{
		ID:               r.ID,
		AgencyID:         r.AgencyID,
		RuleName:         r.RuleName,
		RuleType:         r.RuleType,
		CalculationType:  r.CalculationType,
		Value:            r.Value,
		Priority:         r.Priority,
		Active:           r.Active,
		Version:          r.Version,
		RetiredAt:        r.RetiredAt,
		Conditions:       r.Conditions,
		OverrideSettings: r.OverrideSettings,
		EffectiveDate:    r.EffectiveDate,
		ExpiryDate:       r.ExpiryDate,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}

func parseRuleType(value ruledomain.RuleType) (ruledomain.RuleType, error) {
	return ruledomain.ParseRuleType(string(value))
}

func parseCalculationType(value ruledomain.CalculationType) (ruledomain.CalculationType, error) {
	switch strings.ToLower(strings.TrimSpace(string(value))) {
	case string(ruledomain.Fixed):
		return ruledomain.Fixed, nil
	case string(ruledomain.Percentage):
		return ruledomain.Percentage, nil
	default:
		return "", ruledomain.ErrInvalidCalculationType
	}
}
