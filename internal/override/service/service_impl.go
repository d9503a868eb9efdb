package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/voyagekit/tariff/internal/agencyctx"
	auditdomain "github.com/voyagekit/tariff/internal/audit/domain"
	"github.com/voyagekit/tariff/internal/clock"
	"github.com/voyagekit/tariff/internal/observability/metrics"
	"github.com/voyagekit/tariff/internal/override/domain"
	ruledomain "github.com/voyagekit/tariff/internal/rule/domain"
	"github.com/voyagekit/tariff/pkg/db"
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
	Repo     domain.Repository
	AuditSvc auditdomain.Service
	RuleSvc  ruledomain.Service
	Metrics  *metrics.Metrics
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	auditSvc auditdomain.Service
	ruleSvc  ruledomain.Service
	metrics  *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("override.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		ruleSvc:  p.RuleSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) Request(ctx context.Context, in domain.RequestInput) (*domain.RequestOutcome, error) {
	agencyID, ok := agencyctx.AgencyIDFromContext(ctx)
	if !ok || agencyID == 0 {
		return nil, domain.ErrInvalidAgency
	}

	if in.RequestedAmount < 0 {
		return nil, domain.ErrInvalidAmount
	}
	if strings.TrimSpace(in.RequestedBy) == "" {
		return nil, domain.ErrInvalidRequester
	}
	if strings.TrimSpace(in.Reason) == "" {
		return nil, domain.ErrInvalidReason
	}

	app, err := s.auditSvc.Get(ctx, in.RuleApplicationID)
	if err != nil {
		if errors.Is(err, auditdomain.ErrNotFound) || errors.Is(err, auditdomain.ErrInvalidID) {
			return nil, domain.ErrApplicationNotFound
		}
		return nil, err
	}
	if app.OverrideApplied {
		return nil, domain.ErrInvalidOverrideState
	}

	// The settings that gate the override are the exact rule version the
	// evaluation applied, retired or not.
	rule, err := s.ruleSvc.Get(ctx, app.RuleID.String())
	if err != nil {
		return nil, err
	}
	settings := rule.OverrideSettings

	if !settings.AllowAgentOverride {
		s.metrics.RecordOverride(ctx, "request", "not_allowed")
		return nil, domain.ErrOverrideNotAllowed
	}

	now := s.clock.Now()

	if settings.RequireApproval {
		// One pending request per ledger row; a second submission has to
		// wait for the first decision. The partial unique index backs
		// this up against concurrent submitters.
		pending, err := s.repo.FindPendingByApplication(ctx, s.db, agencyID, app.ID)
		if err != nil {
			return nil, err
		}
		if pending != nil {
			return nil, domain.ErrOverridePending
		}

		req := s.buildRequest(agencyID, app, in, now, domain.StatusProposed)
		if err := s.repo.Insert(ctx, s.db, req); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return nil, domain.ErrOverridePending
			}
			return nil, err
		}
		s.metrics.RecordOverride(ctx, "request", "proposed")
		return &domain.RequestOutcome{Request: req, Application: app, Pending: true}, nil
	}

	if exceedsLimit(app.CalculatedAmount, in.RequestedAmount, settings.MaxOverridePercentage) {
		s.metrics.RecordOverride(ctx, "request", "exceeds_limit")
		return nil, domain.ErrOverrideExceedsLimit
	}

	updated, err := s.applyToLedger(ctx, app.ID, in.RequestedAmount, in.Reason, in.RequestedBy, now)
	if err != nil {
		return nil, err
	}

	req := s.buildRequest(agencyID, app, in, now, domain.StatusApplied)
	req.DecidedBy = &in.RequestedBy
	req.DecidedAt = &now
	if err := s.repo.Insert(ctx, s.db, req); err != nil {
		// The ledger transition already happened; the trail row is
		// best-effort.
		s.log.Warn("override applied but request row insert failed",
			zap.String("rule_application_id", app.ID.String()),
			zap.Error(err),
		)
	}

	s.metrics.RecordOverride(ctx, "request", "applied")
	return &domain.RequestOutcome{Request: req, Application: updated, Pending: false}, nil
}

func (s *Service) Decide(ctx context.Context, requestID string, in domain.DecideInput) (*auditdomain.RuleApplication, error) {
	agencyID, ok := agencyctx.AgencyIDFromContext(ctx)
	if !ok || agencyID == 0 {
		return nil, domain.ErrInvalidAgency
	}

	status, err := parseDecision(in.Decision)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.DecidedBy) == "" {
		return nil, domain.ErrInvalidRequester
	}

	reqID, err := snowflake.ParseString(requestID)
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	req, err := s.repo.FindByID(ctx, s.db, agencyID, reqID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, domain.ErrRequestNotFound
	}
	if !req.Pending() {
		return nil, domain.ErrInvalidOverrideState
	}

	now := s.clock.Now()
	affected, err := s.repo.Decide(ctx, s.db, agencyID, reqID, domain.Decision{
		Status:    status,
		DecidedBy: in.DecidedBy,
		DecidedAt: now,
		Note:      strings.TrimSpace(in.Note),
	})
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Lost the race against another approver.
		return nil, domain.ErrInvalidOverrideState
	}

	if status == domain.StatusRejected {
		s.metrics.RecordOverride(ctx, "decide", "rejected")
		return s.auditSvc.Get(ctx, req.RuleApplicationID.String())
	}

	updated, err := s.applyToLedger(ctx, req.RuleApplicationID, req.RequestedAmount, req.Reason, req.RequestedBy, now)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOverrideState) {
			// The ledger row was overridden between submission and
			// approval; the approval cannot take effect. Close the
			// request out instead of leaving it stuck in approved.
			if rerr := s.repo.MarkSuperseded(ctx, s.db, agencyID, reqID, now, "rule application already overridden"); rerr != nil {
				s.log.Warn("superseded override request not closed",
					zap.String("override_request_id", reqID.String()),
					zap.Error(rerr),
				)
			}
			s.metrics.RecordOverride(ctx, "decide", "superseded")
		}
		return nil, err
	}
	if err := s.repo.MarkApplied(ctx, s.db, agencyID, reqID, now); err != nil {
		s.log.Warn("override applied but request not marked applied",
			zap.String("override_request_id", reqID.String()),
			zap.Error(err),
		)
	}

	s.metrics.RecordOverride(ctx, "decide", "approved")
	return updated, nil
}

func (s *Service) Get(ctx context.Context, requestID string) (*domain.OverrideRequest, error) {
	agencyID, ok := agencyctx.AgencyIDFromContext(ctx)
	if !ok || agencyID == 0 {
		return nil, domain.ErrInvalidAgency
	}

	reqID, err := snowflake.ParseString(requestID)
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	req, err := s.repo.FindByID(ctx, s.db, agencyID, reqID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, domain.ErrRequestNotFound
	}
	return req, nil
}

func (s *Service) List(ctx context.Context, status string) ([]domain.OverrideRequest, error) {
	agencyID, ok := agencyctx.AgencyIDFromContext(ctx)
	if !ok || agencyID == 0 {
		return nil, domain.ErrInvalidAgency
	}

	var filter *domain.OverrideStatus
	if strings.TrimSpace(status) != "" {
		parsed, err := parseStatus(status)
		if err != nil {
			return nil, err
		}
		filter = &parsed
	}

	return s.repo.ListByStatus(ctx, s.db, agencyID, filter)
}

func (s *Service) buildRequest(
	agencyID snowflake.ID,
	app *auditdomain.RuleApplication,
	in domain.RequestInput,
	now time.Time,
	status domain.OverrideStatus,
) *domain.OverrideRequest {
	return &domain.OverrideRequest{
		ID:                s.genID.Generate(),
		AgencyID:          agencyID,
		RuleApplicationID: app.ID,
		RequestedAmount:   in.RequestedAmount,
		CalculatedAmount:  app.CalculatedAmount,
		Reason:            strings.TrimSpace(in.Reason),
		RequestedBy:       strings.TrimSpace(in.RequestedBy),
		Status:            status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (s *Service) applyToLedger(
	ctx context.Context,
	appID snowflake.ID,
	amount float64,
	reason, by string,
	now time.Time,
) (*auditdomain.RuleApplication, error) {
	updated, err := s.auditSvc.ApplyOverride(ctx, appID.String(), auditdomain.OverrideUpdate{
		FinalAmount: amount,
		Reason:      reason,
		By:          by,
		At:          now,
	})
	if err != nil {
		if errors.Is(err, auditdomain.ErrAlreadyOverridden) {
			return nil, domain.ErrInvalidOverrideState
		}
		return nil, err
	}
	return updated, nil
}

// exceedsLimit checks the deviation percentage against the rule's cap. A
// zero calculated amount only admits a zero override, since any other
// request is an unbounded relative deviation.
func exceedsLimit(calculated, requested, maxPercentage float64) bool {
	if calculated == 0 {
		return requested != 0
	}
	deviation := 100 * math.Abs(requested-calculated) / math.Abs(calculated)
	return deviation > maxPercentage
}

func parseDecision(value string) (domain.OverrideStatus, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(domain.StatusApproved):
		return domain.StatusApproved, nil
	case string(domain.StatusRejected):
		return domain.StatusRejected, nil
	default:
		return "", domain.ErrInvalidDecision
	}
}

func parseStatus(value string) (domain.OverrideStatus, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(domain.StatusProposed):
		return domain.StatusProposed, nil
	case string(domain.StatusApproved):
		return domain.StatusApproved, nil
	case string(domain.StatusRejected):
		return domain.StatusRejected, nil
	case string(domain.StatusApplied):
		return domain.StatusApplied, nil
	default:
		return "", domain.ErrInvalidDecision
	}
}
