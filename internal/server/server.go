package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/voyagekit/tariff/internal/agency"
	agencydomain "github.com/voyagekit/tariff/internal/agency/domain"
	"github.com/voyagekit/tariff/internal/audit"
	auditdomain "github.com/voyagekit/tariff/internal/audit/domain"
	"github.com/voyagekit/tariff/internal/config"
	"github.com/voyagekit/tariff/internal/evaluation"
	evaluationdomain "github.com/voyagekit/tariff/internal/evaluation/domain"
	"github.com/voyagekit/tariff/internal/observability"
	obslogger "github.com/voyagekit/tariff/internal/observability/logger"
	obsmetrics "github.com/voyagekit/tariff/internal/observability/metrics"
	obstracing "github.com/voyagekit/tariff/internal/observability/tracing"
	"github.com/voyagekit/tariff/internal/override"
	overridedomain "github.com/voyagekit/tariff/internal/override/domain"
	"github.com/voyagekit/tariff/internal/ratelimit"
	"github.com/voyagekit/tariff/internal/rule"
	ruledomain "github.com/voyagekit/tariff/internal/rule/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	agency.Module,
	rule.Module,
	audit.Module,
	evaluation.Module,
	override.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	agencySvc   agencydomain.Service
	ruleSvc     ruledomain.Service
	auditSvc    auditdomain.Service
	evalSvc     evaluationdomain.Service
	overrideSvc overridedomain.Service
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	AgencySvc   agencydomain.Service
	RuleSvc     ruledomain.Service
	AuditSvc    auditdomain.Service
	EvalSvc     evaluationdomain.Service
	OverrideSvc overridedomain.Service
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		agencySvc:   p.AgencySvc,
		ruleSvc:     p.RuleSvc,
		auditSvc:    p.AuditSvc,
		evalSvc:     p.EvalSvc,
		overrideSvc: p.OverrideSvc,
		obsMetrics:  p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")
	api.Use(ActorContext())
	api.Use(s.AgencyContext())

	rules := api.Group("/rules")
	{
		rules.POST("", s.CreateRule)
		rules.GET("", s.ListRules)
		rules.GET("/:id", s.GetRule)
		rules.PUT("/:id", s.UpdateRule)
		rules.DELETE("/:id", s.DeactivateRule)
	}

	api.POST("/evaluations", s.Evaluate)

	applications := api.Group("/applications")
	{
		applications.GET("", s.ListApplications)
		applications.GET("/:id", s.GetApplication)
	}

	overrides := api.Group("/overrides")
	{
		overrides.POST("", s.RequestOverride)
		overrides.GET("", s.ListOverrides)
		overrides.GET("/:id", s.GetOverride)
		overrides.POST("/:id/decision", s.DecideOverride)
	}
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(ActorContext())

	agencies := admin.Group("/agencies")
	{
		agencies.POST("", s.CreateAgency)
		agencies.GET("", s.ListAgencies)
		agencies.GET("/:id", s.GetAgency)
	}

	if s.cfg.Environment != "production" {
		admin.POST("/test-cleanup", s.TestCleanup)
	}
}
