package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/voyagekit/tariff/internal/actorctx"
	"github.com/voyagekit/tariff/internal/agencyctx"
)

const (
	HeaderAgency    = "X-Agency-Id"
	HeaderActorID   = "X-Actor-Id"
	HeaderActorType = "X-Actor-Type"
	HeaderRequestID = "X-Request-Id"
)

// AgencyContext resolves the tenant for the request from the X-Agency-Id
// header, falling back to the configured default agency. Requests without
// a resolvable agency are rejected before they reach a service.
func (s *Server) AgencyContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderAgency))

		var agencyID snowflake.ID
		if raw != "" {
			parsed, err := snowflake.ParseString(raw)
			if err != nil || parsed == 0 {
				AbortWithError(c, newValidationError("agency_id", "invalid_agency", "invalid agency id"))
				return
			}
			agencyID = parsed
		} else if s.cfg.DefaultAgencyID != 0 {
			agencyID = snowflake.ID(s.cfg.DefaultAgencyID)
		} else {
			AbortWithError(c, newValidationError("agency_id", "invalid_agency", "agency id is required"))
			return
		}

		ctx := agencyctx.WithAgencyID(c.Request.Context(), int64(agencyID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ActorContext copies the acting principal and correlation metadata from
// request headers into the context for audit records and logs.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if actorID := strings.TrimSpace(c.GetHeader(HeaderActorID)); actorID != "" {
			actorType := strings.TrimSpace(c.GetHeader(HeaderActorType))
			if actorType == "" {
				actorType = "agent"
			}
			ctx = actorctx.WithActor(ctx, actorType, actorID)
		}
		if requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID)); requestID != "" {
			ctx = actorctx.WithRequestID(ctx, requestID)
		}
		ctx = actorctx.WithIPAddress(ctx, c.ClientIP())
		ctx = actorctx.WithUserAgent(ctx, c.Request.UserAgent())

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
