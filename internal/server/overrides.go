package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/voyagekit/tariff/internal/actorctx"
	overridedomain "github.com/voyagekit/tariff/internal/override/domain"
)

func (s *Server) RequestOverride(c *gin.Context) {
	var req overridedomain.RequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	if strings.TrimSpace(req.RequestedBy) == "" {
		if _, actorID := actorctx.ActorFromContext(ctx); actorID != "" {
			req.RequestedBy = actorID
		}
	}

	outcome, err := s.overrideSvc.Request(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if outcome.Pending {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"data": outcome})
}

func (s *Server) DecideOverride(c *gin.Context) {
	var req overridedomain.DecideInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	if strings.TrimSpace(req.DecidedBy) == "" {
		if _, actorID := actorctx.ActorFromContext(ctx); actorID != "" {
			req.DecidedBy = actorID
		}
	}

	app, err := s.overrideSvc.Decide(ctx, strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": app})
}

func (s *Server) GetOverride(c *gin.Context) {
	req, err := s.overrideSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": req})
}

func (s *Server) ListOverrides(c *gin.Context) {
	requests, err := s.overrideSvc.List(c.Request.Context(), strings.TrimSpace(c.Query("status")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": requests})
}
