package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/voyagekit/tariff/internal/audit/domain"
	"github.com/voyagekit/tariff/pkg/db/pagination"
)

func (s *Server) ListApplications(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	overrideApplied, err := parseOptionalBool(c.Query("override_applied"))
	if err != nil {
		AbortWithError(c, newValidationError("override_applied", "invalid_request", "invalid boolean"))
		return
	}

	startAt, err := parseOptionalTime(c.Query("start_at"), false)
	if err != nil {
		AbortWithError(c, auditdomain.ErrInvalidTimeRange)
		return
	}
	endAt, err := parseOptionalTime(c.Query("end_at"), true)
	if err != nil {
		AbortWithError(c, auditdomain.ErrInvalidTimeRange)
		return
	}

	req := auditdomain.ListRequest{
		RuleID:          strings.TrimSpace(c.Query("rule_id")),
		RuleType:        strings.TrimSpace(c.Query("rule_type")),
		AppliedToType:   strings.TrimSpace(c.Query("applied_to_type")),
		AppliedToID:     strings.TrimSpace(c.Query("applied_to_id")),
		OverrideApplied: overrideApplied,
		StartAt:         startAt,
		EndAt:           endAt,
		Pagination:      page,
	}

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetApplication(c *gin.Context) {
	app, err := s.auditSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": app})
}
