package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type testCleanupRequest struct {
	Prefix string `json:"prefix"`
}

// TestCleanup removes agencies created by integration runs, along with
// everything hanging off them. Registered outside production only.
func (s *Server) TestCleanup(c *gin.Context) {
	if s.cfg.Environment == "production" {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req testCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	prefix := strings.TrimSpace(req.Prefix)
	if prefix == "" {
		AbortWithError(c, newValidationError("prefix", "required", "prefix is required"))
		return
	}

	ctx := c.Request.Context()
	like := prefix + "%"

	var agencyIDs []int64
	if err := s.db.WithContext(ctx).
		Table("agencies").
		Select("id").
		Where("name LIKE ?", like).
		Scan(&agencyIDs).Error; err != nil {
		AbortWithError(c, err)
		return
	}

	if len(agencyIDs) > 0 {
		if err := s.db.WithContext(ctx).Exec(
			`DELETE FROM override_requests WHERE agency_id IN ?`, agencyIDs,
		).Error; err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.db.WithContext(ctx).Exec(
			`DELETE FROM rule_applications WHERE agency_id IN ?`, agencyIDs,
		).Error; err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.db.WithContext(ctx).Exec(
			`DELETE FROM service_rules WHERE agency_id IN ?`, agencyIDs,
		).Error; err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.db.WithContext(ctx).Exec(
			`DELETE FROM agencies WHERE id IN ?`, agencyIDs,
		).Error; err != nil {
			AbortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
