package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ruledomain "github.com/voyagekit/tariff/internal/rule/domain"
)

func (s *Server) CreateRule(c *gin.Context) {
	var req ruledomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ruleSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListRules(c *gin.Context) {
	includeRetired, err := parseOptionalBool(c.Query("include_retired"))
	if err != nil {
		AbortWithError(c, newValidationError("include_retired", "invalid_request", "invalid boolean"))
		return
	}

	rules, err := s.ruleSvc.List(c.Request.Context(), includeRetired != nil && *includeRetired)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rules})
}

func (s *Server) GetRule(c *gin.Context) {
	resp, err := s.ruleSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// UpdateRule never mutates the stored row. It writes the update as a new
// version and retires the prior one, so historical applications keep
// pointing at the exact rule text that produced them.
func (s *Server) UpdateRule(c *gin.Context) {
	var req ruledomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ruleSvc.NewVersion(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateRule(c *gin.Context) {
	resp, err := s.ruleSvc.Deactivate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
