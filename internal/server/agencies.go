package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	agencydomain "github.com/voyagekit/tariff/internal/agency/domain"
)

func (s *Server) CreateAgency(c *gin.Context) {
	var req agencydomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	agency, err := s.agencySvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": agency})
}

func (s *Server) GetAgency(c *gin.Context) {
	agency, err := s.agencySvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": agency})
}

func (s *Server) ListAgencies(c *gin.Context) {
	agencies, err := s.agencySvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": agencies})
}
