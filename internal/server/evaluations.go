package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	evaluationdomain "github.com/voyagekit/tariff/internal/evaluation/domain"
)

func (s *Server) Evaluate(c *gin.Context) {
	var req evaluationdomain.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.evalSvc.Evaluate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
