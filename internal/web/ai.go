package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/tgienger/taskdemo/internal/categorize"
)

type categorizeRequest struct {
	Text string `json:"text" form:"text"`
}

// handleCategorize accepts JSON, urlencoded or multipart bodies
func (s *Server) handleCategorize(c *gin.Context) {
	var req categorizeRequest
	var err error
	if strings.Contains(c.ContentType(), "json") {
		err = c.ShouldBindJSON(&req)
	} else {
		err = c.ShouldBindWith(&req, binding.Form)
	}
	if err != nil || strings.TrimSpace(req.Text) == "" {
		badRequest(c, "Text is required")
		return
	}

	suggestion, err := s.ai.Categorize(c.Request.Context(), req.Text)
	if errors.Is(err, categorize.ErrUpstream) {
		s.logger.Warn("Categorizer failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "ML service error"})
		return
	}
	if err != nil {
		s.internalError(c, "Failed to categorize", err)
		return
	}
	c.JSON(http.StatusOK, suggestion)
}

func (s *Server) handleAIHealth(c *gin.Context) {
	health, err := s.ai.Health(c.Request.Context())
	if err != nil {
		s.logger.Warn("Categorizer health check failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "ML service error"})
		return
	}
	c.JSON(http.StatusOK, health)
}
