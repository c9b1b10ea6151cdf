package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/streamrig/streamrig/pkg/models"
)

// listPatterns handles GET /api/patterns.
func (s *Server) listPatterns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"patterns": s.patterns.List()})
}

// getPattern handles GET /api/patterns/:id.
func (s *Server) getPattern(c *gin.Context) {
	p, err := s.patterns.Get(c.Param("id"))
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// upsertPattern handles POST /api/patterns.
func (s *Server) upsertPattern(c *gin.Context) {
	var p models.Pattern
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.patterns.Upsert(c.Request.Context(), &p); err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// upsertPatternByID handles PUT /api/patterns/:id.
func (s *Server) upsertPatternByID(c *gin.Context) {
	var p models.Pattern
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p.ID = c.Param("id")
	if err := s.patterns.Upsert(c.Request.Context(), &p); err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// deletePattern handles DELETE /api/patterns/:id.
func (s *Server) deletePattern(c *gin.Context) {
	if err := s.patterns.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// exportPatterns handles GET /api/patterns/export.
func (s *Server) exportPatterns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"patterns": s.patterns.Export()})
}

// importPatternsRequest is the body of POST /api/patterns/import.
type importPatternsRequest struct {
	Patterns []models.Pattern `json:"patterns" binding:"required"`
}

// importPatterns handles POST /api/patterns/import.
func (s *Server) importPatterns(c *gin.Context) {
	var req importPatternsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accepted, err := s.patterns.Import(c.Request.Context(), req.Patterns)
	resp := gin.H{"accepted": accepted, "total": len(req.Patterns)}
	if err != nil {
		resp["errors"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
