package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/streamrig/streamrig/pkg/models"
)

// listMappings handles GET /api/mappings.
func (s *Server) listMappings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mappings": s.mappings.List()})
}

// getMapping handles GET /api/mappings/:id.
func (s *Server) getMapping(c *gin.Context) {
	m, err := s.mappings.Get(c.Param("id"))
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// upsertMapping handles POST /api/mappings.
func (s *Server) upsertMapping(c *gin.Context) {
	var m models.Mapping
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.mappings.Upsert(c.Request.Context(), &m); err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// upsertMappingByID handles PUT /api/mappings/:id. The path id wins over
// any id in the body.
func (s *Server) upsertMappingByID(c *gin.Context) {
	var m models.Mapping
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m.ID = c.Param("id")
	if err := s.mappings.Upsert(c.Request.Context(), &m); err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// deleteMapping handles DELETE /api/mappings/:id.
func (s *Server) deleteMapping(c *gin.Context) {
	if err := s.mappings.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// setEnabledRequest is the body of PATCH /api/mappings/:id/enabled.
type setEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// setMappingEnabled handles PATCH /api/mappings/:id/enabled.
func (s *Server) setMappingEnabled(c *gin.Context) {
	var req setEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.mappings.SetEnabled(c.Request.Context(), c.Param("id"), *req.Enabled); err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "enabled": *req.Enabled})
}

// exportMappings handles GET /api/mappings/export.
func (s *Server) exportMappings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mappings": s.mappings.Export()})
}

// importRequest is the body of POST /api/mappings/import.
type importMappingsRequest struct {
	Mappings []models.Mapping `json:"mappings" binding:"required"`
}

// importMappings handles POST /api/mappings/import. Invalid entries are
// skipped and reported; valid ones are admitted.
func (s *Server) importMappings(c *gin.Context) {
	var req importMappingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accepted, err := s.mappings.Import(c.Request.Context(), req.Mappings)
	resp := gin.H{"accepted": accepted, "total": len(req.Mappings)}
	if err != nil {
		resp["errors"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
