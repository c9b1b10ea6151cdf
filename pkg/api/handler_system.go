package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamrig/streamrig/pkg/ingest"
	"github.com/streamrig/streamrig/pkg/version"
)

// health handles GET /health.
func (s *Server) health(c *gin.Context) {
	resp := gin.H{"status": "healthy", "version": version.Full()}

	if s.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		dbHealth, err := s.store.Health(ctx)
		resp["database"] = dbHealth
		if err != nil {
			resp["status"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}

// ingestEvent handles POST /api/events: one raw ingress event pushed by the
// platform adapter.
func (s *Server) ingestEvent(c *gin.Context) {
	var raw ingest.RawEvent
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accepted, err := s.router.OnEvent(&raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"actions": accepted})
}

// emergencyStopRequest is the body of POST /api/emergency-stop.
type emergencyStopRequest struct {
	Reason string `json:"reason"`
}

// triggerEmergencyStop handles POST /api/emergency-stop.
func (s *Server) triggerEmergencyStop(c *gin.Context) {
	var req emergencyStopRequest
	_ = c.ShouldBindJSON(&req) // body is optional
	if req.Reason == "" {
		req.Reason = "operator request"
	}

	triggered := s.dispatcher.TriggerEmergencyStop(req.Reason)
	c.JSON(http.StatusOK, gin.H{"engaged": true, "transition": triggered})
}

// clearEmergencyStop handles DELETE /api/emergency-stop.
func (s *Server) clearEmergencyStop(c *gin.Context) {
	cleared := s.dispatcher.ClearEmergencyStop()
	c.JSON(http.StatusOK, gin.H{"engaged": false, "transition": cleared})
}

// systemStats handles GET /api/system/stats.
func (s *Server) systemStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"dispatcher": s.dispatcher.Stats(),
		"counters":   s.recorder.Counters(),
		"ws_clients": s.hub.ClientCount(),
	})
}

// recentOutcomes handles GET /api/system/outcomes?limit=N.
func (s *Server) recentOutcomes(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": s.recorder.Recent(limit)})
}

// listDevices handles GET /api/devices.
func (s *Server) listDevices(c *gin.Context) {
	devices, err := s.devices.ListDevices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}
