// Package api exposes the admin and ingress HTTP surface: mapping and
// pattern management, event ingress, the emergency stop, system stats, and
// the live WebSocket outcome stream.
package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/streamrig/streamrig/pkg/config"
	"github.com/streamrig/streamrig/pkg/device"
	"github.com/streamrig/streamrig/pkg/events"
	"github.com/streamrig/streamrig/pkg/ingest"
	"github.com/streamrig/streamrig/pkg/queue"
	"github.com/streamrig/streamrig/pkg/services"
	"github.com/streamrig/streamrig/pkg/store"
)

// Dispatcher is the pool surface the API needs.
type Dispatcher interface {
	TriggerEmergencyStop(reason string) bool
	ClearEmergencyStop() bool
	Stats() queue.PoolStats
}

// DeviceLister fetches the device inventory from the backend.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]device.Device, error)
}

// Server wires the HTTP handlers to the services and engines.
type Server struct {
	cfg        *config.ServerConfig
	mappings   *services.MappingService
	patterns   *services.PatternService
	router     *ingest.Router
	dispatcher Dispatcher
	devices    DeviceLister
	recorder   *events.Recorder
	hub        *events.Hub
	store      *store.Store // nil when persistence is disabled
}

// NewServer creates the API server. store may be nil.
func NewServer(
	cfg *config.ServerConfig,
	mappings *services.MappingService,
	patterns *services.PatternService,
	router *ingest.Router,
	dispatcher Dispatcher,
	devices DeviceLister,
	recorder *events.Recorder,
	hub *events.Hub,
	st *store.Store,
) *Server {
	return &Server{
		cfg:        cfg,
		mappings:   mappings,
		patterns:   patterns,
		router:     router,
		dispatcher: dispatcher,
		devices:    devices,
		recorder:   recorder,
		hub:        hub,
		store:      st,
	}
}

// Routes builds the gin engine with all routes registered.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), securityHeaders())

	r.GET("/health", s.health)

	api := r.Group("/api")
	{
		api.POST("/events", s.ingestEvent)

		api.GET("/mappings", s.listMappings)
		api.POST("/mappings", s.upsertMapping)
		api.GET("/mappings/export", s.exportMappings)
		api.POST("/mappings/import", s.importMappings)
		api.GET("/mappings/:id", s.getMapping)
		api.PUT("/mappings/:id", s.upsertMappingByID)
		api.DELETE("/mappings/:id", s.deleteMapping)
		api.PATCH("/mappings/:id/enabled", s.setMappingEnabled)

		api.GET("/patterns", s.listPatterns)
		api.POST("/patterns", s.upsertPattern)
		api.GET("/patterns/export", s.exportPatterns)
		api.POST("/patterns/import", s.importPatterns)
		api.GET("/patterns/:id", s.getPattern)
		api.PUT("/patterns/:id", s.upsertPatternByID)
		api.DELETE("/patterns/:id", s.deletePattern)

		api.POST("/emergency-stop", s.triggerEmergencyStop)
		api.DELETE("/emergency-stop", s.clearEmergencyStop)

		api.GET("/system/stats", s.systemStats)
		api.GET("/system/outcomes", s.recentOutcomes)
		api.GET("/devices", s.listDevices)

		api.GET("/ws", s.wsHandler)
	}

	return r
}
