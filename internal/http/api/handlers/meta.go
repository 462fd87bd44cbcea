package handlers

import (
	"math"
	"net/http"
	"time"

	"github.com/demystify-app/demystify-api/internal/analysis"
	"github.com/demystify-app/demystify-api/internal/auth"
	"github.com/demystify-app/demystify-api/internal/settings"
	"github.com/demystify-app/demystify-api/internal/stats"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// MetaHandler serves service info, health, examples and monitoring endpoints.
type MetaHandler struct {
	analysis  *analysis.Service
	stats     *stats.Tracker
	startedAt time.Time
}

// NewMetaHandler constructs a MetaHandler.
func NewMetaHandler(svc *analysis.Service, tracker *stats.Tracker, startedAt time.Time) *MetaHandler {
	return &MetaHandler{analysis: svc, stats: tracker, startedAt: startedAt}
}

// Root returns service information and the main endpoints.
func (h *MetaHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":     settings.AppName + " is running",
		"description": settings.AppDescription,
		"version":     settings.AppVersion,
		"status":      "online",
		"endpoints": gin.H{
			"health":   "/health",
			"analyze":  "/api/analyze",
			"examples": "/api/examples",
			"stats":    "/api/stats",
			"history":  "/api/history",
			"auth":     "/api/auth",
		},
	})
}

// Health reports whether the analyzer is configured.
func (h *MetaHandler) Health(c *gin.Context) {
	ready := h.analysis.Ready()
	status, aiStatus := "healthy", "ready"
	if !ready {
		status, aiStatus = "degraded", "not initialized"
	}
	uptime := time.Since(h.startedAt).Seconds()
	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"ai_service": aiStatus,
		"version":    settings.AppVersion,
		"uptime":     math.Round(uptime*100) / 100,
	})
}

// Examples returns the predefined example tasks.
func (h *MetaHandler) Examples(c *gin.Context) {
	out := make([]gin.H, 0, len(settings.Examples))
	for _, example := range settings.Examples {
		out = append(out, gin.H{"category": example.Category, "text": example.Text})
	}
	c.JSON(http.StatusOK, gin.H{"examples": out, "total": len(out)})
}

// Stats returns request counters.
func (h *MetaHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.Snapshot())
}

// CacheStats reports the analysis cache state.
func (h *MetaHandler) CacheStats(c *gin.Context) {
	results := h.analysis.Cache()
	if results == nil {
		c.JSON(http.StatusOK, gin.H{"cache_enabled": false, "cache_size": 0, "cache_ttl": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cache_enabled": true,
		"cache_size":    results.Size(),
		"cache_ttl":     int(results.TTL() / time.Second),
	})
}

// CacheClear drops every cached analysis.
func (h *MetaHandler) CacheClear(c *gin.Context) {
	if results := h.analysis.Cache(); results != nil {
		results.Clear()
	}
	log.WithField("user_id", c.GetUint64(auth.ContextUserIDKey)).Info("analysis cache cleared")
	c.JSON(http.StatusOK, gin.H{"message": "Cache cleared"})
}
