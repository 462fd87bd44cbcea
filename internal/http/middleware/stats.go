package middleware

import (
	"time"

	"github.com/demystify-app/demystify-api/internal/stats"
	"github.com/gin-gonic/gin"
)

// RequestStats records the status and latency of every request that reaches it.
func RequestStats(tracker *stats.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tracker == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		tracker.Record(c.Writer.Status(), time.Since(start))
	}
}
