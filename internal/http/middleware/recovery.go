// Package middleware holds the gin stages of the request pipeline.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/demystify-app/demystify-api/internal/apierror"
	"github.com/demystify-app/demystify-api/internal/stats"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Recovery converts a panic in any later stage into a generic 500 and counts
// it as a failed request.
func Recovery(tracker *stats.Tracker, debugMode bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}
			errPanic := fmt.Errorf("panic: %v", recovered)
			log.WithFields(log.Fields{
				"path":       c.Request.URL.Path,
				"request_id": c.GetString(ContextRequestIDKey),
				"stack":      string(debug.Stack()),
			}).WithError(errPanic).Error("unhandled panic")
			if tracker != nil {
				tracker.RecordError()
			}
			if c.Writer.Written() {
				c.Abort()
				return
			}
			status, body := apierror.Render(errPanic, debugMode)
			c.AbortWithStatusJSON(status, body)
		}()
		c.Next()
	}
}
