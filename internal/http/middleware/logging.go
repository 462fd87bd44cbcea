package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// HeaderProcessTime reports handler latency in seconds.
const HeaderProcessTime = "X-Process-Time"

// contextUserIDKey matches the key set by the auth middleware.
const contextUserIDKey = "userID"

// RequestLogging logs one entry per request and sets X-Process-Time.
func RequestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Writer = &processTimeWriter{ResponseWriter: c.Writer, start: start}
		c.Next()
		latency := time.Since(start)

		fields := log.Fields{
			"method":     c.Request.Method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency_ms": float64(latency.Microseconds()) / 1000,
			"request_id": c.GetString(ContextRequestIDKey),
			"client_ip":  c.ClientIP(),
		}
		if userID, ok := c.Get(contextUserIDKey); ok {
			fields["user_id"] = userID
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}
		entry := log.WithFields(fields)
		status := c.Writer.Status()
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request completed")
		case status >= http.StatusBadRequest:
			entry.Warn("request completed")
		default:
			entry.Info("request completed")
		}
	}
}

// processTimeWriter stamps X-Process-Time at the moment headers are flushed.
type processTimeWriter struct {
	gin.ResponseWriter
	start time.Time
}

func (w *processTimeWriter) stamp() {
	if !w.ResponseWriter.Written() {
		w.ResponseWriter.Header().Set(HeaderProcessTime, fmt.Sprintf("%.4f", time.Since(w.start).Seconds()))
	}
}

func (w *processTimeWriter) WriteHeader(code int) {
	w.stamp()
	w.ResponseWriter.WriteHeader(code)
}

func (w *processTimeWriter) WriteHeaderNow() {
	w.stamp()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *processTimeWriter) Write(data []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(data)
}

func (w *processTimeWriter) WriteString(s string) (int, error) {
	w.stamp()
	return w.ResponseWriter.WriteString(s)
}
