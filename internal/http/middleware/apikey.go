package middleware

import (
	"net/http"
	"time"

	"github.com/demystify-app/demystify-api/internal/access"
	"github.com/demystify-app/demystify-api/internal/apierror"
	"github.com/gin-gonic/gin"
)

// APIKey enforces gate decisions. A nil gate disables the stage.
func APIKey(gate *access.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if gate == nil {
			c.Next()
			return
		}
		decision := gate.Authorize(c.Request)
		if decision.Pass {
			c.Next()
			return
		}
		if decision.Status == http.StatusUnauthorized {
			c.Header("WWW-Authenticate", "ApiKey")
		}
		c.AbortWithStatusJSON(decision.Status, apierror.Body{
			Error:     decision.Reason,
			Detail:    decision.Detail,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}
