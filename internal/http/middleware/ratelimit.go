package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/demystify-app/demystify-api/internal/ratelimit"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitWindow    = "X-RateLimit-Window"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// rateLimitBody is the 429 payload.
type rateLimitBody struct {
	Error      string `json:"error"`
	Detail     string `json:"detail"`
	RetryAfter int    `json:"retry_after"`
}

// RateLimit admits requests through limiter keyed by client identity. Exempt
// paths skip the limiter and leave no ledger entry. A nil limiter disables
// the stage.
func RateLimit(limiter ratelimit.Limiter, exempt []string) gin.HandlerFunc {
	return rateLimitStage(limiter, exempt, "")
}

// RouteLimit applies limiter to a single route on top of the global stage.
func RouteLimit(name string, limiter ratelimit.Limiter) gin.HandlerFunc {
	return rateLimitStage(limiter, nil, name)
}

func rateLimitStage(limiter ratelimit.Limiter, exempt []string, route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || ratelimit.IsExempt(c.Request.URL.Path, exempt) {
			c.Next()
			return
		}
		identity := ratelimit.ClientIdentity(c.Request)
		if route != "" {
			identity = route + ":" + identity
		}
		res := limiter.Admit(identity, time.Now())
		windowSeconds := int(res.Window / time.Second)

		if !res.Allowed {
			log.WithFields(log.Fields{
				"client":      ratelimit.ClientIdentity(c.Request),
				"path":        c.Request.URL.Path,
				"route":       route,
				"retry_after": res.RetryAfter,
			}).Warn("rate limit exceeded")
			c.Header(HeaderRateLimitLimit, strconv.Itoa(res.Limit))
			c.Header(HeaderRateLimitRemaining, "0")
			c.Header(HeaderRateLimitReset, strconv.Itoa(res.RetryAfter))
			c.Header(HeaderRetryAfter, strconv.Itoa(res.RetryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, rateLimitBody{
				Error:      "Rate limit exceeded",
				Detail:     fmt.Sprintf("Maximum %d requests per %d seconds", res.Limit, windowSeconds),
				RetryAfter: res.RetryAfter,
			})
			return
		}

		if route == "" {
			c.Header(HeaderRateLimitLimit, strconv.Itoa(res.Limit))
			c.Header(HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))
			c.Header(HeaderRateLimitWindow, strconv.Itoa(windowSeconds))
		}
		c.Next()
	}
}
