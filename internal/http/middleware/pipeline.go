package middleware

import (
	"github.com/demystify-app/demystify-api/internal/access"
	"github.com/demystify-app/demystify-api/internal/config"
	"github.com/demystify-app/demystify-api/internal/ratelimit"
	"github.com/demystify-app/demystify-api/internal/settings"
	"github.com/demystify-app/demystify-api/internal/stats"
	"github.com/gin-gonic/gin"
)

// Deps carries the state shared by pipeline stages. Nil members disable
// their stage.
type Deps struct {
	Stats           *stats.Tracker
	Limiter         ratelimit.Limiter
	Gate            *access.Gate
	CORS            config.CORSConfig
	SecurityHeaders bool
	Debug           bool
}

// Pipeline returns the ordered stages applied before routing.
func Pipeline(deps Deps) []gin.HandlerFunc {
	stages := []gin.HandlerFunc{
		Recovery(deps.Stats, deps.Debug),
		RequestID(),
	}
	if deps.SecurityHeaders {
		stages = append(stages, Security())
	}
	stages = append(stages,
		CORS(deps.CORS),
		RateLimit(deps.Limiter, settings.ExemptRateLimitPaths),
		APIKey(deps.Gate),
		RequestLogging(),
		RequestStats(deps.Stats),
	)
	return stages
}
