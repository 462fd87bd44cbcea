// Package api registers the HTTP routes.
package api

import (
	"time"

	"github.com/demystify-app/demystify-api/internal/analysis"
	"github.com/demystify-app/demystify-api/internal/auth"
	handlers "github.com/demystify-app/demystify-api/internal/http/api/handlers"
	"github.com/demystify-app/demystify-api/internal/http/middleware"
	"github.com/demystify-app/demystify-api/internal/ratelimit"
	"github.com/demystify-app/demystify-api/internal/stats"
	"github.com/demystify-app/demystify-api/internal/store"
	"github.com/gin-gonic/gin"
)

// RouteLimits are the per-route limiters. Nil members disable their limit.
type RouteLimits struct {
	Login    ratelimit.Limiter
	Register ratelimit.Limiter
	Resend   ratelimit.Limiter
	Analyze  ratelimit.Limiter
}

// Deps carries the services used by the handlers.
type Deps struct {
	Auth          *auth.Service
	Google        *auth.GoogleProvider
	Analysis      *analysis.Service
	History       *store.HistoryStore
	Stats         *stats.Tracker
	Limits        RouteLimits
	StartedAt     time.Time
	SecureCookies bool
	Debug         bool
}

// RegisterRoutes registers every endpoint on r.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil {
		return
	}
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}
	requireUser := auth.RequireUser(deps.Auth, deps.Debug)

	metaHandler := handlers.NewMetaHandler(deps.Analysis, deps.Stats, deps.StartedAt)
	r.GET("/", metaHandler.Root)
	r.GET("/health", metaHandler.Health)

	apiGroup := r.Group("/api")
	apiGroup.GET("/examples", metaHandler.Examples)
	apiGroup.GET("/stats", metaHandler.Stats)
	apiGroup.GET("/cache/stats", metaHandler.CacheStats)
	apiGroup.POST("/cache/clear", requireUser, auth.RequireAdmin(deps.Debug), metaHandler.CacheClear)

	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Google, deps.SecureCookies, deps.Debug)
	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/register", middleware.RouteLimit("register", deps.Limits.Register), authHandler.Register)
	authGroup.POST("/login", middleware.RouteLimit("login", deps.Limits.Login), authHandler.Login)
	authGroup.GET("/me", requireUser, authHandler.Me)
	authGroup.GET("/oauth/status", authHandler.OAuthStatus)
	authGroup.GET("/google/login", authHandler.GoogleLogin)
	authGroup.GET("/google/callback", authHandler.GoogleCallback)
	authGroup.GET("/verify-email", authHandler.VerifyEmail)
	authGroup.POST("/resend-verification", middleware.RouteLimit("resend", deps.Limits.Resend), authHandler.ResendVerification)

	analyzeHandler := handlers.NewAnalyzeHandler(deps.Analysis, deps.Debug)
	apiGroup.POST("/analyze", middleware.RouteLimit("analyze", deps.Limits.Analyze), requireUser, analyzeHandler.Analyze)

	historyHandler := handlers.NewHistoryHandler(deps.History, deps.Debug)
	historyGroup := apiGroup.Group("/history")
	historyGroup.Use(requireUser)
	historyGroup.GET("", historyHandler.List)
	historyGroup.GET("/:id", historyHandler.Get)
	historyGroup.DELETE("/:id", historyHandler.Delete)
}
