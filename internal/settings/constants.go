package settings

import "time"

// Application identity.
const (
	// AppName is the service display name.
	AppName = "De-Mystify API"
	// AppVersion is reported by the root and health endpoints.
	AppVersion = "2.0.0"
	// AppDescription is reported by the root endpoint.
	AppDescription = "REST API that turns ambiguous instructions into concrete tasks using AI"
)

// Defaults applied when config and environment omit a value.
const (
	// DefaultHost is the listen host.
	DefaultHost = "0.0.0.0"
	// DefaultPort is the listen port.
	DefaultPort = 8001
	// DefaultSQLitePath is the SQLite database file used when no DSN is configured.
	DefaultSQLitePath = "demystify.db"
	// DefaultJWTExpiry is the access token lifetime.
	DefaultJWTExpiry = 7 * 24 * time.Hour
	// DefaultRateLimitRequests is the number of requests admitted per window.
	DefaultRateLimitRequests = 60
	// DefaultRateLimitWindow is the trailing rate-limit window.
	DefaultRateLimitWindow = 60 * time.Second
	// DefaultRateLimitMaxIdentities bounds the number of tracked client identities.
	DefaultRateLimitMaxIdentities = 10000
	// DefaultCacheTTL is the analysis cache entry lifetime.
	DefaultCacheTTL = 300 * time.Second
	// DefaultGeminiModel is the generative model name.
	DefaultGeminiModel = "gemini-2.5-flash"
	// DefaultGeminiBaseURL is the Generative Language REST endpoint.
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultGeminiTimeout bounds a single analysis call.
	DefaultGeminiTimeout = 30 * time.Second
	// DefaultTemperature is the generation temperature.
	DefaultTemperature = 0.5
	// DefaultMaxOutputTokens caps generated tokens.
	DefaultMaxOutputTokens = 4096
	// DefaultPersistTimeout bounds the best-effort history write.
	DefaultPersistTimeout = 5 * time.Second
	// DefaultSMTPPort is the SMTP submission port.
	DefaultSMTPPort = 587
	// DefaultFrontendURL is used to build verification links.
	DefaultFrontendURL = "http://localhost:3000"
	// DefaultGoogleRedirectURL is the OAuth callback URL.
	DefaultGoogleRedirectURL = "http://localhost:3000/auth/callback"
	// LatencySampleRetention is the number of latency samples kept for stats.
	LatencySampleRetention = 1000
	// VerificationTokenTTL is the lifetime of an email verification token.
	VerificationTokenTTL = 24 * time.Hour
)

// Text limits for analysis requests.
const (
	// MinTextLength is the minimum analysis input length.
	MinTextLength = 10
	// MaxTextLength is the maximum analysis input length.
	MaxTextLength = 2000
)

// Per-route limits applied on top of the global limiter.
const (
	LoginRouteLimit     = 5
	LoginRouteWindow    = time.Minute
	RegisterRouteLimit  = 3
	RegisterRouteWindow = time.Hour
	ResendRouteLimit    = 3
	ResendRouteWindow   = time.Hour
	AnalyzeRouteLimit   = 10
	AnalyzeRouteWindow  = time.Minute
)

// DefaultCORSOrigins lists the frontend origins allowed by default.
var DefaultCORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// ExemptRateLimitPaths bypass the rate limiter entirely.
var ExemptRateLimitPaths = []string{"/health", "/docs", "/redoc", "/openapi.json"}

// ExemptAPIKeyPaths never require an API key.
var ExemptAPIKeyPaths = []string{"/", "/health", "/docs", "/redoc", "/openapi.json"}

// Example is a predefined task example served by the examples endpoint.
type Example struct {
	Category string
	Text     string
}

// Examples are the predefined example tasks.
var Examples = []Example{
	{Category: "Academic essay", Text: "Write an essay about the Second World War for Friday"},
	{Category: "Market analysis", Text: "For Friday I want an analysis of the current market"},
	{Category: "Software project", Text: "Build an app to manage pending tasks"},
	{Category: "Presentation", Text: "Prepare a presentation about climate change"},
	{Category: "Sales report", Text: "I need sales data showing growth ASAP"},
}
