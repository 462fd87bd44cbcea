package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/demystify-app/demystify-api/internal/access"
	"github.com/demystify-app/demystify-api/internal/ai"
	"github.com/demystify-app/demystify-api/internal/analysis"
	"github.com/demystify-app/demystify-api/internal/auth"
	"github.com/demystify-app/demystify-api/internal/cache"
	"github.com/demystify-app/demystify-api/internal/config"
	"github.com/demystify-app/demystify-api/internal/db"
	"github.com/demystify-app/demystify-api/internal/http/api"
	"github.com/demystify-app/demystify-api/internal/http/middleware"
	"github.com/demystify-app/demystify-api/internal/models"
	"github.com/demystify-app/demystify-api/internal/ratelimit"
	"github.com/demystify-app/demystify-api/internal/security"
	"github.com/demystify-app/demystify-api/internal/settings"
	"github.com/demystify-app/demystify-api/internal/stats"
	"github.com/demystify-app/demystify-api/internal/store"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// devJWTSecret signs tokens when no secret is configured. It must not be used in production.
const devJWTSecret = "dev-secret-key-change-in-production"

// App is the assembled service.
type App struct {
	cfg     config.Config
	dsn     string
	conn    *gorm.DB
	engine  *gin.Engine
	users   *store.UserStore
	history *store.HistoryStore
	auth    *auth.Service
	limiter *ratelimit.Ledger
	stats   *stats.Tracker
}

// storage bundles the database handle and the stores built on it.
type storage struct {
	dsn     string
	conn    *gorm.DB
	codec   *security.FieldCipher
	users   *store.UserStore
	history *store.HistoryStore
}

// New builds every component from cfg: database, stores, services, pipeline and routes.
func New(cfg config.Config) (*App, error) {
	secret := jwtSecret(cfg)
	st, errStorage := openStorage(cfg, secret)
	if errStorage != nil {
		return nil, errStorage
	}

	tokens, errTokens := security.NewTokenIssuer(secret, cfg.JWT.Expiry)
	if errTokens != nil {
		_ = db.Close(st.conn)
		return nil, fmt.Errorf("app: %w", errTokens)
	}

	var mailer auth.Mailer
	if smtpMailer := auth.NewSMTPMailer(cfg.SMTP); smtpMailer != nil {
		mailer = smtpMailer
	}
	authSvc := auth.NewService(st.users, tokens, mailer, auth.VerificationConfig{
		Enabled:     cfg.SMTP.Enabled(),
		Required:    cfg.SMTP.EmailVerificationRequired,
		FrontendURL: cfg.SMTP.FrontendURL,
	})
	google := auth.NewGoogleProvider(cfg.OAuth)
	if google == nil {
		log.Warn("google oauth not configured; set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET to enable it")
	}

	analysisSvc := analysis.NewService(analysis.Options{
		Analyzer: buildAnalyzer(cfg.Gemini),
		Cache:    buildCache(cfg.Cache),
		History:  st.history,
		Timeout:  cfg.Gemini.Timeout,
	})

	tracker := stats.NewTracker(settings.LatencySampleRetention)
	gate := buildGate(cfg.APIKeys)

	a := &App{
		cfg:     cfg,
		dsn:     st.dsn,
		conn:    st.conn,
		users:   st.users,
		history: st.history,
		auth:    authSvc,
		stats:   tracker,
	}

	deps := middleware.Deps{
		Stats:           tracker,
		Gate:            gate,
		CORS:            cfg.CORS,
		SecurityHeaders: cfg.SecurityHeaders,
		Debug:           cfg.Server.Debug,
	}
	var limits api.RouteLimits
	if cfg.RateLimit.Enabled {
		a.limiter = ratelimit.NewLedger(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.MaxIdentities)
		deps.Limiter = a.limiter
		limits = buildRouteLimits(cfg.RateLimit.MaxIdentities)
	}

	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(middleware.Pipeline(deps)...)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})
	api.RegisterRoutes(engine, api.Deps{
		Auth:          authSvc,
		Google:        google,
		Analysis:      analysisSvc,
		History:       st.history,
		Stats:         tracker,
		Limits:        limits,
		StartedAt:     time.Now(),
		SecureCookies: !cfg.Server.Debug,
		Debug:         cfg.Server.Debug,
	})
	a.engine = engine
	return a, nil
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.engine }

// Close releases the database connection.
func (a *App) Close() error { return db.Close(a.conn) }

// RunServer serves HTTP until ctx is canceled, then shuts down gracefully.
func RunServer(ctx context.Context, cfg config.Config) error {
	a, errNew := New(cfg)
	if errNew != nil {
		return errNew
	}
	defer func() {
		if errClose := a.Close(); errClose != nil {
			log.WithError(errClose).Warn("close database")
		}
	}()
	a.logStartup(ctx)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down server")
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting %s %s on %s", settings.AppName, settings.AppVersion, srv.Addr)
	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	<-shutdownDone
	return nil
}

// Reencrypt seals legacy plaintext user and history fields in place.
func Reencrypt(ctx context.Context, cfg config.Config) (users int, history int, err error) {
	st, errStorage := openStorage(cfg, jwtSecret(cfg))
	if errStorage != nil {
		return 0, 0, errStorage
	}
	defer func() { _ = db.Close(st.conn) }()

	users, err = st.users.Reencrypt(ctx)
	if err != nil {
		return users, 0, err
	}
	history, err = st.history.Reencrypt(ctx)
	return users, history, err
}

// CreateAdmin creates an administrator account directly in the database.
func CreateAdmin(ctx context.Context, cfg config.Config, in auth.RegisterInput) (*models.User, error) {
	secret := jwtSecret(cfg)
	st, errStorage := openStorage(cfg, secret)
	if errStorage != nil {
		return nil, errStorage
	}
	defer func() { _ = db.Close(st.conn) }()

	tokens, errTokens := security.NewTokenIssuer(secret, cfg.JWT.Expiry)
	if errTokens != nil {
		return nil, fmt.Errorf("app: %w", errTokens)
	}
	return auth.NewService(st.users, tokens, nil, auth.VerificationConfig{}).CreateAdmin(ctx, in)
}

func (a *App) logStartup(ctx context.Context) {
	if info, errDescribe := db.Describe(a.dsn); errDescribe == nil {
		fields := log.Fields{"dialect": info.Dialect}
		if info.Dialect == db.DialectSQLite {
			fields["path"] = info.Path
		} else {
			fields["host"] = info.Host
			fields["port"] = info.Port
			fields["database"] = info.Database
			fields["sslmode"] = info.SSLMode
		}
		log.WithFields(fields).Info("database ready")
	}

	hasAdmin, errAdmin := a.users.HasAdmin(ctx)
	switch {
	case errAdmin != nil:
		log.WithError(errAdmin).Warn("could not check for admin accounts")
	case !hasAdmin:
		log.Warn("no admin account exists; run `demystify create-admin` to create one")
	}

	log.WithFields(log.Fields{
		"rate_limit":       a.cfg.RateLimit.Enabled,
		"api_keys":         a.cfg.APIKeys.Required,
		"cache":            a.cfg.Cache.Enabled,
		"security_headers": a.cfg.SecurityHeaders,
		"email_verify":     a.auth.Verification().Active(),
		"debug":            a.cfg.Server.Debug,
	}).Info("pipeline configured")
}

func openStorage(cfg config.Config, secret string) (*storage, error) {
	dsn := strings.TrimSpace(cfg.DatabaseDSN)
	if dsn == "" {
		dsn = db.DefaultDSN()
	}
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return nil, errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		_ = db.Close(conn)
		return nil, errMigrate
	}
	codec, errCodec := buildCodec(cfg.Encryption, secret)
	if errCodec != nil {
		_ = db.Close(conn)
		return nil, errCodec
	}
	return &storage{
		dsn:     dsn,
		conn:    conn,
		codec:   codec,
		users:   store.NewUserStore(conn, codec),
		history: store.NewHistoryStore(conn, codec, cfg.PersistTimeout),
	}, nil
}

func jwtSecret(cfg config.Config) string {
	if secret := strings.TrimSpace(cfg.JWT.Secret); secret != "" {
		return secret
	}
	log.Warn("JWT secret not configured; using the development secret. Do not use this in production")
	return devJWTSecret
}

func buildCodec(cfg config.EncryptionConfig, secret string) (*security.FieldCipher, error) {
	if key := strings.TrimSpace(cfg.Key); key != "" {
		codec, errKey := security.NewFieldCipher(key)
		if errKey != nil {
			return nil, fmt.Errorf("app: encryption key: %w", errKey)
		}
		return codec, nil
	}
	log.Warn("ENCRYPTION_KEY not set; deriving the field encryption key from the JWT secret")
	return security.DeriveFieldCipher(secret)
}

func buildAnalyzer(cfg config.GeminiConfig) ai.Analyzer {
	if strings.TrimSpace(cfg.APIKey) == "" {
		log.Error("GEMINI_API_KEY not set; the analyze endpoint will answer 503")
		return nil
	}
	client, errClient := ai.NewGemini(cfg.APIKey, cfg.Model,
		ai.WithBaseURL(cfg.BaseURL),
		ai.WithGeneration(cfg.Temperature, cfg.MaxOutputTokens),
	)
	if errClient != nil {
		log.WithError(errClient).Error("failed to initialize the AI service")
		return nil
	}
	log.WithField("model", client.Model()).Info("AI service initialized")
	return client
}

func buildCache(cfg config.CacheConfig) *cache.Cache[analysis.Response] {
	if !cfg.Enabled {
		return nil
	}
	return cache.New[analysis.Response](cfg.TTL)
}

func buildGate(cfg config.APIKeyConfig) *access.Gate {
	if !cfg.Required {
		return nil
	}
	gate := access.NewGate(true, cfg.Keys, settings.ExemptAPIKeyPaths)
	if gate.KeyCount() == 0 {
		log.Warn("API keys are required but none are configured; every protected request will be rejected")
	} else {
		log.WithField("keys", gate.KeyCount()).Info("api key gate enabled")
	}
	return gate
}

func buildRouteLimits(maxIdentities int) api.RouteLimits {
	return api.RouteLimits{
		Login:    ratelimit.NewLedger(settings.LoginRouteLimit, settings.LoginRouteWindow, maxIdentities),
		Register: ratelimit.NewLedger(settings.RegisterRouteLimit, settings.RegisterRouteWindow, maxIdentities),
		Resend:   ratelimit.NewLedger(settings.ResendRouteLimit, settings.ResendRouteWindow, maxIdentities),
		Analyze:  ratelimit.NewLedger(settings.AnalyzeRouteLimit, settings.AnalyzeRouteWindow, maxIdentities),
	}
}
