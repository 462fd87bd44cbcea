package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/demystify-app/demystify-api/internal/settings"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names read by Load.
const (
	EnvConfigPath                = "CONFIG_PATH"
	EnvDBConnection              = "DB_CONNECTION"
	EnvDatabaseURL               = "DATABASE_URL"
	EnvHost                      = "HOST"
	EnvPort                      = "PORT"
	EnvDebug                     = "DEBUG"
	EnvJWTSecret                 = "JWT_SECRET"
	EnvSecretKey                 = "SECRET_KEY"
	EnvJWTExpiry                 = "JWT_EXPIRY"
	EnvGeminiAPIKey              = "GEMINI_API_KEY"
	EnvGeminiModel               = "GEMINI_MODEL"
	EnvGeminiTimeout             = "GEMINI_TIMEOUT"
	EnvRequireAPIKey             = "REQUIRE_API_KEY"
	EnvAPIKeys                   = "API_KEYS"
	EnvEnableRateLimit           = "ENABLE_RATE_LIMIT"
	EnvRateLimitRequests         = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow           = "RATE_LIMIT_WINDOW"
	EnvEnableCache               = "ENABLE_CACHE"
	EnvCacheTTL                  = "CACHE_TTL"
	EnvEnableSecurityHeaders     = "ENABLE_SECURITY_HEADERS"
	EnvCORSOrigins               = "CORS_ORIGINS"
	EnvEncryptionKey             = "ENCRYPTION_KEY"
	EnvGoogleClientID            = "GOOGLE_CLIENT_ID"
	EnvGoogleClientSecret        = "GOOGLE_CLIENT_SECRET"
	EnvGoogleRedirectURI         = "GOOGLE_REDIRECT_URI"
	EnvSMTPServer                = "SMTP_SERVER"
	EnvSMTPPort                  = "SMTP_PORT"
	EnvSMTPUsername              = "SMTP_USERNAME"
	EnvSMTPPassword              = "SMTP_PASSWORD"
	EnvSMTPFromEmail             = "SMTP_FROM_EMAIL"
	EnvSMTPFromName              = "SMTP_FROM_NAME"
	EnvFrontendURL               = "FRONTEND_URL"
	EnvEmailVerificationRequired = "EMAIL_VERIFICATION_REQUIRED"
	EnvLogLevel                  = "LOG_LEVEL"
	EnvLogFormat                 = "LOG_FORMAT"
	EnvLogFile                   = "LOG_FILE"
)

// Config holds resolved application configuration values.
type Config struct {
	ConfigPath string `yaml:"-"`

	Server          ServerConfig     `yaml:"server"`
	DatabaseDSN     string           `yaml:"database-dsn"`
	JWT             JWTConfig        `yaml:"jwt"`
	CORS            CORSConfig       `yaml:"cors"`
	RateLimit       RateLimitConfig  `yaml:"rate-limit"`
	APIKeys         APIKeyConfig     `yaml:"api-keys"`
	Cache           CacheConfig      `yaml:"cache"`
	Gemini          GeminiConfig     `yaml:"gemini"`
	SecurityHeaders bool             `yaml:"security-headers"`
	Encryption      EncryptionConfig `yaml:"encryption"`
	OAuth           OAuthConfig      `yaml:"oauth"`
	SMTP            SMTPConfig       `yaml:"smtp"`
	Logging         LoggingConfig    `yaml:"logging"`
	PersistTimeout  time.Duration    `yaml:"persist-timeout"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// CORSConfig holds cross-origin settings.
type CORSConfig struct {
	Origins          []string `yaml:"origins"`
	AllowCredentials bool     `yaml:"allow-credentials"`
	Methods          []string `yaml:"methods"`
	Headers          []string `yaml:"headers"`
}

// RateLimitConfig holds the global limiter settings.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Requests      int           `yaml:"requests"`
	Window        time.Duration `yaml:"window"`
	MaxIdentities int           `yaml:"max-identities"`
}

// APIKeyConfig holds the API-key gate settings.
type APIKeyConfig struct {
	Required bool     `yaml:"required"`
	Keys     []string `yaml:"keys"`
}

// CacheConfig holds analysis cache settings.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// GeminiConfig holds the upstream model settings.
type GeminiConfig struct {
	APIKey          string        `yaml:"api-key"`
	Model           string        `yaml:"model"`
	BaseURL         string        `yaml:"base-url"`
	Timeout         time.Duration `yaml:"timeout"`
	Temperature     float64       `yaml:"temperature"`
	MaxOutputTokens int           `yaml:"max-output-tokens"`
}

// EncryptionConfig holds the field encryption key.
type EncryptionConfig struct {
	Key string `yaml:"key"`
}

// OAuthConfig holds OAuth provider credentials.
type OAuthConfig struct {
	GoogleClientID     string `yaml:"google-client-id"`
	GoogleClientSecret string `yaml:"google-client-secret"`
	GoogleRedirectURL  string `yaml:"google-redirect-url"`
}

// GoogleEnabled reports whether Google login is configured.
func (o OAuthConfig) GoogleEnabled() bool {
	return strings.TrimSpace(o.GoogleClientID) != "" && strings.TrimSpace(o.GoogleClientSecret) != ""
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Server                    string `yaml:"server"`
	Port                      int    `yaml:"port"`
	Username                  string `yaml:"username"`
	Password                  string `yaml:"password"`
	FromEmail                 string `yaml:"from-email"`
	FromName                  string `yaml:"from-name"`
	FrontendURL               string `yaml:"frontend-url"`
	EmailVerificationRequired bool   `yaml:"email-verification-required"`
}

// Enabled reports whether SMTP credentials are present.
func (s SMTPConfig) Enabled() bool {
	return strings.TrimSpace(s.Username) != "" && strings.TrimSpace(s.Password) != ""
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: settings.DefaultHost,
			Port: settings.DefaultPort,
		},
		JWT: JWTConfig{Expiry: settings.DefaultJWTExpiry},
		CORS: CORSConfig{
			Origins:          append([]string(nil), settings.DefaultCORSOrigins...),
			AllowCredentials: true,
			Methods:          []string{"GET", "POST", "DELETE", "OPTIONS"},
			Headers:          []string{"*"},
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			Requests:      settings.DefaultRateLimitRequests,
			Window:        settings.DefaultRateLimitWindow,
			MaxIdentities: settings.DefaultRateLimitMaxIdentities,
		},
		Cache: CacheConfig{Enabled: true, TTL: settings.DefaultCacheTTL},
		Gemini: GeminiConfig{
			Model:           settings.DefaultGeminiModel,
			BaseURL:         settings.DefaultGeminiBaseURL,
			Timeout:         settings.DefaultGeminiTimeout,
			Temperature:     settings.DefaultTemperature,
			MaxOutputTokens: settings.DefaultMaxOutputTokens,
		},
		SecurityHeaders: true,
		OAuth:           OAuthConfig{GoogleRedirectURL: settings.DefaultGoogleRedirectURL},
		SMTP: SMTPConfig{
			Server:      "smtp.gmail.com",
			Port:        settings.DefaultSMTPPort,
			FromName:    "Demystify App",
			FrontendURL: settings.DefaultFrontendURL,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		PersistTimeout: settings.DefaultPersistTimeout,
	}
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Load reads .env, the optional YAML file and environment overrides.
// A missing config file is not an error; a malformed one is.
func Load(configPath string) (Config, error) {
	_ = godotenv.Load()

	if strings.TrimSpace(configPath) == "" {
		configPath = os.Getenv(EnvConfigPath)
	}
	cfg := Default()
	cfg.ConfigPath = ResolveConfigPath(configPath)

	data, errRead := os.ReadFile(cfg.ConfigPath)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config file: %w", errRead)
	}

	if errEnv := applyEnv(&cfg); errEnv != nil {
		return Config{}, errEnv
	}
	cfg.APIKeys.Keys = normalizeList(cfg.APIKeys.Keys)
	cfg.CORS.Origins = normalizeList(cfg.CORS.Origins)
	if cfg.JWT.Expiry <= 0 {
		cfg.JWT.Expiry = settings.DefaultJWTExpiry
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = settings.DefaultPersistTimeout
	}
	if cfg.RateLimit.MaxIdentities <= 0 {
		cfg.RateLimit.MaxIdentities = settings.DefaultRateLimitMaxIdentities
	}

	if errValidate := cfg.Validate(); errValidate != nil {
		return Config{}, errValidate
	}
	return cfg, nil
}

// Validate checks values that would make the server misbehave.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Requests <= 0 {
			return fmt.Errorf("rate limit requests must be positive, got %d", c.RateLimit.Requests)
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive, got %s", c.RateLimit.Window)
		}
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Gemini.Timeout <= 0 {
		return fmt.Errorf("gemini timeout must be positive, got %s", c.Gemini.Timeout)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Host, EnvHost)
	setString(&cfg.DatabaseDSN, EnvDatabaseURL)
	setString(&cfg.DatabaseDSN, EnvDBConnection)
	setString(&cfg.JWT.Secret, EnvSecretKey)
	setString(&cfg.JWT.Secret, EnvJWTSecret)
	setString(&cfg.Gemini.APIKey, EnvGeminiAPIKey)
	setString(&cfg.Gemini.Model, EnvGeminiModel)
	setString(&cfg.Encryption.Key, EnvEncryptionKey)
	setString(&cfg.OAuth.GoogleClientID, EnvGoogleClientID)
	setString(&cfg.OAuth.GoogleClientSecret, EnvGoogleClientSecret)
	setString(&cfg.OAuth.GoogleRedirectURL, EnvGoogleRedirectURI)
	setString(&cfg.SMTP.Server, EnvSMTPServer)
	setString(&cfg.SMTP.Username, EnvSMTPUsername)
	setString(&cfg.SMTP.Password, EnvSMTPPassword)
	setString(&cfg.SMTP.FromEmail, EnvSMTPFromEmail)
	setString(&cfg.SMTP.FromName, EnvSMTPFromName)
	setString(&cfg.SMTP.FrontendURL, EnvFrontendURL)
	setString(&cfg.Logging.Level, EnvLogLevel)
	setString(&cfg.Logging.Format, EnvLogFormat)
	setString(&cfg.Logging.File, EnvLogFile)
	if cfg.SMTP.FromEmail == "" {
		cfg.SMTP.FromEmail = cfg.SMTP.Username
	}

	if raw := envValue(EnvAPIKeys); raw != "" {
		cfg.APIKeys.Keys = strings.Split(raw, ",")
	}
	if raw := envValue(EnvCORSOrigins); raw != "" {
		cfg.CORS.Origins = strings.Split(raw, ",")
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvPort, &cfg.Server.Port},
		{EnvRateLimitRequests, &cfg.RateLimit.Requests},
		{EnvSMTPPort, &cfg.SMTP.Port},
	}
	for _, item := range ints {
		if errInt := setInt(item.dst, item.key); errInt != nil {
			return errInt
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{EnvDebug, &cfg.Server.Debug},
		{EnvRequireAPIKey, &cfg.APIKeys.Required},
		{EnvEnableRateLimit, &cfg.RateLimit.Enabled},
		{EnvEnableCache, &cfg.Cache.Enabled},
		{EnvEnableSecurityHeaders, &cfg.SecurityHeaders},
		{EnvEmailVerificationRequired, &cfg.SMTP.EmailVerificationRequired},
	}
	for _, item := range bools {
		if errBool := setBool(item.dst, item.key); errBool != nil {
			return errBool
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvJWTExpiry, &cfg.JWT.Expiry},
		{EnvRateLimitWindow, &cfg.RateLimit.Window},
		{EnvCacheTTL, &cfg.Cache.TTL},
		{EnvGeminiTimeout, &cfg.Gemini.Timeout},
	}
	for _, item := range durations {
		if errDuration := setDuration(item.dst, item.key); errDuration != nil {
			return errDuration
		}
	}
	return nil
}

func envValue(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, key string) {
	if value := envValue(key); value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) error {
	raw := envValue(key)
	if raw == "" {
		return nil
	}
	parsed, errParse := strconv.Atoi(raw)
	if errParse != nil {
		return fmt.Errorf("invalid %s: %w", key, errParse)
	}
	*dst = parsed
	return nil
}

func setBool(dst *bool, key string) error {
	raw := envValue(key)
	if raw == "" {
		return nil
	}
	parsed, errParse := strconv.ParseBool(strings.ToLower(raw))
	if errParse != nil {
		return fmt.Errorf("invalid %s: %w", key, errParse)
	}
	*dst = parsed
	return nil
}

// setDuration accepts Go durations ("90s") or a bare number of seconds ("90").
func setDuration(dst *time.Duration, key string) error {
	raw := envValue(key)
	if raw == "" {
		return nil
	}
	if seconds, errAtoi := strconv.Atoi(raw); errAtoi == nil {
		*dst = time.Duration(seconds) * time.Second
		return nil
	}
	parsed, errParse := time.ParseDuration(raw)
	if errParse != nil {
		return fmt.Errorf("invalid %s: %w", key, errParse)
	}
	*dst = parsed
	return nil
}

func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
