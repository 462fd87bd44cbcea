package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/demystify-app/demystify-api/internal/db"
	"github.com/demystify-app/demystify-api/internal/security"
	"github.com/demystify-app/demystify-api/internal/settings"
	"gopkg.in/yaml.v3"
)

// ErrConfigExists is returned by WriteConfigFile when the target already exists.
var ErrConfigExists = errors.New("config file already exists")

// InitRequest contains the values written to a fresh config file.
type InitRequest struct {
	DatabaseDSN  string
	DatabasePath string
	Port         int
	Debug        bool
}

type configFile struct {
	Server      serverCfg     `yaml:"server"`
	DatabaseDSN string        `yaml:"database-dsn"`
	JWT         jwtCfg        `yaml:"jwt"`
	Encryption  encryptionCfg `yaml:"encryption"`
	Gemini      geminiCfg     `yaml:"gemini"`
}

type serverCfg struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
}

type jwtCfg struct {
	Secret string `yaml:"secret"`
	Expiry string `yaml:"expiry"`
}

type encryptionCfg struct {
	Key string `yaml:"key"`
}

type geminiCfg struct {
	APIKey string `yaml:"api-key"`
	Model  string `yaml:"model"`
}

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// BuildDSN returns the DSN for req, falling back to a SQLite file.
func BuildDSN(req InitRequest) string {
	if dsn := strings.TrimSpace(req.DatabaseDSN); dsn != "" {
		return dsn
	}
	path := strings.TrimSpace(req.DatabasePath)
	if path == "" {
		path = settings.DefaultSQLitePath
	}
	return db.BuildSQLiteDSN(path)
}

// WriteConfigFile writes a starter config with a fresh JWT secret and encryption key.
// It refuses to overwrite an existing file.
func WriteConfigFile(configPath string, req InitRequest) error {
	if ConfigExists(configPath) {
		return fmt.Errorf("%w: %s", ErrConfigExists, configPath)
	}
	if req.Port == 0 {
		req.Port = settings.DefaultPort
	}

	secret, errSecret := security.GenerateRandomString(48)
	if errSecret != nil {
		return fmt.Errorf("generate jwt secret: %w", errSecret)
	}
	key, errKey := security.GenerateKey()
	if errKey != nil {
		return fmt.Errorf("generate encryption key: %w", errKey)
	}

	cfg := configFile{
		Server:      serverCfg{Host: settings.DefaultHost, Port: req.Port, Debug: req.Debug},
		DatabaseDSN: BuildDSN(req),
		JWT:         jwtCfg{Secret: secret, Expiry: settings.DefaultJWTExpiry.String()},
		Encryption:  encryptionCfg{Key: key},
		Gemini:      geminiCfg{Model: settings.DefaultGeminiModel},
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0o755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}
	if errWrite := os.WriteFile(configPath, data, 0o600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}
	return nil
}
