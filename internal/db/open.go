package db

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/demystify-app/demystify-api/internal/settings"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the database addressed by dsn. SQLite DSNs use the pure Go
// driver; everything else is treated as PostgreSQL.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}

	var dialector gorm.Dialector
	if IsSQLiteDSN(trimmed) {
		dialector = sqlite.Open(BuildSQLiteDSN(sqlitePath(trimmed)))
	} else {
		if _, errParse := pgx.ParseConfig(trimmed); errParse != nil {
			return nil, fmt.Errorf("db: parse postgres dsn: %w", errParse)
		}
		dialector = postgres.Open(trimmed)
	}

	conn, errOpen := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if errOpen != nil {
		return nil, fmt.Errorf("db: open: %w", errOpen)
	}
	return conn, nil
}

// Close releases the underlying connection pool.
func Close(conn *gorm.DB) error {
	if conn == nil {
		return nil
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DefaultDSN returns the DSN used when none is configured.
func DefaultDSN() string {
	return BuildSQLiteDSN(settings.DefaultSQLitePath)
}

// BuildSQLiteDSN constructs a SQLite DSN with default pragmas.
func BuildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = settings.DefaultSQLitePath
	}
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join([]string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=foreign_keys(1)",
		"_pragma=synchronous(NORMAL)",
	}, "&")
}

// sqlitePath strips a sqlite:// URL scheme.
func sqlitePath(dsn string) string {
	lowered := strings.ToLower(dsn)
	if strings.HasPrefix(lowered, "sqlite:") {
		rest := dsn[len("sqlite:"):]
		if strings.HasPrefix(rest, "///") {
			return rest[3:]
		}
		return strings.TrimPrefix(rest, "//")
	}
	return dsn
}

// Info describes a DSN without exposing its password.
type Info struct {
	Dialect     string `json:"dialect"`
	Host        string `json:"host,omitempty"`
	Port        int    `json:"port,omitempty"`
	User        string `json:"user,omitempty"`
	Database    string `json:"database,omitempty"`
	SSLMode     string `json:"ssl_mode,omitempty"`
	Path        string `json:"path,omitempty"`
	PasswordSet bool   `json:"password_set"`
}

// Describe summarizes dsn for startup logs.
func Describe(dsn string) (Info, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return Info{}, fmt.Errorf("empty dsn")
	}

	if IsSQLiteDSN(trimmed) {
		pathPart := sqlitePath(trimmed)
		if strings.HasPrefix(strings.ToLower(pathPart), "file:") {
			pathPart = pathPart[len("file:"):]
		}
		pathPart, _, _ = strings.Cut(pathPart, "?")
		return Info{Dialect: DialectSQLite, Path: strings.TrimSpace(pathPart)}, nil
	}

	cfg, errParse := pgx.ParseConfig(trimmed)
	if errParse != nil {
		return Info{}, fmt.Errorf("parse dsn: %w", errParse)
	}
	sslMode := "prefer"
	if u, errURL := url.Parse(trimmed); errURL == nil && u.Scheme != "" {
		if mode := strings.TrimSpace(u.Query().Get("sslmode")); mode != "" {
			sslMode = mode
		}
	} else {
		for _, field := range strings.Fields(trimmed) {
			if value, ok := strings.CutPrefix(field, "sslmode="); ok {
				sslMode = value
			}
		}
	}
	return Info{
		Dialect:     DialectPostgres,
		Host:        cfg.Host,
		Port:        int(cfg.Port),
		User:        cfg.User,
		Database:    cfg.Database,
		SSLMode:     sslMode,
		PasswordSet: cfg.Password != "",
	}, nil
}
