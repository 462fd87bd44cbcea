package db

import (
	"fmt"

	"github.com/demystify-app/demystify-api/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// migratePostgres applies the schema and PostgreSQL indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Analysis{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return ensureHistoryIndex(conn)
}

// migrateSQLite applies the schema with foreign keys enforced.
func migrateSQLite(conn *gorm.DB) error {
	if errPragma := conn.Exec("PRAGMA foreign_keys=ON").Error; errPragma != nil {
		return fmt.Errorf("db: enable foreign keys: %w", errPragma)
	}
	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Analysis{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return ensureHistoryIndex(conn)
}

// ensureHistoryIndex adds the composite index used by paginated history reads.
func ensureHistoryIndex(conn *gorm.DB) error {
	if errIndex := conn.Exec(
		"CREATE INDEX IF NOT EXISTS idx_analyses_user_created ON analyses (user_id, created_at DESC)",
	).Error; errIndex != nil {
		return fmt.Errorf("db: create history index: %w", errIndex)
	}
	return nil
}
