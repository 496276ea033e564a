package db

import (
	"fmt"

	"github.com/bgbm/dnastore/internal/models"
	"gorm.io/gorm"
)

// emailLowerIndex enforces case-insensitive email uniqueness. Expression
// indexes are supported by both PostgreSQL and SQLite.
const emailLowerIndex = "CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users (LOWER(email))"

// Migrate creates or updates all tables. Parents are listed before children so
// foreign keys resolve on both dialects.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.AuthToken{},
		&models.Requester{},
		&models.Request{},
		&models.Metadata{},
		&models.Shipment{},
		&models.Tissue{},
		&models.DnaAliquot{},
		&models.Setting{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	if errIndex := conn.Exec(emailLowerIndex).Error; errIndex != nil {
		return fmt.Errorf("db: migrate: email index: %w", errIndex)
	}
	return nil
}
