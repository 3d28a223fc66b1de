package database

import (
	"fmt"

	"github.com/zachsimson/Lockedin/internal/models"

	"gorm.io/gorm"
)

// AutoMigrate runs database schema migrations for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.GamblingEntry{},
		&models.ChatMessage{},
		&models.AppSettings{},
		&models.BlockedDomain{},
		&models.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
