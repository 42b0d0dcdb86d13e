package database

import (
	"fmt"

	"github.com/lkmo/lkmo-backend/internal/models"
	"gorm.io/gorm"
)

// RunMigrations creates or updates every table the service owns. It works on
// postgres and on sqlite.
func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.ResetChallenge{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// Only one unconsumed challenge per email and purpose.
	err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_reset_challenges_active
		ON reset_challenges (email, purpose) WHERE consumed = false`).Error
	if err != nil {
		return fmt.Errorf("create active challenge index: %w", err)
	}

	if db.Dialector.Name() == "postgres" {
		db.Exec(`ALTER TABLE users DROP CONSTRAINT IF EXISTS users_role_check`)
		if err := db.Exec(`ALTER TABLE users ADD CONSTRAINT users_role_check CHECK (role IN ('user', 'admin'))`).Error; err != nil {
			return fmt.Errorf("add role constraint: %w", err)
		}
	}

	return nil
}
