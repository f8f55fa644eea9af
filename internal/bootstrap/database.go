package bootstrap

import (
	"fmt"

	"gorm.io/gorm"

	"tunnelbot/internal/models"
)

// MigrateAndSeed ensures required tables exist and inserts baseline rows for
// singleton tables.
func MigrateAndSeed(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	if err := ensureDefaultSetting(db); err != nil {
		return fmt.Errorf("seed defaults failed: %w", err)
	}
	return nil
}

func allModels() []interface{} {
	return []interface{}{
		&models.Account{},
		&models.Server{},
		&models.TrialAccess{},
		&models.Reseller{},
		&models.TopUp{},
		&models.Setting{},
	}
}

func ensureDefaultSetting(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Setting{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return db.Create(&models.Setting{TrialEnabled: true}).Error
}
