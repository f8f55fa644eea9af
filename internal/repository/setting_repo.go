package repository

import (
	"gorm.io/gorm"

	"tunnelbot/internal/models"
)

// SettingRepository reads and writes the singleton settings row.
type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// Get returns the settings row.
func (r *SettingRepository) Get() (*models.Setting, error) {
	var s models.Setting
	if err := r.db.First(&s).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

// Update updates settings fields.
func (r *SettingRepository) Update(updates map[string]interface{}) error {
	return r.db.Model(&models.Setting{}).Where("1 = 1").Updates(updates).Error
}
