package repository

import (
	"time"

	"gorm.io/gorm"

	"tunnelbot/internal/models"
)

// ResellerRepository stores reseller registrations and top-up bookkeeping.
type ResellerRepository struct {
	db *gorm.DB
}

func NewResellerRepository(db *gorm.DB) *ResellerRepository {
	return &ResellerRepository{db: db}
}

// IsRegistered reports whether the user has a reseller registration row.
func (r *ResellerRepository) IsRegistered(userID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Reseller{}).Where("user_id = ?", userID).Count(&count).Error
	return count > 0, err
}

// Register creates a reseller registration row if one does not exist.
func (r *ResellerRepository) Register(userID string) error {
	var count int64
	if err := r.db.Model(&models.Reseller{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return r.db.Create(&models.Reseller{UserID: userID, RegisteredAt: time.Now()}).Error
}

// RecordTopUp appends a top-up entry for a user.
func (r *ResellerRepository) RecordTopUp(userID string, amount int64) error {
	return r.db.Create(&models.TopUp{UserID: userID, Amount: amount, CreatedAt: time.Now()}).Error
}

// TopUpTotal sums all top-ups for a user.
func (r *ResellerRepository) TopUpTotal(userID string) (int64, error) {
	var total int64
	err := r.db.Model(&models.TopUp{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}
