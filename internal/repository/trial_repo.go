package repository

import (
	"errors"

	"gorm.io/gorm"

	"tunnelbot/internal/models"
)

// TrialRepository stores per-user trial usage dates.
type TrialRepository struct {
	db *gorm.DB
}

func NewTrialRepository(db *gorm.DB) *TrialRepository {
	return &TrialRepository{db: db}
}

// LastTrialDate returns the stored YYYY-MM-DD date for a user, or "" when the
// user has never taken a trial.
func (r *TrialRepository) LastTrialDate(userID string) (string, error) {
	var row models.TrialAccess
	err := r.db.Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.LastTrialDate, nil
}

// SetTrialDate overwrites the user's trial date. Rows are never deleted.
func (r *TrialRepository) SetTrialDate(userID, date string) error {
	return r.db.Save(&models.TrialAccess{UserID: userID, LastTrialDate: date}).Error
}
