package models

// TrialAccess maps to the `trial_access` table: one row per user, overwritten
// on each trial grant. LastTrialDate is a YYYY-MM-DD string so daily
// eligibility is a plain equality check, not a time-window comparison.
type TrialAccess struct {
	UserID        string `gorm:"column:user_id;primaryKey;size:64" json:"user_id"`
	LastTrialDate string `gorm:"column:last_trial_date;size:10" json:"last_trial_date"`
}

func (TrialAccess) TableName() string {
	return "trial_access"
}
