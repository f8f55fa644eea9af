package models

import "time"

// Reseller maps to the `resellers` table. Presence of a row marks the user as
// a registered reseller; policy thresholds are checked on top of registration.
type Reseller struct {
	UserID       string    `gorm:"column:user_id;primaryKey;size:64" json:"user_id"`
	RegisteredAt time.Time `gorm:"column:registered_at" json:"registered_at"`
}

func (Reseller) TableName() string {
	return "resellers"
}

// TopUp maps to the `topups` table — balance top-up bookkeeping consumed by
// the reseller membership check.
type TopUp struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"column:user_id;size:64;index" json:"user_id"`
	Amount    int64     `gorm:"column:amount" json:"amount"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (TopUp) TableName() string {
	return "topups"
}
