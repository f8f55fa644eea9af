package models

// Setting is the singleton runtime-settings row.
type Setting struct {
	ID            uint   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TrialEnabled  bool   `gorm:"column:trial_enabled;default:true" json:"trial_enabled"`
	TrialServerID uint   `gorm:"column:trial_server_id;default:0" json:"trial_server_id"`
	ReportChannel string `gorm:"column:report_channel;size:64" json:"report_channel"`
}

func (Setting) TableName() string {
	return "settings"
}
