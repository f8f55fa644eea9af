package models

import "time"

// Server maps to the `servers` table. Rows are managed by the admin surface;
// the provisioning core only reads them.
type Server struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Domain       string    `gorm:"column:domain;size:255;uniqueIndex" json:"domain"`
	AuthToken    string    `gorm:"column:auth_token;size:255" json:"-"`
	Name         string    `gorm:"column:name;size:255" json:"name"`
	ResellerOnly bool      `gorm:"column:reseller_only;default:false" json:"reseller_only"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Server) TableName() string {
	return "servers"
}

// DisplayName falls back to the domain when no name is configured.
func (s *Server) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Domain
}
