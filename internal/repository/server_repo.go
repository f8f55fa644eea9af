package repository

import (
	"gorm.io/gorm"

	"tunnelbot/internal/ledger"
	"tunnelbot/internal/models"
)

// ServerRepository is the read-mostly directory of remote panel servers.
type ServerRepository struct {
	db *gorm.DB
}

func NewServerRepository(db *gorm.DB) *ServerRepository {
	return &ServerRepository{db: db}
}

// FindByID returns a server by id, or ErrNotFound.
func (r *ServerRepository) FindByID(id uint) (*models.Server, error) {
	var srv models.Server
	if err := r.db.Where("id = ?", id).First(&srv).Error; err != nil {
		return nil, translate(err)
	}
	return &srv, nil
}

// FindByDomain returns a server by domain, case-insensitive and trimmed.
func (r *ServerRepository) FindByDomain(domain string) (*models.Server, error) {
	var srv models.Server
	normalized := ledger.NormalizeDomain(domain)
	if err := r.db.Where("LOWER(TRIM(domain)) = ?", normalized).First(&srv).Error; err != nil {
		return nil, translate(err)
	}
	return &srv, nil
}

// FindAll returns all servers.
func (r *ServerRepository) FindAll() ([]models.Server, error) {
	var servers []models.Server
	err := r.db.Order("id").Find(&servers).Error
	return servers, err
}

// Create inserts a new server.
func (r *ServerRepository) Create(srv *models.Server) error {
	return r.db.Create(srv).Error
}

// Update updates server fields.
func (r *ServerRepository) Update(id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.Server{}).Where("id = ?", id).Updates(updates).Error
}

// Delete removes a server.
func (r *ServerRepository) Delete(id uint) error {
	return r.db.Where("id = ?", id).Delete(&models.Server{}).Error
}
