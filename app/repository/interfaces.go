package repository

import (
	"github.com/MartinHagen/Tempora/app/models"
	"gorm.io/gorm"
)

// UserRepository defines data access for users and their settings
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	Create(user *models.User) error
	Save(user *models.User) error
}

// Repositories bundles all repository instances
type Repositories struct {
	User UserRepository
}

// NewRepositories creates all repositories with the given database handle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User: NewUserRepository(db),
	}
}
