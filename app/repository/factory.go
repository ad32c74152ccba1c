package repository

import (
	"sync"

	"github.com/MartinHagen/Tempora/internal/pkg/database"
	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetUserRepository returns the user repository instance
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

var (
	globalFactory   *Factory
	globalFactoryMu sync.Mutex
)

// GetGlobalFactory returns the process-wide factory, creating it lazily from
// the global database handle.
func GetGlobalFactory() *Factory {
	globalFactoryMu.Lock()
	defer globalFactoryMu.Unlock()
	if globalFactory == nil {
		globalFactory = NewFactory(database.GetDB())
	}
	return globalFactory
}

// SetGlobalFactory overrides the process-wide factory (used by tests)
func SetGlobalFactory(f *Factory) {
	globalFactoryMu.Lock()
	defer globalFactoryMu.Unlock()
	globalFactory = f
}
