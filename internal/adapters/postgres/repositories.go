package postgres

import (
	"gorm.io/gorm"

	"github.com/carebridge/portal-access/internal/ports"
)

// Repositories bundles the Postgres-backed port implementations.
type Repositories struct {
	Users    ports.UserRepository
	Sessions ports.SessionRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:    &userRepository{db: db},
		Sessions: &sessionRepository{db: db},
	}
}
