package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/portal-access/internal/domain"
)

// UserRepository loads and manages portal identities.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (domain.User, error)
	Create(ctx context.Context, params CreateUserParams) (domain.User, error)
	// UpdateRole reassigns the single role; it takes effect on the next
	// navigation, not retroactively on rendered pages.
	UpdateRole(ctx context.Context, userID uuid.UUID, role domain.Role, now time.Time) error
	List(ctx context.Context, limit, offset int) ([]domain.User, error)
}

// CreateUserParams carries the fields an administrator supplies when
// provisioning a portal account.
type CreateUserParams struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         domain.Role
	ExtraGrants  []domain.Permission
	CreatedAtUTC time.Time
}

// SessionCreateParams carries the fields recorded at login time.
type SessionCreateParams struct {
	UserID         uuid.UUID
	IPAddress      string
	UserAgent      string
	ExpiresAt      time.Time
	LastActivityAt time.Time
}

// SessionRepository persists login sessions so revocation and history
// survive process restarts.
type SessionRepository interface {
	Create(ctx context.Context, params SessionCreateParams) (domain.SessionRecord, error)
	GetByID(ctx context.Context, sessionID uuid.UUID) (domain.SessionRecord, error)
	TouchActivity(ctx context.Context, sessionID uuid.UUID, at time.Time) error
	// Extend pushes the expiry forward for a refresh.
	Extend(ctx context.Context, sessionID uuid.UUID, expiresAt time.Time) error
	RevokeByID(ctx context.Context, sessionID uuid.UUID, at time.Time) error
	RevokeAllByUser(ctx context.Context, userID uuid.UUID, at time.Time) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.SessionRecord, error)
}
