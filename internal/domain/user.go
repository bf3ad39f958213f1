package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the canonical portal identity. Exactly one role per user;
// the permission set is derived from the role plus per-assignment
// grants and is read-only to the authorization layer.
type User struct {
	UserID         uuid.UUID
	Email          string
	PasswordHash   string
	FirstName      string
	LastName       string
	Role           Role
	ExtraGrants    []Permission
	IsActive       bool
	DeletedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Permissions returns the user's effective permission set.
func (u User) Permissions() map[Permission]bool {
	return EffectivePermissions(u.Role, u.ExtraGrants)
}

// Session is the authorization-layer view of "who is using the portal
// and are they still validly logged in".
// Invariant: IsAuthenticated implies User is non-nil.
type Session struct {
	IsAuthenticated  bool
	User             *User
	SessionID        uuid.UUID
	SessionExpiresAt time.Time
}

// Anonymous is the unauthenticated session value.
func Anonymous() Session {
	return Session{}
}

// SessionRecord is the persisted login session row, kept separately
// from the in-memory Session so revocation and history survive restarts.
type SessionRecord struct {
	SessionID      uuid.UUID
	UserID         uuid.UUID
	IPAddress      string
	UserAgent      string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
	RevokedAt      *time.Time
}
