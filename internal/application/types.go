package application

import (
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/portal-access/internal/domain"
)

// Config carries the application-level policy knobs.
type Config struct {
	TokenTTL             time.Duration
	SessionTTL           time.Duration
	SessionAbsoluteTTL   time.Duration
	FailedLoginThreshold int
	LockoutDuration      time.Duration
}

type LoginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	SessionID uuid.UUID `json:"session_id"`
	ExpiresIn int64     `json:"expires_in"`
	Role      string    `json:"role"`
}

type RefreshResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"`
}

// MeResponse is the current-user read surface for UI elements that
// render controls by role or permission.
type MeResponse struct {
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"`
	SessionID   uuid.UUID `json:"session_id"`
	ExpiresAt   time.Time `json:"session_expires_at"`
	Phase       string    `json:"session_phase"`
}

type CreateUserRequest struct {
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Role        string   `json:"role"`
	ExtraGrants []string `json:"extra_grants,omitempty"`
}

type CreateUserResponse struct {
	UserID uuid.UUID `json:"user_id"`
}

type UpdateRoleRequest struct {
	Role string `json:"role"`
}

type UserItem struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type SessionItem struct {
	SessionID      uuid.UUID `json:"session_id"`
	Current        bool      `json:"current"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Revoked        bool      `json:"revoked"`
}

func toUserItem(u domain.User) UserItem {
	return UserItem{
		UserID:    u.UserID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      string(u.Role),
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

func toSessionItem(rec domain.SessionRecord, current uuid.UUID) SessionItem {
	return SessionItem{
		SessionID:      rec.SessionID,
		Current:        rec.SessionID == current,
		IPAddress:      rec.IPAddress,
		UserAgent:      rec.UserAgent,
		CreatedAt:      rec.CreatedAt,
		LastActivityAt: rec.LastActivityAt,
		ExpiresAt:      rec.ExpiresAt,
		Revoked:        rec.RevokedAt != nil,
	}
}
