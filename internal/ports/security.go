package ports

import (
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/portal-access/internal/domain"
)

// AuthClaims is the verified content of a portal token.
type AuthClaims struct {
	UserID    uuid.UUID
	Email     string
	Role      domain.Role
	SessionID uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
	KeyID     string
}

// TokenSigner signs and validates portal session tokens.
type TokenSigner interface {
	Sign(claims AuthClaims) (string, error)
	ParseAndValidate(raw string) (AuthClaims, error)
	PublicJWKs() ([]map[string]any, error)
}

// PasswordHasher hides the hashing scheme from the application layer.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}
