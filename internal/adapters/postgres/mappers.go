package postgres

import (
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/carebridge/portal-access/internal/domain"
)

// toDomainUser keeps the stored role string as-is even when it is not in
// the closed role set; the evaluator fails closed on unknown roles, so a
// bad row denies access rather than breaking loads.
func toDomainUser(row userModel) domain.User {
	return domain.User{
		UserID:       row.UserID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		FirstName:    row.FirstName,
		LastName:     row.LastName,
		Role:         domain.Role(row.Role),
		ExtraGrants:  decodeGrants(row.ExtraGrants),
		IsActive:     row.IsActive,
		DeletedAt:    row.DeletedAt,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func toSessionRecord(row sessionModel) domain.SessionRecord {
	ip := ""
	if row.IPAddress != nil {
		ip = *row.IPAddress
	}
	return domain.SessionRecord{
		SessionID:      row.SessionID,
		UserID:         row.UserID,
		IPAddress:      ip,
		UserAgent:      row.UserAgent,
		CreatedAt:      row.CreatedAt,
		LastActivityAt: row.LastActivityAt,
		ExpiresAt:      row.ExpiresAt,
		RevokedAt:      row.RevokedAt,
	}
}

func decodeGrants(raw string) []domain.Permission {
	if raw == "" || raw == "null" {
		return nil
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil
	}
	grants := make([]domain.Permission, 0, len(names))
	for _, name := range names {
		grants = append(grants, domain.Permission(name))
	}
	return grants
}

func encodeGrants(grants []domain.Permission) string {
	if len(grants) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(grants)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
