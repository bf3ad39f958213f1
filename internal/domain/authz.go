package domain

// RouteRequirement is the static access requirement attached to a
// navigable portal view. Empty AllowedRoles means any authenticated
// role; empty RequiredPermissions means no permission gate.
type RouteRequirement struct {
	AllowedRoles        []Role
	RequiredPermissions []Permission
	// RequireAll selects AND semantics over RequiredPermissions;
	// false means any one permission suffices.
	RequireAll bool
}

// DecisionKind tags the outcome of an authorization evaluation.
type DecisionKind int

const (
	DecisionAllow DecisionKind = iota
	DecisionDeny
	DecisionRequiresLogin
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionAllow:
		return "allow"
	case DecisionDeny:
		return "deny"
	case DecisionRequiresLogin:
		return "requires_login"
	default:
		return "unknown"
	}
}

// DenyReason is logged but never shown to the user; denial pages stay
// generic so role/permission topology does not leak.
type DenyReason string

const (
	DenyRoleMismatch      DenyReason = "role_mismatch"
	DenyMissingPermission DenyReason = "missing_permission"
	DenyMalformedSession  DenyReason = "malformed_session"
)

// Decision is produced fresh on every evaluation and never persisted.
type Decision struct {
	Kind DecisionKind
	// Reason is set only for DecisionDeny.
	Reason DenyReason
	// ReturnPath is set only for DecisionRequiresLogin so a successful
	// login can resume the original destination.
	ReturnPath string
}

// Evaluate maps (session, requirement) to a decision. It performs no
// I/O and mutates nothing. Ordering is significant: authentication is
// checked before role and role before permissions, so anonymous users
// only ever see a uniform login redirect.
func Evaluate(session Session, req RouteRequirement, path string) Decision {
	if !session.IsAuthenticated || session.User == nil {
		return Decision{Kind: DecisionRequiresLogin, ReturnPath: path}
	}

	user := *session.User
	if _, ok := RolePermissions[user.Role]; !ok {
		return Decision{Kind: DecisionDeny, Reason: DenyMalformedSession}
	}

	if len(req.AllowedRoles) > 0 && !hasAnyRole(user.Role, req.AllowedRoles) {
		return Decision{Kind: DecisionDeny, Reason: DenyRoleMismatch}
	}

	if len(req.RequiredPermissions) > 0 {
		perms := user.Permissions()
		ok := hasAnyPermission(perms, req.RequiredPermissions)
		if req.RequireAll {
			ok = hasAllPermissions(perms, req.RequiredPermissions)
		}
		if !ok {
			return Decision{Kind: DecisionDeny, Reason: DenyMissingPermission}
		}
	}

	return Decision{Kind: DecisionAllow}
}

func hasAnyRole(role Role, allowed []Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

func hasAnyPermission(have map[Permission]bool, want []Permission) bool {
	if len(want) == 0 {
		return true
	}
	for _, p := range want {
		if have[p] {
			return true
		}
	}
	return false
}

func hasAllPermissions(have map[Permission]bool, want []Permission) bool {
	for _, p := range want {
		if !have[p] {
			return false
		}
	}
	return true
}
