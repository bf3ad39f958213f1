package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func authedSession(role Role, grants ...Permission) Session {
	return Session{
		IsAuthenticated: true,
		User: &User{
			UserID:      uuid.New(),
			Email:       "user@example.com",
			Role:        role,
			ExtraGrants: grants,
			IsActive:    true,
		},
		SessionID:        uuid.New(),
		SessionExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestEvaluateUnauthenticatedAlwaysRequiresLogin(t *testing.T) {
	t.Parallel()

	requirements := []RouteRequirement{
		{},
		{AllowedRoles: []Role{RoleAdmin}},
		{RequiredPermissions: []Permission{PermManageUsers}, RequireAll: true},
		{AllowedRoles: []Role{RolePatient}, RequiredPermissions: []Permission{PermViewOwnRecords}},
	}

	for _, req := range requirements {
		d := Evaluate(Anonymous(), req, "/patient/dashboard")
		if d.Kind != DecisionRequiresLogin {
			t.Fatalf("expected requires-login for %+v, got %v", req, d.Kind)
		}
		if d.ReturnPath != "/patient/dashboard" {
			t.Fatalf("expected return path preserved, got %q", d.ReturnPath)
		}
	}
}

func TestEvaluateEmptyRequirementAllowsAnyAuthenticatedRole(t *testing.T) {
	t.Parallel()

	for role := range RolePermissions {
		d := Evaluate(authedSession(role), RouteRequirement{}, "/home")
		if d.Kind != DecisionAllow {
			t.Fatalf("expected allow for role %s, got %v (%s)", role, d.Kind, d.Reason)
		}
	}
}

func TestEvaluateRoleMismatchDeniesRegardlessOfPermissions(t *testing.T) {
	t.Parallel()

	// Admin holds MANAGE_APPOINTMENTS but is not in the allowed roles.
	req := RouteRequirement{
		AllowedRoles:        []Role{RoleDoctor, RoleNurse},
		RequiredPermissions: []Permission{PermManageAppointments},
	}
	d := Evaluate(authedSession(RoleAdmin), req, "/provider/patients")
	if d.Kind != DecisionDeny || d.Reason != DenyRoleMismatch {
		t.Fatalf("expected role-mismatch deny, got %v (%s)", d.Kind, d.Reason)
	}
}

func TestEvaluatePatientDeniedProviderView(t *testing.T) {
	t.Parallel()

	req := RouteRequirement{
		AllowedRoles:        []Role{RoleDoctor, RoleNurse},
		RequiredPermissions: []Permission{PermViewPatientRecords},
	}
	d := Evaluate(authedSession(RolePatient), req, "/provider/patients")
	if d.Kind != DecisionDeny {
		t.Fatalf("expected deny for patient on provider view, got %v", d.Kind)
	}
}

func TestEvaluateAdminWithManageUsersAllowed(t *testing.T) {
	t.Parallel()

	req := RouteRequirement{
		AllowedRoles:        []Role{RoleAdmin},
		RequiredPermissions: []Permission{PermManageUsers},
		RequireAll:          true,
	}
	d := Evaluate(authedSession(RoleAdmin), req, "/admin/users")
	if d.Kind != DecisionAllow {
		t.Fatalf("expected allow, got %v (%s)", d.Kind, d.Reason)
	}
}

func TestEvaluateRequireAllVersusAny(t *testing.T) {
	t.Parallel()

	// Receptionist has SCHEDULE_APPOINTMENTS but not VIEW_BILLING.
	perms := []Permission{PermScheduleAppointments, PermViewBilling}

	anyReq := RouteRequirement{RequiredPermissions: perms}
	if d := Evaluate(authedSession(RoleReceptionist), anyReq, "/x"); d.Kind != DecisionAllow {
		t.Fatalf("expected OR semantics to allow, got %v", d.Kind)
	}

	allReq := RouteRequirement{RequiredPermissions: perms, RequireAll: true}
	d := Evaluate(authedSession(RoleReceptionist), allReq, "/x")
	if d.Kind != DecisionDeny || d.Reason != DenyMissingPermission {
		t.Fatalf("expected AND semantics to deny, got %v (%s)", d.Kind, d.Reason)
	}
}

func TestEvaluateExtraGrantsExtendRolePermissions(t *testing.T) {
	t.Parallel()

	req := RouteRequirement{RequiredPermissions: []Permission{PermViewBilling}, RequireAll: true}

	if d := Evaluate(authedSession(RoleNurse), req, "/billing/invoices"); d.Kind != DecisionDeny {
		t.Fatalf("expected deny without grant, got %v", d.Kind)
	}
	if d := Evaluate(authedSession(RoleNurse, PermViewBilling), req, "/billing/invoices"); d.Kind != DecisionAllow {
		t.Fatalf("expected allow with per-assignment grant, got %v", d.Kind)
	}
}

func TestEvaluateUnknownRoleFailsClosed(t *testing.T) {
	t.Parallel()

	s := authedSession(RoleDoctor)
	s.User.Role = Role("SUPERUSER")
	d := Evaluate(s, RouteRequirement{}, "/home")
	if d.Kind != DecisionDeny || d.Reason != DenyMalformedSession {
		t.Fatalf("expected malformed-session deny, got %v (%s)", d.Kind, d.Reason)
	}
}

func TestEvaluateAuthenticatedWithoutUserFailsClosed(t *testing.T) {
	t.Parallel()

	s := Session{IsAuthenticated: true, SessionExpiresAt: time.Now().Add(time.Hour)}
	d := Evaluate(s, RouteRequirement{}, "/home")
	if d.Kind != DecisionRequiresLogin {
		t.Fatalf("expected requires-login for user-less session, got %v", d.Kind)
	}
}

func TestVacuousPermissionChecks(t *testing.T) {
	t.Parallel()

	perms := EffectivePermissions(RolePatient, nil)
	if !hasAnyPermission(perms, nil) {
		t.Fatalf("hasAnyPermission on empty set should be vacuously true")
	}
	if !hasAllPermissions(perms, nil) {
		t.Fatalf("hasAllPermissions on empty set should be vacuously true")
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	if role, ok := ParseRole("  doctor "); !ok || role != RoleDoctor {
		t.Fatalf("expected DOCTOR, got %s ok=%v", role, ok)
	}
	if _, ok := ParseRole("SUPERUSER"); ok {
		t.Fatalf("expected unknown role to be rejected")
	}
}
