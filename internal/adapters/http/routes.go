package http

import (
	"github.com/carebridge/portal-access/internal/domain"
)

// routeRequirements is the static per-view access table, owned by route
// configuration and never mutated at runtime. Empty AllowedRoles means
// any authenticated role; empty RequiredPermissions means no
// permission gate.
var routeRequirements = map[string]domain.RouteRequirement{
	"/home": {},

	"/patient/dashboard": {
		AllowedRoles: []domain.Role{domain.RolePatient},
	},
	"/patient/records": {
		AllowedRoles:        []domain.Role{domain.RolePatient},
		RequiredPermissions: []domain.Permission{domain.PermViewOwnRecords},
		RequireAll:          true,
	},
	"/patient/appointments": {
		AllowedRoles:        []domain.Role{domain.RolePatient},
		RequiredPermissions: []domain.Permission{domain.PermScheduleAppointments},
		RequireAll:          true,
	},

	"/provider/dashboard": {
		AllowedRoles: []domain.Role{domain.RoleDoctor, domain.RoleNurse},
	},
	"/provider/patients": {
		AllowedRoles:        []domain.Role{domain.RoleDoctor, domain.RoleNurse},
		RequiredPermissions: []domain.Permission{domain.PermViewPatientRecords},
		RequireAll:          true,
	},
	"/provider/prescriptions": {
		AllowedRoles:        []domain.Role{domain.RoleDoctor},
		RequiredPermissions: []domain.Permission{domain.PermPrescribeMedication},
		RequireAll:          true,
	},

	"/billing/invoices": {
		AllowedRoles:        []domain.Role{domain.RoleBillingStaff, domain.RoleAdmin},
		RequiredPermissions: []domain.Permission{domain.PermViewBilling},
		RequireAll:          true,
	},

	"/reception/checkin": {
		AllowedRoles:        []domain.Role{domain.RoleReceptionist},
		RequiredPermissions: []domain.Permission{domain.PermRegisterPatients},
		RequireAll:          true,
	},

	"/admin/users": {
		AllowedRoles:        []domain.Role{domain.RoleAdmin},
		RequiredPermissions: []domain.Permission{domain.PermManageUsers},
		RequireAll:          true,
	},
	// Audit is permission-gated only: any role holding MANAGE_USERS or
	// MANAGE_BILLING may review activity.
	"/admin/audit": {
		RequiredPermissions: []domain.Permission{domain.PermManageUsers, domain.PermManageBilling},
	},
}

// RequirementFor looks up the static requirement for a portal path.
func RequirementFor(path string) (domain.RouteRequirement, bool) {
	req, ok := routeRequirements[path]
	return req, ok
}
