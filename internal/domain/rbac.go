package domain

import "strings"

// Role is the single role assigned to a portal user for the lifetime
// of a session.
type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleDoctor       Role = "DOCTOR"
	RoleNurse        Role = "NURSE"
	RolePatient      Role = "PATIENT"
	RoleBillingStaff Role = "BILLING_STAFF"
	RoleReceptionist Role = "RECEPTIONIST"
)

// Permission is an enumerated capability token. Routes may require
// permissions independently of roles.
type Permission string

const (
	PermViewPatientRecords   Permission = "VIEW_PATIENT_RECORDS"
	PermEditPatientRecords   Permission = "EDIT_PATIENT_RECORDS"
	PermPrescribeMedication  Permission = "PRESCRIBE_MEDICATION"
	PermManageAppointments   Permission = "MANAGE_APPOINTMENTS"
	PermScheduleAppointments Permission = "SCHEDULE_APPOINTMENTS"
	PermViewOwnRecords       Permission = "VIEW_OWN_RECORDS"
	PermViewBilling          Permission = "VIEW_BILLING"
	PermManageBilling        Permission = "MANAGE_BILLING"
	PermRegisterPatients     Permission = "REGISTER_PATIENTS"
	PermManageUsers          Permission = "MANAGE_USERS"
)

// RolePermissions maps each role to its base permission set. Per-user
// grant overrides are merged on top by EffectivePermissions.
var RolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermManageUsers,
		PermViewPatientRecords,
		PermManageAppointments,
		PermViewBilling,
		PermManageBilling,
	},
	RoleDoctor: {
		PermViewPatientRecords,
		PermEditPatientRecords,
		PermPrescribeMedication,
		PermManageAppointments,
	},
	RoleNurse: {
		PermViewPatientRecords,
		PermEditPatientRecords,
		PermManageAppointments,
	},
	RolePatient: {
		PermViewOwnRecords,
		PermScheduleAppointments,
	},
	RoleBillingStaff: {
		PermViewBilling,
		PermManageBilling,
	},
	RoleReceptionist: {
		PermRegisterPatients,
		PermScheduleAppointments,
		PermManageAppointments,
	},
}

// ParseRole validates a stored role name against the closed role set.
func ParseRole(name string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(name)))
	_, ok := RolePermissions[role]
	return role, ok
}

// EffectivePermissions resolves the read-only permission set for a role
// plus per-assignment grant overrides. Unknown roles resolve to an empty
// set so downstream checks fail closed.
func EffectivePermissions(role Role, overrides []Permission) map[Permission]bool {
	perms := make(map[Permission]bool, len(RolePermissions[role])+len(overrides))
	for _, p := range RolePermissions[role] {
		perms[p] = true
	}
	for _, p := range overrides {
		perms[p] = true
	}
	return perms
}
