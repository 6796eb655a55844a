// internal/domain/models/roles.go
package models

// System-scoped roles stored on User.SystemRole.
const (
	SystemRoleAdmin = "system_admin"
	SystemRoleUser  = "user"
)

// Organization-scoped roles stored on Member.Role, User.Organizations and
// Organization.Members.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// IsOrgRole reports whether r is one of the organization-scoped roles.
func IsOrgRole(r string) bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// IsManagerRole reports whether r may administer an organization.
func IsManagerRole(r string) bool {
	return r == RoleOwner || r == RoleAdmin
}
