// internal/domain/models/roles.go
package models

import "strings"

// Canonical role identifiers.
//
// These values are stored in the database in the User.Role field. Every
// authorization decision in the application is derived from them.
const (
	RoleSuperAdmin = "superadmin"
	RoleAdmin      = "admin"
	RoleMember     = "member"
)

// Roles is the full set of allowed role identifiers.
var Roles = []string{RoleSuperAdmin, RoleAdmin, RoleMember}

// IsValidRole reports whether role is one of the canonical roles.
// The comparison is case-insensitive and ignores surrounding whitespace.
func IsValidRole(role string) bool {
	r := strings.ToLower(strings.TrimSpace(role))
	for _, v := range Roles {
		if v == r {
			return true
		}
	}
	return false
}

// IsManager reports whether role is one of the managing roles
// (admin or superadmin).
func IsManager(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}
