// internal/domain/models/principal.go
package models

// Principal is the authenticated actor performing an action.
//
// It is resolved from a raw identity (uid, email) at sign-in and refreshed
// from the users collection on each request, so role changes take effect
// immediately. Components treat it as read-only.
type Principal struct {
	UID        string
	Email      string
	Name       string
	Role       string
	Department string
}

// Authenticated reports whether p carries an identity and a canonical role.
func (p Principal) Authenticated() bool {
	if p.UID == "" {
		return false
	}
	for _, r := range Roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// PrincipalOf builds the principal for a stored user.
func PrincipalOf(u User) Principal {
	return Principal{
		UID:        u.UID,
		Email:      u.Email,
		Name:       u.Name(),
		Role:       u.Role,
		Department: u.Department,
	}
}
