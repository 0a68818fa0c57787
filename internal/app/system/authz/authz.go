// internal/app/system/authz/authz.go
package authz

import (
	"net/http"
	"strings"

	"github.com/dalemusser/teamhub/internal/app/system/auth"
	"github.com/dalemusser/teamhub/internal/domain/models"
)

// UserCtx returns the user's role (lowercased), name, uid, and a found flag.
// If no user is present in context it returns "visitor", "", "", false.
func UserCtx(r *http.Request) (role string, name string, uid string, ok bool) {
	user, ok := auth.CurrentUser(r)
	if !ok || user.UID == "" {
		return "visitor", "", "", false
	}
	return strings.ToLower(user.Role), user.Name, user.UID, true
}

// PrincipalFrom returns the principal for the current request.
// The zero Principal (not Authenticated) is returned when nobody is signed in.
func PrincipalFrom(r *http.Request) models.Principal {
	user, ok := auth.CurrentUser(r)
	if !ok {
		return models.Principal{}
	}
	return user.Principal()
}

// Can evaluates the policy for the current request's principal.
func Can(r *http.Request, a Action, t Target) bool {
	return Allowed(PrincipalFrom(r), a, t)
}

// IsSuperAdmin reports whether the current request's user is a superadmin.
func IsSuperAdmin(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == models.RoleSuperAdmin
}

// IsAdmin reports whether the current request's user is an admin.
// Note: Superadmins are also considered admins for permission purposes.
func IsAdmin(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && models.IsManager(role)
}

// IsMember reports whether the current request's user is a member.
func IsMember(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == models.RoleMember
}
