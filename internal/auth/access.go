package auth

import (
	"slices"

	"bookbase/internal/model"
)

// Role policies used by the routes.
var (
	AnyUser          = []model.Role{model.RoleAdmin, model.RoleLibrarian, model.RolePatron}
	LibrarianOrAdmin = []model.Role{model.RoleAdmin, model.RoleLibrarian}
	AdminOnly        = []model.Role{model.RoleAdmin}
)

// Authorize reports whether role is one of allowed.
func Authorize(role model.Role, allowed []model.Role) bool {
	return slices.Contains(allowed, role)
}

// IsPrivileged reports whether the user may see and manage every loan.
func IsPrivileged(user *model.User) bool {
	return user != nil && Authorize(user.Role, LibrarianOrAdmin)
}
