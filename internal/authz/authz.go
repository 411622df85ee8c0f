// Package authz holds the acting-user identity and the capability checks the
// core performs on its own, independent of any upstream gate.
package authz

import "strings"

// Roles recognised by the capability checks.
const (
	RoleAdmin     = "admin"
	RoleManager   = "manager"
	RoleInspector = "inspector"
)

// Actor is the identity performing a mutating operation.
type Actor struct {
	ID   string
	Role string
}

// System is the actor used for CLI and scheduled operations.
var System = Actor{ID: "system", Role: RoleAdmin}

// IsPrivileged reports whether the actor holds the admin or manager role.
func (a Actor) IsPrivileged() bool {
	switch strings.ToLower(a.Role) {
	case RoleAdmin, RoleManager:
		return true
	}
	return false
}

// CanDelete reports whether actor may delete an entity created by ownerID.
// Admins and managers may delete anything; everyone else only what they own.
func CanDelete(ownerID string, actor Actor) bool {
	if actor.IsPrivileged() {
		return true
	}
	return actor.ID != "" && actor.ID == ownerID
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch strings.ToLower(role) {
	case RoleAdmin, RoleManager, RoleInspector:
		return true
	}
	return false
}
