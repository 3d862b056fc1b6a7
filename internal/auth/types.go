package auth

import (
	"errors"
	"slices"
)

// Role represents an authorisation tier.
type Role string

const (
	// RoleViewer can read selections and live states.
	RoleViewer Role = "viewer"

	// RoleUser can also change selections and call services. Dashboards
	// and couch tablets use this role.
	RoleUser Role = "user"

	// RoleAdmin has full control, including state writes, the entity
	// registry and config entries.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleUser, RoleAdmin}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	return slices.Contains(ValidRoles, r)
}

// Sentinel errors.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role")
)
