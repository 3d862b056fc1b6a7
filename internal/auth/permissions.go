package auth

import "slices"

// Permission names one capability checked by the API.
type Permission string

const (
	PermSelectionRead  Permission = "selection:read"
	PermSelectionWrite Permission = "selection:write"
	PermStateRead      Permission = "state:read"
	PermStateWrite     Permission = "state:write"
	PermServiceCall    Permission = "service:call"
	PermRegistryManage Permission = "registry:manage"
	PermConfigManage   Permission = "config:manage"
)

// Each role inherits everything below it.
var (
	viewerPerms = []Permission{PermSelectionRead, PermStateRead}
	userPerms   = slices.Concat(viewerPerms, []Permission{PermSelectionWrite, PermServiceCall})
	adminPerms  = slices.Concat(userPerms, []Permission{PermStateWrite, PermRegistryManage, PermConfigManage})
)

var rolePermissions = map[Role][]Permission{
	RoleViewer: viewerPerms,
	RoleUser:   userPerms,
	RoleAdmin:  adminPerms,
}

// HasPermission reports whether role grants perm. Unknown roles grant nothing.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// PermissionsForRole returns a copy of role's permissions, or nil.
func PermissionsForRole(role Role) []Permission {
	return slices.Clone(rolePermissions[role])
}
