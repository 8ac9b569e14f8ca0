package auth

// Permission is a named capability checked by the API middleware.
type Permission string

// Permission constants.
const (
	PermRegisterRead  Permission = "register:read"
	PermRegisterWrite Permission = "register:write"
	PermPresetRead    Permission = "preset:read"
	PermPresetApply   Permission = "preset:apply"
	PermPresetManage  Permission = "preset:manage"
	PermSyncRead      Permission = "sync:read"
	PermSyncManage    Permission = "sync:manage"
	PermAuditRead     Permission = "audit:read"
	PermSystemAdmin   Permission = "system:admin"
)

var readPermissions = []Permission{
	PermRegisterRead,
	PermPresetRead,
	PermSyncRead,
	PermAuditRead,
}

// rolePermissions is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: readPermissions,
	RoleOperator: append(append([]Permission{}, readPermissions...),
		PermRegisterWrite,
		PermPresetApply,
	),
	RoleAdmin: append(append([]Permission{}, readPermissions...),
		PermRegisterWrite,
		PermPresetApply,
		PermPresetManage,
		PermSyncManage,
		PermSystemAdmin,
	),
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns a copy of the permissions granted to role, or
// nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
