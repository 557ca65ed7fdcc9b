// Package auth covers who a caller is and what they may do: directory
// authentication, directory-group to role mapping, and bearer tokens.
package auth

// Role is an application role derived from directory group membership.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEngineer Role = "engineer"
	RoleViewer   Role = "viewer"
)

// Permissions the API checks against.
const (
	PermRead          = "read"
	PermWrite         = "write"
	PermDelete        = "delete"
	PermManageUsers   = "manage_users"
	PermManageModels  = "manage_models"
	PermQueryDatabase = "query_database"
)

var rolePermissions = map[Role][]string{
	RoleAdmin:    {PermRead, PermWrite, PermDelete, PermManageUsers, PermManageModels},
	RoleEngineer: {PermRead, PermWrite, PermQueryDatabase},
	RoleViewer:   {PermRead},
}

// Permissions returns the permission set for r. Unknown roles get the
// viewer set: an unrecognized role must never widen access.
func (r Role) Permissions() []string {
	if perms, ok := rolePermissions[r]; ok {
		return perms
	}
	return rolePermissions[RoleViewer]
}

func (r Role) Can(permission string) bool {
	for _, p := range r.Permissions() {
		if p == permission {
			return true
		}
	}
	return false
}

// RoleMapper maps directory groups to a role. Admin groups win over
// engineer groups; anyone else is a viewer.
type RoleMapper struct {
	admin    map[string]struct{}
	engineer map[string]struct{}
}

func NewRoleMapper(adminGroups, engineerGroups []string) *RoleMapper {
	m := &RoleMapper{
		admin:    make(map[string]struct{}, len(adminGroups)),
		engineer: make(map[string]struct{}, len(engineerGroups)),
	}
	for _, g := range adminGroups {
		m.admin[g] = struct{}{}
	}
	for _, g := range engineerGroups {
		m.engineer[g] = struct{}{}
	}
	return m
}

func (m *RoleMapper) RoleFor(groups []string) Role {
	for _, g := range groups {
		if _, ok := m.admin[g]; ok {
			return RoleAdmin
		}
	}
	for _, g := range groups {
		if _, ok := m.engineer[g]; ok {
			return RoleEngineer
		}
	}
	return RoleViewer
}
