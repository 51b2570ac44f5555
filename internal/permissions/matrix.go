// Package permissions holds the static role/resource/action policy shared by
// route guards and the admin UI.
package permissions

// Role is a coarse staff identity category.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleEditor Role = "EDITOR"
)

// Resource names a protected category of data.
type Resource string

const (
	ResourceProducts Resource = "products"
	ResourceTeam     Resource = "team"
	ResourceMedia    Resource = "media"
	ResourceUsers    Resource = "users"
)

// Action names an operation performed against a resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Matrix maps a role to the actions it may perform per resource. A missing
// role or resource key means no actions are permitted.
type Matrix map[Role]map[Resource][]Action

var crud = []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}

var defaultMatrix = Matrix{
	RoleAdmin: {
		ResourceProducts: crud,
		ResourceTeam:     crud,
		ResourceMedia:    crud,
		ResourceUsers:    crud,
	},
	RoleEditor: {
		ResourceProducts: {ActionRead, ActionUpdate},
		ResourceTeam:     {ActionCreate, ActionRead, ActionUpdate},
		ResourceMedia:    {ActionRead, ActionUpdate},
		ResourceUsers:    {},
	},
}

// Default returns a deep copy of the built-in policy table.
func Default() Matrix {
	return defaultMatrix.clone()
}

// Allows reports whether role may perform action on resource.
func (m Matrix) Allows(role Role, resource Resource, action Action) bool {
	for _, a := range m[role][resource] {
		if a == action {
			return true
		}
	}
	return false
}

// Grants returns a copy of the resource/action table for role. Resources the
// role cannot touch are present with an empty list so callers can render
// every resource uniformly.
func (m Matrix) Grants(role Role) map[Resource][]Action {
	out := make(map[Resource][]Action, len(Resources()))
	for _, res := range Resources() {
		actions := m[role][res]
		out[res] = append(make([]Action, 0, len(actions)), actions...)
	}
	return out
}

func (m Matrix) clone() Matrix {
	out := make(Matrix, len(m))
	for role, resources := range m {
		inner := make(map[Resource][]Action, len(resources))
		for res, actions := range resources {
			inner[res] = append([]Action(nil), actions...)
		}
		out[role] = inner
	}
	return out
}

// HasPermission checks the default policy. Unknown inputs resolve to false.
func HasPermission(role Role, resource Resource, action Action) bool {
	return defaultMatrix.Allows(role, resource, action)
}

// CanManageUsers reports whether role may see the user administration area.
func CanManageUsers(role Role) bool {
	return HasPermission(role, ResourceUsers, ActionRead)
}

// CanDelete reports whether role may delete records of resource.
func CanDelete(role Role, resource Resource) bool {
	return HasPermission(role, resource, ActionDelete)
}

// Grants returns the default policy table for role.
func Grants(role Role) map[Resource][]Action {
	return defaultMatrix.Grants(role)
}

// Roles lists every known role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleEditor}
}

// Resources lists every known resource.
func Resources() []Resource {
	return []Resource{ResourceProducts, ResourceTeam, ResourceMedia, ResourceUsers}
}

// Actions lists every known action.
func Actions() []Action {
	return []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
}

// ParseRole converts a stored role string. Matching is exact.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleEditor:
		return Role(s), true
	default:
		return "", false
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}
