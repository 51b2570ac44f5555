package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminHasEveryPermission(t *testing.T) {
	for _, res := range Resources() {
		for _, act := range Actions() {
			assert.True(t, HasPermission(RoleAdmin, res, act), "%s %s", res, act)
		}
	}
}

func TestEditorPolicy(t *testing.T) {
	cases := []struct {
		resource Resource
		action   Action
		want     bool
	}{
		{ResourceProducts, ActionCreate, false},
		{ResourceProducts, ActionRead, true},
		{ResourceProducts, ActionUpdate, true},
		{ResourceProducts, ActionDelete, false},
		{ResourceTeam, ActionCreate, true},
		{ResourceTeam, ActionRead, true},
		{ResourceTeam, ActionUpdate, true},
		{ResourceTeam, ActionDelete, false},
		{ResourceMedia, ActionCreate, false},
		{ResourceMedia, ActionRead, true},
		{ResourceMedia, ActionUpdate, true},
		{ResourceMedia, ActionDelete, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HasPermission(RoleEditor, tc.resource, tc.action), "%s %s", tc.resource, tc.action)
	}
	for _, act := range Actions() {
		assert.False(t, HasPermission(RoleEditor, ResourceUsers, act), "users %s", act)
	}
}

func TestUnknownInputsFailClosed(t *testing.T) {
	assert.False(t, HasPermission("OWNER", ResourceProducts, ActionRead))
	assert.False(t, HasPermission("", ResourceProducts, ActionRead))
	assert.False(t, HasPermission("admin", ResourceProducts, ActionRead))
	assert.False(t, HasPermission(RoleAdmin, "orders", ActionRead))
	assert.False(t, HasPermission(RoleAdmin, ResourceProducts, "publish"))

	var empty Matrix
	assert.False(t, empty.Allows(RoleAdmin, ResourceProducts, ActionRead))
}

func TestDerivedHelpers(t *testing.T) {
	assert.True(t, CanManageUsers(RoleAdmin))
	assert.False(t, CanManageUsers(RoleEditor))
	assert.False(t, CanManageUsers("GUEST"))

	assert.True(t, CanDelete(RoleAdmin, ResourceMedia))
	assert.False(t, CanDelete(RoleEditor, ResourceProducts))
	assert.False(t, CanDelete(RoleEditor, ResourceTeam))
}

func TestGrantsIsACopy(t *testing.T) {
	grants := Grants(RoleEditor)
	require.Len(t, grants, len(Resources()))
	assert.Empty(t, grants[ResourceUsers])

	grants[ResourceProducts] = append(grants[ResourceProducts], ActionDelete)
	assert.False(t, HasPermission(RoleEditor, ResourceProducts, ActionDelete))

	unknown := Grants("GUEST")
	for _, actions := range unknown {
		assert.Empty(t, actions)
	}
}

func TestDefaultIsIndependent(t *testing.T) {
	m := Default()
	m[RoleEditor][ResourceUsers] = []Action{ActionRead}
	assert.True(t, m.Allows(RoleEditor, ResourceUsers, ActionRead))
	assert.False(t, CanManageUsers(RoleEditor))
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("ADMIN")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, role)

	_, ok = ParseRole("editor")
	assert.False(t, ok)
	assert.True(t, RoleEditor.Valid())
	assert.False(t, Role("").Valid())
}
