package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_Public(t *testing.T) {
	t.Parallel()

	for _, role := range Roles() {
		assert.True(t, Check(Public(), role), role)
	}
}

func TestCheck_Exact(t *testing.T) {
	t.Parallel()

	req := Exact(RoleAdmin)
	assert.True(t, Check(req, RoleAdmin))
	assert.False(t, Check(req, RoleUser))
	assert.False(t, Check(req, RoleOrganizer))
}

func TestCheck_Set(t *testing.T) {
	t.Parallel()

	req := Set(RoleUser, RoleAdmin)
	assert.True(t, Check(req, RoleUser))
	assert.True(t, Check(req, RoleAdmin))
	assert.False(t, Check(req, RoleJudge))
	assert.False(t, Check(Set(), RoleAdmin))
}

func TestSet_CopiesInput(t *testing.T) {
	t.Parallel()

	roles := []Role{RoleJudge}
	req := Set(roles...)
	roles[0] = RoleAdmin

	assert.True(t, req.Allows(RoleJudge))
	assert.False(t, req.Allows(RoleAdmin))
}

func TestPermissionTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		perm    Permission
		allowed []Role
	}{
		{UpdateSelf, Roles()},
		{GetUserMinimalInfo, Roles()},
		{SearchUserMinimalInfo, Roles()},
		{GetUserFullInfo, []Role{RoleOrganizer, RoleAdmin}},
		{UpdateAnyUser, []Role{RoleOrganizer, RoleAdmin}},
		{BanUser, []Role{RoleOrganizer, RoleAdmin}},
		{DeleteUser, []Role{RoleAdmin}},
		{UpdateRole, []Role{RoleAdmin}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.perm.Action, func(t *testing.T) {
			t.Parallel()
			for _, role := range Roles() {
				want := false
				for _, a := range tt.allowed {
					if a == role {
						want = true
					}
				}
				assert.Equal(t, want, tt.perm.Allows(role), "role %s", role)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	r, err := ParseRole("judge")
	require.NoError(t, err)
	assert.Equal(t, RoleJudge, r)

	_, err = ParseRole("superuser")
	require.Error(t, err)
	_, err = ParseRole("")
	require.Error(t, err)
}
