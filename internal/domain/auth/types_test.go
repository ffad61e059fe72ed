package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleLevels(t *testing.T) {
	assert.Equal(t, 1, RoleUser.Level())
	assert.Equal(t, 2, RoleEditor.Level())
	assert.Equal(t, 3, RolePublisher.Level())
	assert.Equal(t, 4, RoleAdmin.Level())
	assert.Equal(t, 0, Role("guest").Level())
	assert.False(t, Role("guest").Valid())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Editor ")
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, r)

	_, err = ParseRole("superuser")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestParseRoleSet(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []Role
		wantErr error
	}{
		{name: "single", in: []string{"publisher"}, want: []Role{RolePublisher}},
		{name: "sorted by level", in: []string{"publisher", "user"}, want: []Role{RoleUser, RolePublisher}},
		{name: "admin alone", in: []string{"admin"}, want: []Role{RoleAdmin}},
		{name: "empty", in: nil, wantErr: ErrEmptyRoles},
		{name: "unknown", in: []string{"user", "owner"}, wantErr: ErrUnknownRole},
		{name: "duplicate", in: []string{"editor", "EDITOR"}, wantErr: ErrDuplicateRole},
		{name: "admin mixed", in: []string{"admin", "editor"}, wantErr: ErrAdminExclusive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRoleSet(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeRoles(t *testing.T) {
	assert.Equal(t, []Role{RoleUser}, NormalizeRoles(nil))
	assert.Equal(t, []Role{RoleUser}, NormalizeRoles([]Role{"bogus"}))
	assert.Equal(t, []Role{RoleAdmin}, NormalizeRoles([]Role{RoleEditor, RoleAdmin}))
	assert.Equal(t, []Role{RoleUser, RoleEditor}, NormalizeRoles([]Role{RoleEditor, RoleUser, RoleEditor}))
	assert.Equal(t, []Role{RoleEditor}, RolesFromStrings([]string{" Editor"}))
	assert.Equal(t, []string{"user", "editor"}, RoleStrings([]Role{RoleUser, RoleEditor}))
}

func TestIdentityContext(t *testing.T) {
	ic := IdentityContext{UserID: "u1", Roles: []Role{RoleUser, RolePublisher}}
	assert.Equal(t, RolePublisher, ic.PrimaryRole())
	assert.True(t, ic.Can(CapPublishPost))
	assert.False(t, ic.Can(CapManageUsers))
}
