package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"Editor@Example.COM", "editor@example.com", false},
		{"  spaced@example.com\t", "spaced@example.com", false},
		{"no-at-sign", "", true},
		{"Name <name@example.com>", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeEmail(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidEmail))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateUserRequest(t *testing.T) {
	req := CreateUserRequest{Email: " New@Example.com ", Name: "  Nia  "}
	req.Normalize()
	assert.Equal(t, "new@example.com", req.Email)
	assert.Equal(t, "Nia", req.Name)
	assert.Equal(t, []domainauth.Role{domainauth.RoleUser}, req.Roles)
	require.NoError(t, req.Validate())

	long := CreateUserRequest{Email: "a@example.com", Name: strings.Repeat("x", maxUserNameLen+1)}
	long.Normalize()
	require.Error(t, long.Validate())

	mixed := CreateUserRequest{Email: "a@example.com", Roles: []domainauth.Role{domainauth.RoleAdmin, domainauth.RoleUser}}
	mixed.Normalize()
	assert.ErrorIs(t, mixed.Validate(), domainauth.ErrAdminExclusive)
}

func TestUser_Roles(t *testing.T) {
	u := &User{Roles: []domainauth.Role{domainauth.RoleEditor, domainauth.RolePublisher}}
	assert.False(t, u.IsAdmin())
	assert.Equal(t, domainauth.RolePublisher, u.PrimaryRole())

	u.Roles = []domainauth.Role{domainauth.RoleAdmin}
	assert.True(t, u.IsAdmin())
}

func TestUserListOptions_Normalize(t *testing.T) {
	for in, want := range map[int]int{0: maxUserListLimit, -3: maxUserListLimit, 5: 5, 1000: maxUserListLimit} {
		o := UserListOptions{Limit: in}
		o.Normalize()
		if o.Limit != want {
			t.Errorf("Normalize(%d) = %d, want %d", in, o.Limit, want)
		}
	}
}

func TestParseAuditKind(t *testing.T) {
	k, ok := ParseAuditKind(" Role_Change ")
	assert.True(t, ok)
	assert.Equal(t, AuditRoleChange, k)

	_, ok = ParseAuditKind("login")
	assert.False(t, ok)

	assert.Equal(t, 90*24*time.Hour, AuditRoleChange.Retention())
	assert.Equal(t, 30*24*time.Hour, AuditUserSearch.Retention())
}
