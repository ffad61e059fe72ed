// Package auth contains domain-level types for identities, roles, sessions
// and capabilities. It is pure and free of framework/adapter concerns.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence and token claims.
type Role string

const (
	RoleUser      Role = "user"
	RoleEditor    Role = "editor"
	RolePublisher Role = "publisher"
	RoleAdmin     Role = "admin"
)

// TokenTypeSession is the only accepted token type claim.
const TokenTypeSession = "authenticated_session"

var roleLevels = map[Role]int{
	RoleUser:      1,
	RoleEditor:    2,
	RolePublisher: 3,
	RoleAdmin:     4,
}

// Role set validation errors.
var (
	ErrUnknownRole    = errors.New("unknown role")
	ErrEmptyRoles     = errors.New("at least one role is required")
	ErrDuplicateRole  = errors.New("duplicate role")
	ErrAdminExclusive = errors.New("admin role cannot be combined with other roles")
)

// AllRoles returns every role in ascending hierarchy order.
func AllRoles() []Role {
	return []Role{RoleUser, RoleEditor, RolePublisher, RoleAdmin}
}

// Level returns the hierarchy level of r, or 0 for unknown roles.
func (r Role) Level() int { return roleLevels[r] }

// Valid reports whether r is a member of the closed role enumeration.
func (r Role) Valid() bool { return r.Level() > 0 }

// ParseRole converts s into a Role, rejecting values outside the enumeration.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// ParseRoleSet parses and validates a requested role set.
func ParseRoleSet(in []string) ([]Role, error) {
	roles := make([]Role, 0, len(in))
	for _, s := range in {
		r, err := ParseRole(s)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	if err := ValidateRoleSet(roles); err != nil {
		return nil, err
	}
	return sortRoles(roles), nil
}

// ValidateRoleSet checks the role-set invariants: non-empty, known members,
// no duplicates, and admin never combined with another role.
func ValidateRoleSet(roles []Role) error {
	if len(roles) == 0 {
		return ErrEmptyRoles
	}
	seen := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		if !r.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownRole, r)
		}
		if _, dup := seen[r]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateRole, r)
		}
		seen[r] = struct{}{}
	}
	if _, ok := seen[RoleAdmin]; ok && len(roles) > 1 {
		return ErrAdminExclusive
	}
	return nil
}

// NormalizeRoles coerces stored data into a valid role set: unknown values
// and duplicates are dropped, admin absorbs every other role, and an empty
// result falls back to user.
func NormalizeRoles(in []Role) []Role {
	seen := make(map[Role]struct{}, len(in))
	out := make([]Role, 0, len(in))
	for _, r := range in {
		r = Role(strings.ToLower(strings.TrimSpace(string(r))))
		if !r.Valid() {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	if _, ok := seen[RoleAdmin]; ok {
		return []Role{RoleAdmin}
	}
	if len(out) == 0 {
		return []Role{RoleUser}
	}
	return sortRoles(out)
}

// RolesFromStrings converts raw strings into a normalized role set.
func RolesFromStrings(in []string) []Role {
	roles := make([]Role, len(in))
	for i, s := range in {
		roles[i] = Role(s)
	}
	return NormalizeRoles(roles)
}

// RoleStrings converts roles into their string form.
func RoleStrings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func sortRoles(roles []Role) []Role {
	slices.SortFunc(roles, func(a, b Role) int { return a.Level() - b.Level() })
	return roles
}

// Identity represents the authenticated principal returned by an IdP.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	Subject       string // stable provider identifier (OIDC sub)
	Email         string
	EmailVerified bool
	Name          string
	PictureURL    string
}

// SessionClaims is the verified content of a session token.
// Roles is the snapshot taken at issuance and is informational only.
type SessionClaims struct {
	UserID    string
	Email     string
	Roles     []Role
	SessionID string
	TokenType string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IdentityContext is the authorized identity handed to request handlers.
// Roles always come from the credential store, never from the token.
type IdentityContext struct {
	UserID    string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Roles     []Role    `json:"roles"`
	SessionID string    `json:"-"`
	IssuedAt  time.Time `json:"-"`
	ExpiresAt time.Time `json:"session_expires_at"`
}

// PrimaryRole returns the highest role held, for display.
func (c IdentityContext) PrimaryRole() Role { return PrimaryRole(c.Roles) }

// Can reports whether the identity holds capability cap.
func (c IdentityContext) Can(capability Capability) bool { return HasPermission(c.Roles, capability) }
