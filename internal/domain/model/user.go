//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
)

const (
	maxUserNameLen   = 255
	maxUserListLimit = 100
)

// ErrInvalidEmail is returned when an email address cannot be parsed.
var ErrInvalidEmail = errors.New("invalid email address")

// User is the persistent identity record for a person who can sign in.
type User struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	Name        string            `json:"name"`
	PictureURL  string            `json:"picture_url,omitempty"`
	GoogleID    string            `json:"-"`
	Roles       []domainauth.Role `json:"roles"`
	Active      bool              `json:"active"`
	LastLoginAt *time.Time        `json:"last_login_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// PrimaryRole returns the highest role the user holds.
func (u *User) PrimaryRole() domainauth.Role { return domainauth.PrimaryRole(u.Roles) }

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	for _, r := range u.Roles {
		if r == domainauth.RoleAdmin {
			return true
		}
	}
	return false
}

// NormalizeEmail lowercases and trims an address and checks its syntax.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// CreateUserRequest creates a user outside the OAuth flow (admin CLI, tests).
type CreateUserRequest struct {
	Email string
	Name  string
	Roles []domainauth.Role
}

// Normalize trims inputs and applies defaults.
func (r *CreateUserRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Name = strings.TrimSpace(r.Name)
	if len(r.Roles) == 0 {
		r.Roles = []domainauth.Role{domainauth.RoleUser}
	}
}

// Validate checks the request after Normalize.
func (r *CreateUserRequest) Validate() error {
	if _, err := NormalizeEmail(r.Email); err != nil {
		return err
	}
	if utf8.RuneCountInString(r.Name) > maxUserNameLen {
		return errors.New("name is too long")
	}
	return domainauth.ValidateRoleSet(r.Roles)
}

// UserListOptions filters user listings.
// Roles matches users holding any of the given roles.
type UserListOptions struct {
	Roles           []domainauth.Role
	IncludeInactive bool
	Limit           int
}

// Normalize clamps the limit into [1, 100].
func (o *UserListOptions) Normalize() {
	if o.Limit <= 0 || o.Limit > maxUserListLimit {
		o.Limit = maxUserListLimit
	}
}

// PrivilegedRoles are the roles shown in the staff listing.
func PrivilegedRoles() []domainauth.Role {
	return []domainauth.Role{domainauth.RoleEditor, domainauth.RolePublisher, domainauth.RoleAdmin}
}
