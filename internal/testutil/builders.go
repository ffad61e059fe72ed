// Package testutil provides testing utilities and helpers for the wallmag API.
package testutil

import (
	"time"

	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/domain/model"
)

// UserBuilder provides a fluent interface for building users for testing.
type UserBuilder struct {
	user *model.User
}

// NewUser creates a UserBuilder for an active user with the default role set.
func NewUser(id, email string) *UserBuilder {
	now := TestTime()
	return &UserBuilder{
		user: &model.User{
			ID:        id,
			Email:     email,
			Name:      "Test User",
			Roles:     []domainauth.Role{domainauth.RoleUser},
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// WithName sets the display name.
func (b *UserBuilder) WithName(name string) *UserBuilder {
	b.user.Name = name
	return b
}

// WithRoles replaces the role set.
func (b *UserBuilder) WithRoles(roles ...domainauth.Role) *UserBuilder {
	b.user.Roles = roles
	return b
}

// WithGoogleID links the user to a provider subject.
func (b *UserBuilder) WithGoogleID(sub string) *UserBuilder {
	b.user.GoogleID = sub
	return b
}

// Inactive marks the user as deactivated.
func (b *UserBuilder) Inactive() *UserBuilder {
	b.user.Active = false
	return b
}

// WithLastLogin sets the last sign-in time.
func (b *UserBuilder) WithLastLogin(at time.Time) *UserBuilder {
	b.user.LastLoginAt = TimePtr(at)
	return b
}

// Build returns the constructed user.
func (b *UserBuilder) Build() *model.User {
	return b.user
}

// IdentityBuilder builds identities as an IdP adapter would return them.
type IdentityBuilder struct {
	ident domainauth.Identity
}

// NewIdentity creates an IdentityBuilder for subject and email.
func NewIdentity(subject, email string) *IdentityBuilder {
	return &IdentityBuilder{ident: domainauth.Identity{
		Subject:       subject,
		Email:         email,
		EmailVerified: true,
		Name:          "Test User",
	}}
}

// WithName sets the display name claim.
func (b *IdentityBuilder) WithName(name string) *IdentityBuilder {
	b.ident.Name = name
	return b
}

// WithPicture sets the picture claim.
func (b *IdentityBuilder) WithPicture(pictureURL string) *IdentityBuilder {
	b.ident.PictureURL = pictureURL
	return b
}

// Build returns the constructed identity.
func (b *IdentityBuilder) Build() domainauth.Identity {
	return b.ident
}

// ActorFor returns the request identity of user.
func ActorFor(u *model.User) domainauth.IdentityContext {
	return domainauth.IdentityContext{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Roles:  u.Roles,
	}
}
