// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.
package ports

import (
	"context"
	"errors"

	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
)

// ErrLoginNotAllowed is returned by providers that refuse an otherwise valid
// identity, such as an unverified email or a failed admission rule.
var ErrLoginNotAllowed = errors.New("login not allowed for this account")

// BeginInput carries inputs for initiating an auth flow.
type BeginInput struct {
	RedirectURL string
}

// AuthProvider initiates and completes an authentication flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// TokenCodec signs and verifies session tokens. Implementations never consult
// the session registry.
type TokenCodec interface {
	Issue(in IssueInput) (token string, claims domainauth.SessionClaims, err error)
	Verify(token string) (domainauth.SessionClaims, error)
}

// IssueInput is the identity snapshot embedded in a new token.
type IssueInput struct {
	UserID string
	Email  string
	Roles  []domainauth.Role
}
