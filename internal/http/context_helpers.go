package httpx

import (
	"context"

	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
)

// identityKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same key.
type identityKey struct{}

// SetIdentityInContext returns a child context that carries the given identity.
// If id is nil, the original ctx is returned unchanged.
func SetIdentityInContext(ctx context.Context, id *domainauth.IdentityContext) context.Context {
	if id == nil {
		return ctx
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the authorized identity stored by the guard
// middleware and a boolean indicating presence.
func IdentityFromContext(ctx context.Context) (*domainauth.IdentityContext, bool) {
	if id, ok := ctx.Value(identityKey{}).(*domainauth.IdentityContext); ok && id != nil {
		return id, true
	}
	return nil, false
}
