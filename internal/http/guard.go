package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
)

// SessionValidator resolves a presented session token into an authorized identity.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (domainauth.IdentityContext, error)
}

// GuardError describes why a request was refused.
type GuardError struct {
	Status  int
	Code    string
	Message string
	Kind    domainauth.ErrorKind
}

func (e *GuardError) Error() string { return e.Message }

// GuardResult is either an authorized identity or a refusal, never both.
type GuardResult struct {
	Identity *domainauth.IdentityContext
	Err      *GuardError
}

// OK reports whether the request was authorized.
func (r GuardResult) OK() bool { return r.Err == nil && r.Identity != nil }

// Guard authenticates requests from the session cookie and authorizes them
// against the permission table.
type Guard struct {
	Sessions SessionValidator
	Cookies  CookieConfig
	Logger   *slog.Logger
}

func (g *Guard) logger() *slog.Logger {
	if g != nil && g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// RequireAuth validates the session carried by r.
func (g *Guard) RequireAuth(r *http.Request) GuardResult {
	token := g.Cookies.sessionToken(r)
	if token == "" {
		return refuse(domainauth.KindUnauthenticated, "")
	}

	id, err := g.Sessions.Validate(r.Context(), token)
	if err != nil {
		kind := domainauth.KindOf(err)
		if kind == domainauth.KindInfrastructure {
			g.logger().ErrorContext(r.Context(), "session validation unavailable",
				slog.String("path", r.URL.Path),
				slog.Any("error", err))
		}
		return refuse(kind, domainauth.SafeMessage(err))
	}
	return GuardResult{Identity: &id}
}

// RequirePermission validates the session and checks capability.
func (g *Guard) RequirePermission(r *http.Request, capability domainauth.Capability) GuardResult {
	return g.authorize(r, func(id *domainauth.IdentityContext) bool {
		return domainauth.HasPermission(id.Roles, capability)
	})
}

// RequireRole validates the session and checks that role is held.
func (g *Guard) RequireRole(r *http.Request, role domainauth.Role) GuardResult {
	return g.authorize(r, func(id *domainauth.IdentityContext) bool {
		return domainauth.HasRole(id.Roles, role)
	})
}

// RequireAnyRole validates the session and checks that at least one of roles is held.
func (g *Guard) RequireAnyRole(r *http.Request, roles ...domainauth.Role) GuardResult {
	return g.authorize(r, func(id *domainauth.IdentityContext) bool {
		return domainauth.HasAnyRole(id.Roles, roles...)
	})
}

func (g *Guard) authorize(r *http.Request, allowed func(*domainauth.IdentityContext) bool) GuardResult {
	res := g.RequireAuth(r)
	if res.Err != nil {
		return res
	}
	if !allowed(res.Identity) {
		return refuse(domainauth.KindForbidden, "")
	}
	return res
}

// Authenticated is middleware that admits any valid session.
func (g *Guard) Authenticated(next http.Handler) http.Handler {
	return g.wrap(next, g.RequireAuth)
}

// WithPermission returns middleware that admits sessions granted capability.
func (g *Guard) WithPermission(capability domainauth.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.wrap(next, func(r *http.Request) GuardResult { return g.RequirePermission(r, capability) })
	}
}

// WithRole returns middleware that admits sessions holding role.
func (g *Guard) WithRole(role domainauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.wrap(next, func(r *http.Request) GuardResult { return g.RequireRole(r, role) })
	}
}

// WithAnyRole returns middleware that admits sessions holding any of roles.
func (g *Guard) WithAnyRole(roles ...domainauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.wrap(next, func(r *http.Request) GuardResult { return g.RequireAnyRole(r, roles...) })
	}
}

func (g *Guard) wrap(next http.Handler, check func(*http.Request) GuardResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := check(r)
		if res.Err != nil {
			g.WriteRefusal(w, r, res.Err)
			return
		}
		next.ServeHTTP(w, r.WithContext(SetIdentityInContext(r.Context(), res.Identity)))
	})
}

// WriteRefusal renders a guard failure. Sessions that can never succeed again
// also lose their cookie.
func (g *Guard) WriteRefusal(w http.ResponseWriter, r *http.Request, e *GuardError) {
	if e.Kind.Terminal() {
		g.Cookies.clearSession(w, r)
	}
	WriteError(w, ErrorParams{Code: e.Status, ErrCode: e.Code, Err: errors.New(e.Message)})
}

func refuse(kind domainauth.ErrorKind, message string) GuardResult {
	if message == "" {
		message = kind.Message()
	}
	return GuardResult{Err: &GuardError{
		Status:  statusForKind(kind),
		Code:    string(kind),
		Message: message,
		Kind:    kind,
	}}
}

func statusForKind(kind domainauth.ErrorKind) int {
	switch kind {
	case domainauth.KindUnauthenticated,
		domainauth.KindTokenInvalid,
		domainauth.KindTokenExpired,
		domainauth.KindSessionRevoked,
		domainauth.KindSessionExpired:
		return http.StatusUnauthorized
	case domainauth.KindAccountInactive, domainauth.KindForbidden:
		return http.StatusForbidden
	case domainauth.KindIdentityNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
