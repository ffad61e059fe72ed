package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/observability/metrics"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth     AuthServiceInterface
	Sessions SessionValidator
	Roles    RoleAssigner
	Users    UserAdministrator

	Cookies   CookieConfig
	LoginRate IPRateLimitConfig
	// Readiness probes reported by /readyz, keyed by dependency name.
	Readiness map[string]ReadinessCheck

	// Optional: Prometheus metrics; MetricsPath empty disables the endpoint.
	Metrics     *metrics.Metrics
	MetricsPath string
	// Optional: gzip responses when non-nil.
	Compression *CompressionConfig

	Logger *slog.Logger
}

type middleware = func(http.Handler) http.Handler

// chain wraps h so that the first middleware runs first.
func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type router struct {
	mux     *http.ServeMux
	metrics *metrics.Metrics
}

// handle registers h under pattern, instrumented with the pattern as route label.
func (rt router) handle(pattern string, h http.Handler, mws ...middleware) {
	mws = append([]middleware{Instrument(rt.metrics, pattern)}, mws...)
	rt.mux.Handle(pattern, chain(h, mws...))
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rt := router{mux: http.NewServeMux(), metrics: services.Metrics}

	guard := &Guard{Sessions: services.Sessions, Cookies: services.Cookies, Logger: logger}
	csrf := CSRFProtection(CSRFConfig{Cookies: services.Cookies})

	rt.handle("GET /healthz", http.HandlerFunc(healthHandler))
	rt.handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	rt.handle("GET /readyz", ReadinessHandler(services.Readiness, logger))
	if services.Metrics != nil && services.MetricsPath != "" {
		rt.mux.Handle("GET "+services.MetricsPath, services.Metrics.Handler())
	}

	if services.Auth != nil {
		registerAuthRoutes(rt, &AuthHandlers{Svc: services.Auth, Cookies: services.Cookies, Logger: logger},
			RateLimitByIP(services.LoginRate), csrf)
	}
	if services.Sessions != nil && services.Roles != nil && services.Users != nil {
		registerAdminRoutes(rt, &AdminUserHandlers{Roles: services.Roles, Users: services.Users, Logger: logger},
			guard, csrf)
	}

	var handler http.Handler = rt.mux
	if services.Compression != nil {
		handler = Compression(*services.Compression)(handler)
	}
	return chain(handler, Recover(logger), Logging(logger), SecurityHeaders)
}

func registerAuthRoutes(rt router, h *AuthHandlers, loginLimit, csrf middleware) {
	rt.handle("GET /auth/login", http.HandlerFunc(h.Login), loginLimit)
	rt.handle("GET /auth/callback", http.HandlerFunc(h.Callback), loginLimit)
	rt.handle("POST /auth/logout", http.HandlerFunc(h.Logout), csrf)
	rt.handle("POST /auth/refresh", http.HandlerFunc(h.Refresh), csrf)
	// GET passes CSRF validation and seeds the token cookie for the client.
	rt.handle("GET /auth/me", http.HandlerFunc(h.Me), csrf)
}

func registerAdminRoutes(rt router, h *AdminUserHandlers, guard *Guard, csrf middleware) {
	manage := guard.WithPermission(domainauth.CapManageUsers)

	rt.handle("GET /api/admin/users", http.HandlerFunc(h.ListUsers), manage)
	rt.handle("GET /api/admin/users/lookup", http.HandlerFunc(h.Lookup),
		guard.WithPermission(domainauth.CapAssignEditors))
	rt.handle("POST /api/admin/users/{id}/roles", http.HandlerFunc(h.AssignRoles), manage, csrf)
	rt.handle("POST /api/admin/assign-role", http.HandlerFunc(h.AssignRole), manage, csrf)
	rt.handle("PUT /api/admin/users/{id}/active", http.HandlerFunc(h.SetActive), manage, csrf)
	rt.handle("GET /api/admin/users/{id}/sessions", http.HandlerFunc(h.ListSessions), manage)
	rt.handle("DELETE /api/admin/users/{id}/sessions", http.HandlerFunc(h.RevokeSessions), manage, csrf)
	rt.handle("GET /api/admin/audit", http.HandlerFunc(h.Audit),
		guard.WithPermission(domainauth.CapViewSecurityLogs))
}
