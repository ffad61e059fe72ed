package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	jwtcodec "github.com/wallmag/wallmag-api/internal/adapters/jwt"
	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/domain/model"
	mocks "github.com/wallmag/wallmag-api/internal/mocks/auth"
	"github.com/wallmag/wallmag-api/internal/service"
)

// stubValidator is a test double for SessionValidator.
type stubValidator struct {
	validateFunc func(ctx context.Context, token string) (domainauth.IdentityContext, error)
}

func (s *stubValidator) Validate(ctx context.Context, token string) (domainauth.IdentityContext, error) {
	if s.validateFunc != nil {
		return s.validateFunc(ctx, token)
	}
	return domainauth.IdentityContext{UserID: "u1", Email: "u1@example.com", Roles: []domainauth.Role{domainauth.RoleUser}}, nil
}

func identityWithRoles(roles ...domainauth.Role) *stubValidator {
	return &stubValidator{validateFunc: func(context.Context, string) (domainauth.IdentityContext, error) {
		return domainauth.IdentityContext{UserID: "u1", Email: "u1@example.com", Roles: roles}, nil
	}}
}

func failingValidator(kind domainauth.ErrorKind) *stubValidator {
	return &stubValidator{validateFunc: func(context.Context, string) (domainauth.IdentityContext, error) {
		return domainauth.IdentityContext{}, domainauth.NewError(kind, errors.New("cause"))
	}}
}

func requestWithToken(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: token})
	}
	return req
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGuard_RequireAuth_NoCookie(t *testing.T) {
	called := false
	g := &Guard{Sessions: &stubValidator{validateFunc: func(context.Context, string) (domainauth.IdentityContext, error) {
		called = true
		return domainauth.IdentityContext{}, nil
	}}}

	res := g.RequireAuth(requestWithToken(""))

	require.NotNil(t, res.Err)
	assert.Nil(t, res.Identity)
	assert.False(t, res.OK())
	assert.Equal(t, http.StatusUnauthorized, res.Err.Status)
	assert.Equal(t, string(domainauth.KindUnauthenticated), res.Err.Code)
	assert.False(t, called, "validator must not run without a token")
}

func TestGuard_RequireAuth_StatusMapping(t *testing.T) {
	tests := []struct {
		kind   domainauth.ErrorKind
		status int
	}{
		{domainauth.KindTokenInvalid, http.StatusUnauthorized},
		{domainauth.KindTokenExpired, http.StatusUnauthorized},
		{domainauth.KindSessionRevoked, http.StatusUnauthorized},
		{domainauth.KindSessionExpired, http.StatusUnauthorized},
		{domainauth.KindUnauthenticated, http.StatusUnauthorized},
		{domainauth.KindAccountInactive, http.StatusForbidden},
		{domainauth.KindForbidden, http.StatusForbidden},
		{domainauth.KindIdentityNotFound, http.StatusNotFound},
		{domainauth.KindInfrastructure, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			g := &Guard{Sessions: failingValidator(tt.kind)}

			res := g.RequireAuth(requestWithToken("tok"))

			require.NotNil(t, res.Err)
			assert.Equal(t, tt.status, res.Err.Status)
			assert.Equal(t, string(tt.kind), res.Err.Code)
			assert.Equal(t, tt.kind.Message(), res.Err.Message, "causes must not leak")
		})
	}
}

func TestGuard_UntypedErrorFailsClosed(t *testing.T) {
	g := &Guard{Sessions: &stubValidator{validateFunc: func(context.Context, string) (domainauth.IdentityContext, error) {
		return domainauth.IdentityContext{}, errors.New("redis: connection refused")
	}}}

	res := g.RequireAuth(requestWithToken("tok"))

	require.NotNil(t, res.Err)
	assert.Equal(t, http.StatusInternalServerError, res.Err.Status)
	assert.NotContains(t, res.Err.Message, "redis")
}

func TestGuard_RequirePermission(t *testing.T) {
	tests := []struct {
		name   string
		roles  []domainauth.Role
		cap    domainauth.Capability
		status int
	}{
		{"admin manages users", []domainauth.Role{domainauth.RoleAdmin}, domainauth.CapManageUsers, 0},
		{"publisher cannot manage users", []domainauth.Role{domainauth.RolePublisher}, domainauth.CapManageUsers, http.StatusForbidden},
		{"editor approves designs", []domainauth.Role{domainauth.RoleEditor}, domainauth.CapApproveDesigns, 0},
		{"user cannot publish", []domainauth.Role{domainauth.RoleUser}, domainauth.CapPublishPost, http.StatusForbidden},
		{"unknown capability", []domainauth.Role{domainauth.RolePublisher}, domainauth.Capability("launch_rockets"), http.StatusForbidden},
		{"admin short-circuits unknown capability", []domainauth.Role{domainauth.RoleAdmin}, domainauth.Capability("launch_rockets"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Guard{Sessions: identityWithRoles(tt.roles...)}

			res := g.RequirePermission(requestWithToken("tok"), tt.cap)

			if tt.status == 0 {
				require.True(t, res.OK())
				assert.Equal(t, "u1", res.Identity.UserID)
				return
			}
			require.NotNil(t, res.Err)
			assert.Nil(t, res.Identity)
			assert.Equal(t, tt.status, res.Err.Status)
			assert.Equal(t, string(domainauth.KindForbidden), res.Err.Code)
		})
	}
}

func TestGuard_RequireRoleAndAnyRole(t *testing.T) {
	g := &Guard{Sessions: identityWithRoles(domainauth.RoleEditor, domainauth.RolePublisher)}
	req := requestWithToken("tok")

	assert.True(t, g.RequireRole(req, domainauth.RolePublisher).OK())
	assert.False(t, g.RequireRole(req, domainauth.RoleAdmin).OK())
	assert.True(t, g.RequireAnyRole(req, domainauth.RoleAdmin, domainauth.RoleEditor).OK())
	assert.False(t, g.RequireAnyRole(req, domainauth.RoleAdmin).OK())

	admin := &Guard{Sessions: identityWithRoles(domainauth.RoleAdmin)}
	assert.True(t, admin.RequireRole(req, domainauth.RoleEditor).OK(), "admin holds every role")
}

func TestGuard_Middleware(t *testing.T) {
	t.Run("stores identity in context", func(t *testing.T) {
		g := &Guard{Sessions: identityWithRoles(domainauth.RoleAdmin)}
		var got *domainauth.IdentityContext
		h := g.WithPermission(domainauth.CapViewSecurityLogs)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = IdentityFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestWithToken("tok"))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, got)
		assert.Equal(t, "u1", got.UserID)
	})

	t.Run("terminal failure clears cookie", func(t *testing.T) {
		g := &Guard{Sessions: failingValidator(domainauth.KindSessionRevoked)}
		h := g.Authenticated(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run")
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestWithToken("tok"))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, string(domainauth.KindSessionRevoked), decodeErrorBody(t, rec)["error"])
		resp := rec.Result()
		defer resp.Body.Close()
		c := findCookie(resp, DefaultSessionCookieName)
		require.NotNil(t, c)
		assert.Equal(t, -1, c.MaxAge)
	})

	t.Run("forbidden keeps cookie", func(t *testing.T) {
		g := &Guard{Sessions: identityWithRoles(domainauth.RoleUser)}
		h := g.WithRole(domainauth.RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run")
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestWithToken("tok"))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		resp := rec.Result()
		defer resp.Body.Close()
		assert.Nil(t, findCookie(resp, DefaultSessionCookieName))
	})

	t.Run("inactive account keeps cookie", func(t *testing.T) {
		g := &Guard{Sessions: failingValidator(domainauth.KindAccountInactive)}
		h := g.WithAnyRole(domainauth.RoleUser)(http.NotFoundHandler())

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestWithToken("tok"))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "account_inactive", decodeErrorBody(t, rec)["error"])
	})
}

func TestGuard_WithSessionManager(t *testing.T) {
	codec, err := jwtcodec.NewCodec(jwtcodec.Config{
		Secret: []byte("guard-test-secret-guard-test-secret"),
		Issuer: "wallmag",
		TTL:    time.Hour,
	})
	require.NoError(t, err)
	users := mocks.NewMemoryCredentialStore(
		&model.User{ID: "a1", Email: "a1@example.com", Roles: []domainauth.Role{domainauth.RoleAdmin}, Active: true},
	)
	mgr := service.NewSessionManager(service.SessionManagerOptions{
		Codec:    codec,
		Registry: mocks.NewMemoryStore(),
		Users:    users,
	})
	admin, err := users.GetByID(context.Background(), "a1")
	require.NoError(t, err)
	sess, err := mgr.Issue(context.Background(), admin)
	require.NoError(t, err)

	g := &Guard{Sessions: mgr}
	req := requestWithToken(sess.Token)

	res := g.RequirePermission(req, domainauth.CapManageUsers)
	require.True(t, res.OK())
	assert.Equal(t, "a1", res.Identity.UserID)

	// Roles come from the store, not from the token snapshot.
	_, err = users.UpdateRoles(context.Background(), "a1", []domainauth.Role{domainauth.RoleEditor})
	require.NoError(t, err)
	res = g.RequirePermission(req, domainauth.CapManageUsers)
	require.NotNil(t, res.Err)
	assert.Equal(t, http.StatusForbidden, res.Err.Status)

	require.NoError(t, mgr.Revoke(context.Background(), sess.Claims.SessionID, service.RevokeReasonAdmin, 0))
	res = g.RequireAuth(req)
	require.NotNil(t, res.Err)
	assert.Equal(t, string(domainauth.KindSessionRevoked), res.Err.Code)
}
