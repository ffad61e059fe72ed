package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/domain/model"
	"github.com/wallmag/wallmag-api/internal/ports"
	"github.com/wallmag/wallmag-api/internal/service"
)

// mockAuthService is a test double for AuthServiceInterface.
type mockAuthService struct {
	beginLoginFunc    func(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	completeLoginFunc func(ctx context.Context, input service.CompleteLoginInput) (*service.CompleteLoginResult, error)
	currentUserFunc   func(ctx context.Context, token string) (domainauth.IdentityContext, error)
	refreshFunc       func(ctx context.Context, token string) (service.IssuedSession, error)
	logoutFunc        func(ctx context.Context, token string) error
}

func (m *mockAuthService) BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error) {
	if m.beginLoginFunc != nil {
		return m.beginLoginFunc(ctx, redirectURL)
	}
	return &service.BeginLoginResult{
		AuthURL: "https://accounts.example.com/auth?state=test-state",
		State:   "test-state",
		Nonce:   "test-nonce",
	}, nil
}

func (m *mockAuthService) CompleteLogin(
	ctx context.Context,
	input service.CompleteLoginInput,
) (*service.CompleteLoginResult, error) {
	if m.completeLoginFunc != nil {
		return m.completeLoginFunc(ctx, input)
	}
	return &service.CompleteLoginResult{
		Session: service.IssuedSession{
			Token:  "new-token",
			Claims: domainauth.SessionClaims{UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)},
		},
		User: &model.User{ID: "u1", Email: "u1@example.com", Active: true},
	}, nil
}

func (m *mockAuthService) CurrentUser(ctx context.Context, token string) (domainauth.IdentityContext, error) {
	if m.currentUserFunc != nil {
		return m.currentUserFunc(ctx, token)
	}
	return domainauth.IdentityContext{UserID: "u1", Email: "u1@example.com", Roles: []domainauth.Role{domainauth.RoleEditor}}, nil
}

func (m *mockAuthService) Refresh(ctx context.Context, token string) (service.IssuedSession, error) {
	if m.refreshFunc != nil {
		return m.refreshFunc(ctx, token)
	}
	return service.IssuedSession{
		Token:  "rotated-token",
		Claims: domainauth.SessionClaims{UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)},
	}, nil
}

func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	if m.logoutFunc != nil {
		return m.logoutFunc(ctx, token)
	}
	return nil
}

func callbackRequest(query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/callback"+query, nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "test-state"})
	req.AddCookie(&http.Cookie{Name: oauthNonceCookie, Value: "test-nonce"})
	req.AddCookie(&http.Cookie{Name: postLoginCookieName, Value: "/review"})
	return req
}

func TestAuthHandlers_Login(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		wantRedirect string
	}{
		{"default destination", "", "/"},
		{"relative destination kept", "?redirect_uri=/review", "/review"},
		{"absolute destination dropped", "?redirect_uri=https://evil.example.com/", "/"},
		{"scheme-relative destination dropped", "?redirect_uri=//evil.example.com", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &AuthHandlers{Svc: &mockAuthService{}}
			rec := httptest.NewRecorder()

			h.Login(rec, httptest.NewRequest(http.MethodGet, "/auth/login"+tt.query, nil))

			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Contains(t, rec.Header().Get("Location"), "https://accounts.example.com/auth")
			resp := rec.Result()
			defer resp.Body.Close()
			assert.Equal(t, "test-state", findCookie(resp, oauthStateCookie).Value)
			assert.Equal(t, "test-nonce", findCookie(resp, oauthNonceCookie).Value)
			assert.Equal(t, tt.wantRedirect, findCookie(resp, postLoginCookieName).Value)
		})
	}
}

func TestAuthHandlers_Login_ServiceError(t *testing.T) {
	h := &AuthHandlers{Svc: &mockAuthService{
		beginLoginFunc: func(context.Context, string) (*service.BeginLoginResult, error) {
			return nil, errors.New("discovery failed")
		},
	}}
	rec := httptest.NewRecorder()

	h.Login(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "login_failed", decodeErrorBody(t, rec)["error"])
}

func TestAuthHandlers_Callback_Success(t *testing.T) {
	var got service.CompleteLoginInput
	h := &AuthHandlers{Svc: &mockAuthService{
		completeLoginFunc: func(ctx context.Context, in service.CompleteLoginInput) (*service.CompleteLoginResult, error) {
			got = in
			return (&mockAuthService{}).CompleteLogin(ctx, in)
		},
	}}
	rec := httptest.NewRecorder()

	h.Callback(rec, callbackRequest("?code=abc&state=test-state"))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/review", rec.Header().Get("Location"))
	assert.Equal(t, service.CompleteLoginInput{Code: "abc", State: "test-state", Nonce: "test-nonce"}, got)

	resp := rec.Result()
	defer resp.Body.Close()
	session := findCookie(resp, DefaultSessionCookieName)
	require.NotNil(t, session)
	assert.Equal(t, "new-token", session.Value)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, session.SameSite)
	assert.Positive(t, session.MaxAge)
	assert.Equal(t, -1, findCookie(resp, oauthStateCookie).MaxAge)
	assert.Equal(t, -1, findCookie(resp, oauthNonceCookie).MaxAge)
}

func TestAuthHandlers_Callback_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		req     *http.Request
		errCode string
	}{
		{"missing code", callbackRequest("?state=test-state"), "missing_code"},
		{"missing state", callbackRequest("?code=abc"), "missing_state"},
		{"state mismatch", callbackRequest("?code=abc&state=other"), "invalid_state"},
		{
			"missing nonce cookie",
			func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=s", nil)
				r.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "s"})
				return r
			}(),
			"missing_nonce",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &AuthHandlers{Svc: &mockAuthService{
				completeLoginFunc: func(context.Context, service.CompleteLoginInput) (*service.CompleteLoginResult, error) {
					t.Fatal("CompleteLogin must not be called")
					return nil, nil
				},
			}}
			rec := httptest.NewRecorder()

			h.Callback(rec, tt.req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.errCode, decodeErrorBody(t, rec)["error"])
		})
	}
}

func TestAuthHandlers_Callback_Failures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		errCode string
	}{
		{"provider policy", fmt.Errorf("exchange: %w", ports.ErrLoginNotAllowed), http.StatusForbidden, "login_not_allowed"},
		{"inactive account", domainauth.NewError(domainauth.KindAccountInactive, nil), http.StatusForbidden, "account_inactive"},
		{"unexpected", errors.New("token endpoint down"), http.StatusInternalServerError, "login_completion_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &AuthHandlers{Svc: &mockAuthService{
				completeLoginFunc: func(context.Context, service.CompleteLoginInput) (*service.CompleteLoginResult, error) {
					return nil, tt.err
				},
			}}
			rec := httptest.NewRecorder()

			h.Callback(rec, callbackRequest("?code=abc&state=test-state"))

			assert.Equal(t, tt.status, rec.Code)
			body := decodeErrorBody(t, rec)
			assert.Equal(t, tt.errCode, body["error"])
			assert.NotContains(t, body["message"], "token endpoint")
			resp := rec.Result()
			defer resp.Body.Close()
			assert.Nil(t, findCookie(resp, DefaultSessionCookieName))
		})
	}
}

func TestAuthHandlers_Logout(t *testing.T) {
	var revoked string
	h := &AuthHandlers{Svc: &mockAuthService{
		logoutFunc: func(_ context.Context, token string) error {
			revoked = token
			return errors.New("registry down")
		},
	}}
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: "tok"})
	rec := httptest.NewRecorder()

	h.Logout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", revoked)
	resp := rec.Result()
	defer resp.Body.Close()
	assert.Equal(t, -1, findCookie(resp, DefaultSessionCookieName).MaxAge)
}

func TestAuthHandlers_Refresh(t *testing.T) {
	t.Run("rotates cookie", func(t *testing.T) {
		h := &AuthHandlers{Svc: &mockAuthService{}}
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: "old"})
		rec := httptest.NewRecorder()

		h.Refresh(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		resp := rec.Result()
		defer resp.Body.Close()
		assert.Equal(t, "rotated-token", findCookie(resp, DefaultSessionCookieName).Value)
	})

	t.Run("no cookie", func(t *testing.T) {
		h := &AuthHandlers{Svc: &mockAuthService{}}
		rec := httptest.NewRecorder()

		h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/auth/refresh", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired session clears cookie", func(t *testing.T) {
		h := &AuthHandlers{Svc: &mockAuthService{
			refreshFunc: func(context.Context, string) (service.IssuedSession, error) {
				return service.IssuedSession{}, domainauth.NewError(domainauth.KindSessionExpired, nil)
			},
		}}
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: "old"})
		rec := httptest.NewRecorder()

		h.Refresh(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, string(domainauth.KindSessionExpired), decodeErrorBody(t, rec)["error"])
		resp := rec.Result()
		defer resp.Body.Close()
		assert.Equal(t, -1, findCookie(resp, DefaultSessionCookieName).MaxAge)
	})
}

func TestAuthHandlers_Me(t *testing.T) {
	h := &AuthHandlers{Svc: &mockAuthService{}}
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: "tok"})
	rec := httptest.NewRecorder()

	h.Me(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		User struct {
			ID    string   `json:"id"`
			Roles []string `json:"roles"`
		} `json:"user"`
		PrimaryRole string   `json:"primary_role"`
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "u1", body.User.ID)
	assert.Equal(t, "editor", body.PrimaryRole)
	assert.Contains(t, body.Permissions, "approve_designs")
	assert.NotContains(t, body.Permissions, "publish_post")
}

func TestAuthHandlers_Me_InactiveKeepsCookie(t *testing.T) {
	h := &AuthHandlers{Svc: &mockAuthService{
		currentUserFunc: func(context.Context, string) (domainauth.IdentityContext, error) {
			return domainauth.IdentityContext{}, domainauth.NewError(domainauth.KindAccountInactive, nil)
		},
	}}
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: "tok"})
	rec := httptest.NewRecorder()

	h.Me(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	resp := rec.Result()
	defer resp.Body.Close()
	assert.Nil(t, findCookie(resp, DefaultSessionCookieName))
}

func TestCookieConfig_Secure(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "/", nil)
	proxied := httptest.NewRequest(http.MethodGet, "/", nil)
	proxied.Header.Set("X-Forwarded-Proto", "http, https")

	assert.False(t, CookieConfig{}.secure(plain))
	assert.True(t, CookieConfig{}.secure(proxied))
	assert.True(t, CookieConfig{Secure: true}.secure(plain))
}
