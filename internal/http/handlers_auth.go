package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/ports"
	"github.com/wallmag/wallmag-api/internal/service"
)

const (
	oauthStateCookie    = "oauth_state"
	oauthNonceCookie    = "oauth_nonce"
	postLoginCookieName = "post_login_redirect"
)

// AuthServiceInterface is the part of service.AuthService the handlers use.
type AuthServiceInterface interface {
	BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, input service.CompleteLoginInput) (*service.CompleteLoginResult, error)
	CurrentUser(ctx context.Context, token string) (domainauth.IdentityContext, error)
	Refresh(ctx context.Context, token string) (service.IssuedSession, error)
	Logout(ctx context.Context, token string) error
}

// AuthHandlers serves the /auth endpoints.
type AuthHandlers struct {
	Svc     AuthServiceInterface
	Cookies CookieConfig
	Logger  *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Login sends the browser to the identity provider.
// GET /auth/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	result, err := h.Svc.BeginLogin(r.Context(), redirectURI)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin login failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_failed",
			Err:     errors.New("unable to start login"),
		})
		return
	}

	// State, nonce and the post-login destination survive the provider round trip in cookies.
	h.Cookies.set(w, r, oauthStateCookie, result.State, oauthCookieMaxAge)
	h.Cookies.set(w, r, oauthNonceCookie, result.Nonce, oauthCookieMaxAge)
	h.Cookies.set(w, r, postLoginCookieName, redirectURI, oauthCookieMaxAge)

	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback finishes the provider round trip started by Login.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	in, bad := readCallback(r)
	if bad != nil {
		WriteError(w, *bad)
		return
	}

	result, err := h.Svc.CompleteLogin(r.Context(), in)
	h.Cookies.clear(w, r, oauthStateCookie)
	h.Cookies.clear(w, r, oauthNonceCookie)
	if err != nil {
		h.writeLoginFailure(w, r, err)
		return
	}

	h.Cookies.setSession(w, r, result.Session.Token, result.Session.Claims.ExpiresAt)
	h.logger().InfoContext(r.Context(), "user signed in",
		slog.String("user_id", result.User.ID),
		slog.Bool("created", result.Created))

	http.Redirect(w, r, h.postLoginRedirect(w, r), http.StatusFound)
}

// readCallback checks the query against the flow cookies set by Login.
func readCallback(r *http.Request) (service.CompleteLoginInput, *ErrorParams) {
	q := r.URL.Query()
	in := service.CompleteLoginInput{Code: q.Get("code"), State: q.Get("state")}
	reject := func(code, msg string) (service.CompleteLoginInput, *ErrorParams) {
		return in, &ErrorParams{Code: http.StatusBadRequest, ErrCode: code, Err: errors.New(msg)}
	}

	if in.Code == "" {
		return reject("missing_code", "authorization code is required")
	}
	if in.State == "" {
		return reject("missing_state", "state parameter is required")
	}
	if c, err := r.Cookie(oauthStateCookie); err != nil || c.Value != in.State {
		return reject("invalid_state", "invalid or missing state parameter")
	}
	c, err := r.Cookie(oauthNonceCookie)
	if err != nil {
		return reject("missing_nonce", "missing nonce parameter")
	}
	in.Nonce = c.Value
	return in, nil
}

func (h *AuthHandlers) writeLoginFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ports.ErrLoginNotAllowed):
		h.logger().WarnContext(r.Context(), "login refused by provider policy", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusForbidden,
			ErrCode: "login_not_allowed",
			Err:     ports.ErrLoginNotAllowed,
		})
	case errors.Is(err, domainauth.ErrAccountInactive):
		WriteServiceError(w, r, h.logger(), err)
	default:
		h.logger().ErrorContext(r.Context(), "login completion failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_completion_failed",
			Err:     errors.New("unable to complete login"),
		})
	}
}

// Logout revokes the presented session and clears the cookie.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if token := h.Cookies.sessionToken(r); token != "" {
		if err := h.Svc.Logout(r.Context(), token); err != nil {
			// The cookie is still cleared; the token expires with its registry entry.
			h.logger().WarnContext(r.Context(), "logout failed", "error", err)
		}
	}
	h.Cookies.clearSession(w, r)

	WriteJSON(w, http.StatusOK, map[string]string{
		"status":      "signed_out",
		"redirect_to": "/auth/login?redirect_uri=" + url.QueryEscape(safeRedirectPath(r.URL.Query().Get("redirect_uri"))),
	})
}

// Refresh rotates the presented session and sets the replacement cookie.
// POST /auth/refresh.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	token := h.Cookies.sessionToken(r)
	if token == "" {
		h.writeAuthFailure(w, r, domainauth.NewError(domainauth.KindUnauthenticated, nil))
		return
	}

	sess, err := h.Svc.Refresh(r.Context(), token)
	if err != nil {
		h.writeAuthFailure(w, r, err)
		return
	}

	h.Cookies.setSession(w, r, sess.Token, sess.Claims.ExpiresAt)
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":     "refreshed",
		"expires_at": sess.Claims.ExpiresAt.Format(time.RFC3339),
	})
}

// meResponse is the body of GET /auth/me.
type meResponse struct {
	User        domainauth.IdentityContext `json:"user"`
	PrimaryRole domainauth.Role            `json:"primary_role"`
	Permissions []domainauth.Capability    `json:"permissions"`
}

// Me returns the authenticated identity with its primary role and granted capabilities.
// GET /auth/me.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	token := h.Cookies.sessionToken(r)
	if token == "" {
		h.writeAuthFailure(w, r, domainauth.NewError(domainauth.KindUnauthenticated, nil))
		return
	}

	id, err := h.Svc.CurrentUser(r.Context(), token)
	if err != nil {
		h.writeAuthFailure(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, meResponse{
		User:        id,
		PrimaryRole: id.PrimaryRole(),
		Permissions: domainauth.PermissionsFor(id.Roles),
	})
}

func (h *AuthHandlers) writeAuthFailure(w http.ResponseWriter, r *http.Request, err error) {
	if domainauth.KindOf(err).Terminal() {
		h.Cookies.clearSession(w, r)
	}
	WriteServiceError(w, r, h.logger(), err)
}

// postLoginRedirect consumes the destination cookie set by Login.
func (h *AuthHandlers) postLoginRedirect(w http.ResponseWriter, r *http.Request) string {
	redirectURI := "/"
	if c, err := r.Cookie(postLoginCookieName); err == nil {
		redirectURI = safeRedirectPath(c.Value)
		h.Cookies.clear(w, r, postLoginCookieName)
	}
	return redirectURI
}

// safeRedirectPath keeps redirects on this origin: anything but a rooted
// relative path becomes "/".
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return "/"
	}
	return candidate
}
