package httpx

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultCSRFCookieName  = "csrf_token"
	DefaultCSRFHeaderName  = "X-Csrf-Token"
	DefaultCSRFTokenLength = 32

	csrfCookieMaxAge = 12 * time.Hour
)

var errCSRF = errors.New("CSRF token validation failed")

// CSRFConfig configures double-submit CSRF protection. Zero values use the
// Default* constants.
type CSRFConfig struct {
	CookieName  string
	HeaderName  string
	TokenLength int
	// Cookies supplies the domain and Secure policy shared with the session cookie.
	Cookies CookieConfig
}

func (c *CSRFConfig) withDefaults() {
	if c.CookieName == "" {
		c.CookieName = DefaultCSRFCookieName
	}
	if c.HeaderName == "" {
		c.HeaderName = DefaultCSRFHeaderName
	}
	if c.TokenLength <= 0 {
		c.TokenLength = DefaultCSRFTokenLength
	}
}

// CSRFProtection guards cookie-authenticated routes. Every response without a
// token cookie gets one; unsafe methods must echo it in the CSRF header and,
// when the browser sends Origin, come from the same host.
func CSRFProtection(cfg CSRFConfig) func(http.Handler) http.Handler {
	cfg.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var cookieToken string
			if c, err := r.Cookie(cfg.CookieName); err == nil {
				cookieToken = c.Value
			}

			if cookieToken == "" {
				minted, err := generateCSRFToken(cfg.TokenLength)
				if err != nil {
					WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "csrf_unavailable", Err: err})
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.CookieName,
					Value:    minted,
					Path:     "/",
					Domain:   cfg.Cookies.Domain,
					Secure:   cfg.Cookies.secure(r),
					SameSite: http.SameSiteStrictMode,
					MaxAge:   int(csrfCookieMaxAge.Seconds()),
				})
			}

			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if !sameOrigin(r) || !tokensMatch(cookieToken, r.Header.Get(cfg.HeaderName)) {
				WriteError(w, ErrorParams{Code: http.StatusForbidden, ErrCode: "csrf_failed", Err: errCSRF})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// sameOrigin accepts requests without an Origin header; non-browser clients
// do not send one and still need the token.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// tokensMatch compares in constant time. An empty cookie never matches, so a
// freshly minted token cannot authorize the request that minted it.
func tokensMatch(cookieToken, headerToken string) bool {
	if cookieToken == "" || headerToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) == 1
}

func generateCSRFToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
