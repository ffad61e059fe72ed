package httpx

import (
	"net/http"
	"strings"
	"time"
)

// DefaultSessionCookieName is used when CookieConfig.Name is empty.
const DefaultSessionCookieName = "session_token"

// oauthCookieMaxAge bounds how long a login round trip may take.
const oauthCookieMaxAge = 600

// CookieConfig sets the attributes shared by the session, OAuth flow and
// CSRF cookies.
type CookieConfig struct {
	Name   string
	Domain string
	// Secure forces the Secure attribute on plain HTTP too. TLS and
	// X-Forwarded-Proto: https imply it.
	Secure bool
}

func (c CookieConfig) name() string {
	if c.Name == "" {
		return DefaultSessionCookieName
	}
	return c.Name
}

func (c CookieConfig) secure(r *http.Request) bool {
	return c.Secure || r.TLS != nil || isForwardedHTTPS(r)
}

// sessionToken returns the session token presented by the request, if any.
func (c CookieConfig) sessionToken(r *http.Request) string {
	if ck, err := r.Cookie(c.name()); err == nil {
		return ck.Value
	}
	return ""
}

// setSession writes the session cookie so that it expires with the token.
func (c CookieConfig) setSession(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	c.set(w, r, c.name(), token, max(int(time.Until(expiresAt).Seconds()), 1))
}

// clearSession deletes the session cookie on the client.
func (c CookieConfig) clearSession(w http.ResponseWriter, r *http.Request) {
	c.clear(w, r, c.name())
}

func (c CookieConfig) set(w http.ResponseWriter, r *http.Request, name, value string, maxAge int) {
	ck := c.base(r, name)
	ck.Value, ck.MaxAge = value, maxAge
	http.SetCookie(w, ck)
}

// clear expires name with the attributes it was set with; browsers ignore
// deletions whose Domain or Path differ.
func (c CookieConfig) clear(w http.ResponseWriter, r *http.Request, name string) {
	ck := c.base(r, name)
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0).UTC()
	http.SetCookie(w, ck)
}

func (c CookieConfig) base(r *http.Request, name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.secure(r),
		SameSite: http.SameSiteLaxMode,
	}
}

// isForwardedHTTPS reports whether any X-Forwarded-Proto hop was https.
func isForwardedHTTPS(r *http.Request) bool {
	for proto := range strings.SplitSeq(r.Header.Get("X-Forwarded-Proto"), ",") {
		if strings.EqualFold(strings.TrimSpace(proto), "https") {
			return true
		}
	}
	return false
}
