package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses Google OAuth/OIDC for authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeDev uses a fixed development identity (for development only).
	AuthModeDev AuthMode = "dev"
)

// minSessionSecretLen is the shortest accepted HMAC secret in bytes.
const minSessionSecretLen = 32

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oauth", "dev":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, dev)", v)
	}
}

// OAuthConfig contains Google OAuth/OIDC configuration.
type OAuthConfig struct {
	Issuer       string `env:"ISSUER"        envDefault:"https://accounts.google.com"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	// HostedDomain limits sign-in to one Google Workspace domain.
	HostedDomain string `env:"HOSTED_DOMAIN"`
	// AllowExpr is an optional JMESPath expression evaluated against the ID token
	// claims; a falsy result rejects the login (e.g. "hd == 'school.edu'").
	AllowExpr string `env:"ALLOW_EXPR"`
}

// DevAuthConfig controls the development identity.
// Used when AUTH_MODE=dev for development and testing.
type DevAuthConfig struct {
	Subject string `env:"SUBJECT" envDefault:"dev-user"`
	Email   string `env:"EMAIL"   envDefault:"dev@example.com"`
	Name    string `env:"NAME"    envDefault:"Dev User"`
}

// SessionConfig controls session token issuance and the session registry.
type SessionConfig struct {
	// Secret is the HMAC key used to sign session tokens.
	// Required for production; a random key is generated in development when empty.
	Secret string `env:"SECRET"`
	// Issuer is embedded in and required from every session token.
	Issuer string `env:"ISSUER" envDefault:"wallmag"`
	// TokenTTL is the lifetime of a session token and its registry entry.
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"168h"`
	// RevocationTTL is how long a hard blacklist entry is kept.
	RevocationTTL time.Duration `env:"REVOCATION_TTL" envDefault:"1h"`
	// RotationGrace is how long a rotated token keeps working.
	RotationGrace time.Duration `env:"ROTATION_GRACE" envDefault:"30s"`
	// StoreTimeout bounds every registry and credential store call.
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"3s"`
	// CookieName is the name of the session cookie.
	CookieName string `env:"COOKIE_NAME" envDefault:"session_token"`
	// CookieSecure forces the Secure attribute regardless of request scheme.
	CookieSecure bool `env:"COOKIE_SECURE" envDefault:"false"`
}

// LoginRateConfig limits login attempts per client IP.
type LoginRateConfig struct {
	PerMinute int `env:"PER_MINUTE" envDefault:"30"`
	Burst     int `env:"BURST"      envDefault:"10"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=dev).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	Session SessionConfig `envPrefix:"SESSION_"`

	LoginRate LoginRateConfig `envPrefix:"LOGIN_RATE_"`
}

// Sanitize applies guardrails to session timings and names.
func (a *AuthConfig) Sanitize() {
	s := &a.Session
	if s.TokenTTL <= 0 {
		s.TokenTTL = 7 * 24 * time.Hour
	}
	if s.RevocationTTL <= 0 {
		s.RevocationTTL = time.Hour
	}
	if s.RotationGrace <= 0 {
		s.RotationGrace = 30 * time.Second
	}
	if s.StoreTimeout <= 0 {
		s.StoreTimeout = 3 * time.Second
	}
	s.CookieName = strings.TrimSpace(s.CookieName)
	if s.CookieName == "" {
		s.CookieName = "session_token"
	}
	s.Issuer = strings.TrimSpace(s.Issuer)
	if a.LoginRate.PerMinute < 0 {
		a.LoginRate.PerMinute = 0
	}
	if a.LoginRate.Burst < 1 {
		a.LoginRate.Burst = 1
	}
	a.OAuth.AllowExpr = strings.TrimSpace(a.OAuth.AllowExpr)
}

// Validate checks that production deployments carry real credentials.
func (a *AuthConfig) Validate(isDev bool) error {
	if a.Mode == AuthModeDev && !isDev {
		return errors.New("AUTH_MODE=dev is only allowed when DEV=true")
	}
	if !isDev && len(a.Session.Secret) < minSessionSecretLen {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSessionSecretLen)
	}
	if a.Mode == AuthModeOAuth && (a.OAuth.ClientID == "" || a.OAuth.ClientSecret == "") {
		if !isDev {
			return errors.New("OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET are required")
		}
	}
	return nil
}
