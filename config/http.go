package config

import (
	"fmt"
	"strings"

	"golang.org/x/net/publicsuffix"
)

type HTTPConfig struct {
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the public origin, used to build the OAuth callback.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain scopes the session and CSRF cookies. Empty means host-only.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// TrustProxy reads the client address from X-Forwarded-For. Only safe
	// behind a proxy that overwrites the header.
	TrustProxy bool `env:"HTTP_TRUST_PROXY" envDefault:"false"`

	CompressionEnabled bool `env:"HTTP_COMPRESSION_ENABLED" envDefault:"false"`
	CompressionLevel   int  `env:"HTTP_COMPRESSION_LEVEL" envDefault:"6"`
}

func (h *HTTPConfig) Sanitize() {
	h.CompressionLevel = min(max(h.CompressionLevel, 1), 9)
	h.CookieDomain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h.CookieDomain)), ".")
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
}

// Validate rejects cookie domains that browsers would refuse or that would
// share the session cookie across unrelated sites.
func (h *HTTPConfig) Validate() error {
	if h.CookieDomain == "" || h.CookieDomain == "localhost" {
		return nil
	}
	suffix, icann := publicsuffix.PublicSuffix(h.CookieDomain)
	if icann && suffix == h.CookieDomain {
		return fmt.Errorf("APP_COOKIE_DOMAIN %q is a public suffix", h.CookieDomain)
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(h.CookieDomain); err != nil {
		return fmt.Errorf("APP_COOKIE_DOMAIN %q: %w", h.CookieDomain, err)
	}
	return nil
}
