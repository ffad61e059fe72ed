// Package oidc signs users in with Google (or any OpenID Connect issuer) and
// turns the verified ID token into a domain identity.
package oidc

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	jmespath "github.com/jmespath-community/go-jmespath"
	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/ports"
	"golang.org/x/oauth2"
)

// ErrLoginNotAllowed is returned by Exchange for identities without a
// verified email, outside the hosted domain, or failing the allow expression.
var ErrLoginNotAllowed = ports.ErrLoginNotAllowed

const defaultHTTPTimeout = 30 * time.Second

// ProviderConfig configures the issuer and the OAuth client.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	Issuer       string
	// HostedDomain restricts logins to one Google Workspace domain (the "hd" claim).
	HostedDomain string
	// AllowExpr is an optional JMESPath expression over the ID token claims.
	AllowExpr  string
	HTTPClient *http.Client
}

func (c ProviderConfig) validate() error {
	switch {
	case c.ClientID == "":
		return errors.New("client ID is required")
	case c.ClientSecret == "":
		return errors.New("client secret is required")
	case c.RedirectURL == "":
		return errors.New("redirect URL is required")
	case c.Issuer == "":
		return errors.New("issuer is required")
	}
	return nil
}

// claimMatcher is a compiled allow expression.
type claimMatcher interface {
	Search(data any) (any, error)
}

// Provider implements ports.AuthProvider against an OIDC issuer.
type Provider struct {
	oauth        *oauth2.Config
	httpClient   *http.Client
	issuer       *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
	hostedDomain string
	allow        claimMatcher
}

// NewProvider validates cfg and fetches the issuer's discovery document.
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	allow, err := compileAllow(cfg.AllowExpr)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	issuerURL := strings.TrimSuffix(strings.TrimSuffix(cfg.Issuer, "/"), "/.well-known/openid-configuration")
	issuer, err := gooidc.NewProvider(gooidc.ClientContext(ctx, httpClient), issuerURL)
	if err != nil {
		return nil, fmt.Errorf("discover issuer %s: %w", issuerURL, err)
	}

	scopes := strings.Fields(cfg.Scope)
	if !slices.Contains(scopes, gooidc.ScopeOpenID) {
		scopes = append([]string{gooidc.ScopeOpenID}, scopes...)
	}

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     issuer.Endpoint(),
		},
		httpClient:   httpClient,
		issuer:       issuer,
		verifier:     issuer.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
		hostedDomain: strings.ToLower(strings.TrimSpace(cfg.HostedDomain)),
		allow:        allow,
	}, nil
}

func compileAllow(expr string) (claimMatcher, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	compiled, err := jmespath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid allow expression: %w", err)
	}
	return compiled, nil
}

// Begin returns the issuer's consent URL with a fresh state and nonce. The
// redirect_uri is always the configured one; in.RedirectURL only has to be set.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}
	state, nonce := rand.Text(), rand.Text()

	opts := []oauth2.AuthCodeOption{
		gooidc.Nonce(nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	}
	if p.hostedDomain != "" {
		opts = append(opts, oauth2.SetAuthURLParam("hd", p.hostedDomain))
	}
	return p.oauth.AuthCodeURL(state, opts...), state, nonce, nil
}

// Exchange redeems the code, verifies the ID token and its nonce, and applies
// the admission rules.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	switch {
	case in.Code == "":
		return domainauth.Identity{}, errors.New("authorization code is required")
	case in.State == "":
		return domainauth.Identity{}, errors.New("state is required")
	case in.Nonce == "":
		return domainauth.Identity{}, errors.New("nonce is required")
	}

	ctx = gooidc.ClientContext(ctx, p.httpClient)
	tok, err := p.oauth.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	claims, raw, err := p.verifyIDToken(ctx, tok, in.Nonce)
	if err != nil {
		return domainauth.Identity{}, err
	}
	if claims.Email == "" {
		ui, err := p.issuer.UserInfo(ctx, oauth2.StaticTokenSource(tok))
		if err != nil {
			return domainauth.Identity{}, fmt.Errorf("fetch user info: %w", err)
		}
		var extra googleClaims
		if err := ui.Claims(&extra); err != nil {
			return domainauth.Identity{}, fmt.Errorf("decode user info: %w", err)
		}
		fillMissingClaims(&claims, extra)
	}

	if err := p.checkAllowed(claims, raw); err != nil {
		return domainauth.Identity{}, err
	}
	return claims.identity(), nil
}

// googleClaims is the subset of ID token and userinfo claims we consume.
type googleClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	HostedDomain  string `json:"hd"`
	Nonce         string `json:"nonce"`
}

func (c googleClaims) identity() domainauth.Identity {
	return domainauth.Identity{
		Subject:       c.Sub,
		Email:         strings.ToLower(strings.TrimSpace(c.Email)),
		EmailVerified: c.EmailVerified,
		Name:          strings.TrimSpace(c.Name),
		PictureURL:    c.Picture,
	}
}

func (p *Provider) verifyIDToken(ctx context.Context, tok *oauth2.Token, nonce string) (googleClaims, map[string]any, error) {
	var claims googleClaims
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return claims, nil, err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return claims, nil, fmt.Errorf("verify id_token: %w", err)
	}
	raw := map[string]any{}
	if err := idTok.Claims(&claims); err != nil {
		return claims, nil, fmt.Errorf("parse id_token claims: %w", err)
	}
	if err := idTok.Claims(&raw); err != nil {
		return claims, nil, fmt.Errorf("parse id_token claims: %w", err)
	}
	if claims.Nonce != nonce {
		return claims, nil, errors.New("id_token nonce mismatch")
	}
	return claims, raw, nil
}

// fillMissingClaims copies userinfo fields into dst where dst has none.
// The subject always comes from the ID token.
func fillMissingClaims(dst *googleClaims, src googleClaims) {
	if dst.Email == "" {
		dst.Email, dst.EmailVerified = src.Email, src.EmailVerified
	}
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.Picture == "" {
		dst.Picture = src.Picture
	}
	if dst.HostedDomain == "" {
		dst.HostedDomain = src.HostedDomain
	}
}

func (p *Provider) checkAllowed(c googleClaims, raw map[string]any) error {
	switch {
	case c.Sub == "" || c.Email == "":
		return fmt.Errorf("%w: missing subject or email", ErrLoginNotAllowed)
	case !c.EmailVerified:
		return fmt.Errorf("%w: email not verified", ErrLoginNotAllowed)
	case p.hostedDomain != "" && !strings.EqualFold(c.HostedDomain, p.hostedDomain):
		return fmt.Errorf("%w: account is outside %s", ErrLoginNotAllowed, p.hostedDomain)
	}
	if p.allow == nil {
		return nil
	}
	res, err := p.allow.Search(raw)
	if err != nil {
		return fmt.Errorf("evaluate allow expression: %w", err)
	}
	if !truthy(res) {
		return ErrLoginNotAllowed
	}
	return nil
}

// truthy follows JMESPath truthiness: null, false and empty values are false.
func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}
	return true
}

func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, _ := tok.Extra("id_token").(string)
	if s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
