// Package devauth signs every login in as one configured identity. It stands
// in for the OIDC provider when AUTH_MODE=dev.
package devauth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/ports"
)

const (
	defaultCallbackPath = "/auth/callback"
	pendingTTL          = 10 * time.Minute
	maxPending          = 256
)

// ErrUnknownFlow is returned by Exchange for a state this provider never
// issued, one that expired, or a code or nonce that does not match it.
var ErrUnknownFlow = errors.New("devauth: unknown or expired login flow")

// Config is the identity every dev login resolves to.
type Config struct {
	Subject string
	Email   string
	Name    string
}

type pendingFlow struct {
	code    string
	nonce   string
	expires time.Time
}

// Provider implements ports.AuthProvider without a network round trip. Begin
// redirects straight to the callback; Exchange still checks the code and
// nonce against what Begin issued so the callback path is exercised as in prod.
type Provider struct {
	identity domainauth.Identity
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]pendingFlow
}

// NewProvider validates cfg and returns a Provider.
func NewProvider(cfg Config) (*Provider, error) {
	subject := strings.TrimSpace(cfg.Subject)
	email := strings.ToLower(strings.TrimSpace(cfg.Email))
	switch {
	case subject == "":
		return nil, errors.New("devauth: subject is required")
	case !strings.Contains(email, "@"):
		return nil, errors.New("devauth: a valid email is required")
	}
	return &Provider{
		identity: domainauth.Identity{
			Subject:       subject,
			Email:         email,
			EmailVerified: true,
			Name:          strings.TrimSpace(cfg.Name),
		},
		now:     time.Now,
		pending: make(map[string]pendingFlow),
	}, nil
}

// Begin records a new flow and returns a relative URL to the callback path
// of in.RedirectURL carrying the flow's code and state.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	state := ulid.Make().String()
	flow := pendingFlow{
		code:    ulid.Make().String(),
		nonce:   ulid.Make().String(),
		expires: p.now().Add(pendingTTL),
	}

	p.mu.Lock()
	p.pruneLocked()
	p.pending[state] = flow
	p.mu.Unlock()

	callback := defaultCallbackPath
	if u, err := url.Parse(in.RedirectURL); err == nil && u.Path != "" {
		callback = u.Path
	}
	q := url.Values{"code": {flow.code}, "state": {state}}
	return callback + "?" + q.Encode(), state, flow.nonce, nil
}

// Exchange consumes the flow for in.State and returns the configured identity.
func (p *Provider) Exchange(_ context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	p.mu.Lock()
	flow, ok := p.pending[in.State]
	delete(p.pending, in.State)
	p.mu.Unlock()

	if !ok || p.now().After(flow.expires) || flow.code != in.Code || flow.nonce != in.Nonce {
		return domainauth.Identity{}, ErrUnknownFlow
	}
	return p.identity, nil
}

// pruneLocked drops expired flows, then the oldest ones past maxPending.
func (p *Provider) pruneLocked() {
	now := p.now()
	for s, f := range p.pending {
		if now.After(f.expires) {
			delete(p.pending, s)
		}
	}
	for len(p.pending) >= maxPending {
		oldest := ""
		for s := range p.pending {
			if oldest == "" || s < oldest {
				oldest = s
			}
		}
		delete(p.pending, oldest)
	}
}
