package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/domain/model"
	"github.com/wallmag/wallmag-api/internal/observability/metrics"
	"github.com/wallmag/wallmag-api/internal/ports"
)

// Login outcomes recorded by AuthService.
const (
	loginOK       = "ok"
	loginDenied   = "denied"
	loginInactive = "inactive"
	loginError    = "error"
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider ports.AuthProvider
	Users    ports.CredentialStore
	Sessions *SessionManager
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// AuthService runs the sign-in flow: the identity provider proves who the
// caller is, the credential store maps that to a user and the session
// manager hands out the token.
type AuthService struct {
	provider ports.AuthProvider
	users    ports.CredentialStore
	sessions *SessionManager
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewAuthService(opts AuthServiceOptions) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		provider: opts.Provider,
		users:    opts.Users,
		sessions: opts.Sessions,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// BeginLoginResult is what the callback needs to finish the flow later.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin asks the provider for an authorization URL that returns to redirectURL.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if redirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	var (
		res BeginLoginResult
		err error
	)
	res.AuthURL, res.State, res.Nonce, err = s.provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &res, nil
}

// CompleteLoginInput carries the callback parameters and the stored nonce.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

func (in CompleteLoginInput) validate() error {
	switch {
	case in.Code == "":
		return errors.New("authorization code is required")
	case in.State == "":
		return errors.New("state parameter is required")
	case in.Nonce == "":
		return errors.New("nonce parameter is required")
	}
	return nil
}

type CompleteLoginResult struct {
	Session IssuedSession
	User    *model.User
	// Created reports whether this login created the user record.
	Created bool
}

// CompleteLogin exchanges the code, resolves the user (creating it on first
// sight) and issues a session. Deactivated users get KindAccountInactive.
func (s *AuthService) CompleteLogin(ctx context.Context, in CompleteLoginInput) (*CompleteLoginResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	res, err := s.completeLogin(ctx, in)
	s.metrics.Login(loginOutcome(err))
	return res, err
}

func (s *AuthService) completeLogin(ctx context.Context, in CompleteLoginInput) (*CompleteLoginResult, error) {
	ident, err := s.provider.Exchange(ctx, ports.ExchangeInput{Code: in.Code, State: in.State, Nonce: in.Nonce})
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	user, created, err := s.users.FindOrCreateFromProvider(ctx, ident)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	log := s.logger.With("user_id", user.ID)
	if created {
		log.InfoContext(ctx, "user created on first login", "email", user.Email)
	}
	if !user.Active {
		log.WarnContext(ctx, "login refused for inactive user")
		return nil, domainauth.NewError(domainauth.KindAccountInactive, nil)
	}

	sess, err := s.sessions.Issue(ctx, user)
	if err != nil {
		return nil, err
	}
	return &CompleteLoginResult{Session: sess, User: user, Created: created}, nil
}

func loginOutcome(err error) string {
	switch {
	case err == nil:
		return loginOK
	case errors.Is(err, ports.ErrLoginNotAllowed):
		return loginDenied
	case domainauth.KindOf(err) == domainauth.KindAccountInactive:
		return loginInactive
	default:
		return loginError
	}
}

// CurrentUser validates token and returns the identity it represents.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (domainauth.IdentityContext, error) {
	return s.sessions.Validate(ctx, token)
}

// Refresh rotates the session carried by token.
func (s *AuthService) Refresh(ctx context.Context, token string) (IssuedSession, error) {
	return s.sessions.Rotate(ctx, token)
}

// Logout revokes the session carried by token. An empty token is a no-op.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.RevokeToken(ctx, token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
