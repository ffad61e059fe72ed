package bootstrap

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wallmag/wallmag-api/config"
	"github.com/wallmag/wallmag-api/internal/adapters/devauth"
	jwtcodec "github.com/wallmag/wallmag-api/internal/adapters/jwt"
	"github.com/wallmag/wallmag-api/internal/adapters/oidc"
	"github.com/wallmag/wallmag-api/internal/ports"
)

// AuthConfig contains configuration for the identity provider and token codec.
type AuthConfig struct {
	Auth   config.AuthConfig
	IsDev  bool
	Logger *slog.Logger
}

// BuildAuthProvider creates the identity provider for the configured auth mode.
//
//nolint:ireturn // the provider implementation is selected at runtime.
func BuildAuthProvider(ctx context.Context, cfg AuthConfig) (ports.AuthProvider, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeDev:
		if !cfg.IsDev {
			return nil, errors.New("dev auth requires development mode")
		}
		prov, err := devauth.NewProvider(devauth.Config{
			Subject: cfg.Auth.DevAuth.Subject,
			Email:   cfg.Auth.DevAuth.Email,
			Name:    cfg.Auth.DevAuth.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("create dev auth provider: %w", err)
		}
		if cfg.Logger != nil {
			cfg.Logger.WarnContext(ctx, "dev auth enabled; every login signs in as the configured identity",
				"email", cfg.Auth.DevAuth.Email)
		}
		return prov, nil

	case config.AuthModeOAuth:
		oauth := cfg.Auth.OAuth
		prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			RedirectURL:  oauth.RedirectURL,
			Scope:        oauth.Scope,
			Issuer:       oauth.Issuer,
			HostedDomain: oauth.HostedDomain,
			AllowExpr:    oauth.AllowExpr,
		})
		if err != nil {
			return nil, fmt.Errorf("create oidc provider: %w", err)
		}
		return prov, nil

	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}

// BuildTokenCodec creates the session token codec. In development an empty
// secret is replaced by a random one, so sessions do not survive restarts.
func BuildTokenCodec(cfg AuthConfig) (*jwtcodec.Codec, error) {
	secret := []byte(cfg.Auth.Session.Secret)
	if len(secret) == 0 && cfg.IsDev {
		secret = make([]byte, jwtcodec.MinSecretLen)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		if cfg.Logger != nil {
			cfg.Logger.Warn("SESSION_SECRET not set; using an ephemeral development secret")
		}
	}

	codec, err := jwtcodec.NewCodec(jwtcodec.Config{
		Secret: secret,
		Issuer: cfg.Auth.Session.Issuer,
		TTL:    cfg.Auth.Session.TokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create token codec: %w", err)
	}
	return codec, nil
}
