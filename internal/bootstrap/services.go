package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/wallmag/wallmag-api/config"
	redisadapter "github.com/wallmag/wallmag-api/internal/adapters/redis"
	"github.com/wallmag/wallmag-api/internal/data"
	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/observability/metrics"
	"github.com/wallmag/wallmag-api/internal/ports"
	"github.com/wallmag/wallmag-api/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	// Credentials is the user store backing every service.
	Credentials ports.CredentialStore

	Sessions *service.SessionManager
	Auth     *service.AuthService
	Roles    *service.RoleService
	Users    *service.UserAdminService
	Metrics  *metrics.Metrics

	// Readiness probes the backing stores.
	Readiness map[string]func(context.Context) error
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	// Provider overrides the configured identity provider (tests, admin CLI).
	Provider ports.AuthProvider
	Logger   *slog.Logger
}

// NewServices wires repositories, adapters and services.
func NewServices(ctx context.Context, deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service deps require a config")
	}
	if deps.DB == nil || deps.RedisClient == nil {
		return nil, errors.New("service deps require database and redis clients")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	authCfg := AuthConfig{Auth: cfg.Auth, IsDev: cfg.IsDev, Logger: logger}

	codec, err := BuildTokenCodec(authCfg)
	if err != nil {
		return nil, err
	}
	provider := deps.Provider
	if provider == nil {
		provider, err = BuildAuthProvider(ctx, authCfg)
		if err != nil {
			return nil, err
		}
	}

	users := data.NewUserRepo(deps.DB)
	store := redisadapter.NewStore(deps.RedisClient)
	audit := redisadapter.NewAuditLog(deps.RedisClient)

	var m *metrics.Metrics
	if cfg.Observability.Metrics.IsEnabled() {
		m = metrics.New()
	}

	sess := cfg.Auth.Session
	sessions := service.NewSessionManager(service.SessionManagerOptions{
		Codec:         codec,
		Registry:      store,
		Users:         users,
		RevocationTTL: sess.RevocationTTL,
		RotationGrace: sess.RotationGrace,
		StoreTimeout:  sess.StoreTimeout,
		Logger:        logger.With("component", "sessions"),
		Metrics:       m,
	})

	return &ServiceContainer{
		Credentials: users,
		Sessions:    sessions,
		Auth: service.NewAuthService(service.AuthServiceOptions{
			Provider: provider,
			Users:    users,
			Sessions: sessions,
			Metrics:  m,
			Logger:   logger.With("component", "auth"),
		}),
		Roles: service.NewRoleService(service.RoleServiceOptions{
			Users:    users,
			Sessions: sessions,
			Audit:    audit,
			Logger:   logger.With("component", "roles"),
			Metrics:  m,
		}),
		Users: service.NewUserAdminService(service.UserAdminServiceOptions{
			Users:    users,
			Sessions: sessions,
			Audit:    audit,
			Counters: store,
			Logger:   logger.With("component", "user_admin"),
		}),
		Metrics: m,
		Readiness: map[string]func(context.Context) error{
			"postgres": deps.DB.PingContext,
			"redis":    store.Health,
		},
	}, nil
}

// NewAdminServices wires the services used by the admin CLI. No identity
// provider is needed because the CLI never runs a login flow.
func NewAdminServices(deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service deps require a config")
	}
	d := *deps
	if d.Provider == nil {
		d.Provider = noLoginProvider{}
	}
	svc, err := NewServices(context.Background(), &d)
	if err != nil {
		return nil, fmt.Errorf("wire admin services: %w", err)
	}
	return svc, nil
}

// noLoginProvider refuses every login; it backs services that never authenticate users.
type noLoginProvider struct{}

func (noLoginProvider) Begin(context.Context, ports.BeginInput) (string, string, string, error) {
	return "", "", "", errors.New("login is not available here")
}

func (noLoginProvider) Exchange(context.Context, ports.ExchangeInput) (domainauth.Identity, error) {
	return domainauth.Identity{}, errors.New("login is not available here")
}
