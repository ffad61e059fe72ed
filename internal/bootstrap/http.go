package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wallmag/wallmag-api/config"
	httpx "github.com/wallmag/wallmag-api/internal/http"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

// BuildHandler assembles the router from the service container.
func BuildHandler(cfg *HTTPServerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}
	svc := cfg.Services

	readiness := make(map[string]httpx.ReadinessCheck, len(svc.Readiness))
	for name, check := range svc.Readiness {
		readiness[name] = check
	}

	services := httpx.RouterServices{
		Auth:     svc.Auth,
		Sessions: svc.Sessions,
		Roles:    svc.Roles,
		Users:    svc.Users,
		Cookies: httpx.CookieConfig{
			Name:   appCfg.Auth.Session.CookieName,
			Domain: appCfg.HTTP.CookieDomain,
			Secure: appCfg.Auth.Session.CookieSecure,
		},
		LoginRate: httpx.IPRateLimitConfig{
			PerMinute:  appCfg.Auth.LoginRate.PerMinute,
			Burst:      appCfg.Auth.LoginRate.Burst,
			TrustProxy: appCfg.HTTP.TrustProxy,
		},
		Readiness: readiness,
		Metrics:   svc.Metrics,
		Logger:    logger,
	}
	if appCfg.Observability.Metrics.IsEnabled() {
		services.MetricsPath = appCfg.Observability.Metrics.Path
	}
	if appCfg.HTTP.CompressionEnabled {
		logger.Info("HTTP compression enabled", "level", appCfg.HTTP.CompressionLevel)
		services.Compression = &httpx.CompressionConfig{Level: appCfg.HTTP.CompressionLevel, Logger: logger}
	}
	return httpx.NewRouter(services)
}

func newServer(handler http.Handler, addr string) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// RunHTTPServer serves until ctx is canceled, then shuts the server down gracefully.
func RunHTTPServer(ctx context.Context, cfg *HTTPServerConfig) error {
	if cfg == nil || cfg.Services == nil {
		return errors.New("http server config requires services")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := ""
	if cfg.Config != nil {
		addr = cfg.Config.HTTP.Addr
	}
	server := newServer(BuildHandler(cfg), addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		logger.Info("HTTP server stopped")
		return nil
	})
	return g.Wait()
}
