// Command wallmag serves the wall-magazine auth API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wallmag/wallmag-api/config"
	"github.com/wallmag/wallmag-api/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.ErrorContext(ctx, "wallmag exited", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // non-zero status for supervisors
	}
}

func run(ctx context.Context) error {
	// Config errors are logged at LOG_LEVEL before the config itself is known.
	bootstrap.InitLogger(os.Getenv("LOG_LEVEL"))
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger := bootstrap.InitLogger(cfg.LogLevel)
	logger.InfoContext(ctx, "starting", startupAttrs(&cfg)...)

	infra, err := bootstrap.OpenInfra(&cfg, logger, true)
	if err != nil {
		return err
	}
	defer infra.Close()

	if cfg.Postgres.RunMigrationsOnStart {
		if err := bootstrap.RunMigrations(ctx, infra.DB, logger); err != nil {
			return err
		}
	}

	services, err := bootstrap.NewServices(ctx, &bootstrap.ServiceDeps{
		Config:      &cfg,
		DB:          infra.DB,
		RedisClient: infra.Redis,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	return bootstrap.RunHTTPServer(ctx, &bootstrap.HTTPServerConfig{
		Config:   &cfg,
		Services: services,
		Logger:   logger,
	})
}

func startupAttrs(cfg *config.AppConfig) []any {
	return []any{
		"addr", cfg.HTTP.Addr,
		"auth_mode", cfg.Auth.Mode,
		"dev", cfg.IsDev,
		"db", cfg.Postgres.Host + "/" + cfg.Postgres.Name,
		"migrate_on_start", cfg.Postgres.RunMigrationsOnStart,
		"metrics", cfg.Observability.Metrics.Enabled,
	}
}
