package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/redis/go-redis/v9"
	"github.com/wallmag/wallmag-api/config"
	"github.com/wallmag/wallmag-api/internal/migrate"
)

const connectTimeout = 5 * time.Second

// DatabaseConfig contains configuration for database connections.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

// postgresDSN builds a pgx URL; url.URL escapes credentials.
func postgresDSN(cfg config.DBConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	q := u.Query()
	q.Set("sslmode", cfg.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// ConnectDB opens the credential store pool and verifies it with a ping.
func ConnectDB(cfg DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", postgresDSN(cfg.DBConfig))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	applyPoolLimits(db, cfg.DBConfig)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if pingErr := db.PingContext(ctx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close database connection: %w", closeErr))
		}
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("database connected",
			"host", cfg.DBConfig.Host,
			"database", cfg.DBConfig.Name,
			"max_open_conns", cfg.DBConfig.MaxOpenConns)
	}
	return db, nil
}

func applyPoolLimits(db *sql.DB, cfg config.DBConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// redisOptions maps config onto go-redis universal options. Setting
// MasterName makes go-redis build a Sentinel failover client.
func redisOptions(cfg config.RedisConfig) (*redis.UniversalOptions, string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	if cfg.UseSentinel {
		return &redis.UniversalOptions{
			Addrs:            cfg.SentinelNodes,
			MasterName:       cfg.SentinelMasterName,
			Password:         cfg.Password,
			SentinelPassword: cfg.SentinelPassword,
			DB:               cfg.DB,
		}, "sentinel:" + cfg.SentinelMasterName, nil
	}

	uri := strings.TrimSpace(cfg.URI)
	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		return &redis.UniversalOptions{Addrs: []string{uri}, Password: cfg.Password, DB: cfg.DB}, uri, nil
	}

	opt, err := redis.ParseURL(uri)
	if err != nil {
		return nil, "", fmt.Errorf("parse redis url: %w", err)
	}
	if opt.Password == "" {
		opt.Password = cfg.Password
	}
	return &redis.UniversalOptions{
		Addrs:     []string{opt.Addr},
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, opt.Addr, nil
}

// ConnectRedis connects the session registry client and verifies it with a ping.
//
//nolint:ireturn // returning redis.UniversalClient lets us pick single or sentinel clients at runtime.
func ConnectRedis(cfg DatabaseConfig) (redis.UniversalClient, error) {
	opts, desc, err := redisOptions(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("redis connected", "addr", desc, "db", opts.DB)
	}
	return client, nil
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := migrate.Run(ctx, db, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}
	return nil
}

// Infra holds the storage clients shared by a process. Redis is nil when the
// process opened Postgres only.
type Infra struct {
	DB     *sql.DB
	Redis  redis.UniversalClient
	logger *slog.Logger
}

// OpenInfra connects Postgres and, when withRedis is set, Redis. A failed
// Redis connect closes the database before returning.
func OpenInfra(cfg *config.AppConfig, logger *slog.Logger, withRedis bool) (*Infra, error) {
	deps := DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}
	db, err := ConnectDB(deps)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	infra := &Infra{DB: db, logger: logger}
	if !withRedis {
		return infra, nil
	}

	client, err := ConnectRedis(deps)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close database: %w", cerr))
		}
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	infra.Redis = client
	return infra, nil
}

// Close releases every client, logging failures.
func (i *Infra) Close() {
	logger := i.logger
	if logger == nil {
		logger = slog.Default()
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			logger.Warn("close redis failed", "error", err)
		}
	}
	if err := i.DB.Close(); err != nil {
		logger.Warn("close database failed", "error", err)
	}
}
