package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/wallmag/wallmag-api/internal/bootstrap"
	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/domain/model"
	"github.com/wallmag/wallmag-api/internal/ports"
	"github.com/wallmag/wallmag-api/internal/service"
)

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 30 * time.Second
)

// cliActorID identifies the admin CLI in logs and audit events.
const cliActorID = "cli"

// roleAssigner applies role changes; implemented by service.RoleService.
type roleAssigner interface {
	AssignRoles(
		ctx context.Context,
		actor domainauth.IdentityContext,
		in service.AssignRolesInput,
	) (*service.AssignRolesResult, error)
}

// userAdmin is the subset of service.UserAdminService the CLI uses.
type userAdmin interface {
	ListPrivileged(ctx context.Context, role string) ([]*model.User, error)
	SetActive(
		ctx context.Context,
		actor domainauth.IdentityContext,
		targetID string,
		active bool,
	) (*service.SetActiveResult, error)
	ListSessions(ctx context.Context, userID string) ([]service.SessionInfo, error)
	RevokeSessions(ctx context.Context, actor domainauth.IdentityContext, userID string) (int, error)
	ListAudit(ctx context.Context, kind string, limit int) ([]model.AuditEvent, error)
}

// adminEnv carries the services a user-management command needs.
type adminEnv struct {
	Ctx    context.Context
	Logger *slog.Logger
	Users  ports.CredentialStore
	Roles  roleAssigner
	Admin  userAdmin
	cmd    *commandContext
}

// actor is the identity the CLI acts as. It holds admin so operators can
// bootstrap the first administrator.
func (e *adminEnv) actor() domainauth.IdentityContext {
	return domainauth.IdentityContext{
		UserID: cliActorID,
		Email:  cliActorID,
		Roles:  []domainauth.Role{domainauth.RoleAdmin},
	}
}

// userByEmail resolves an email to a user record.
func (e *adminEnv) userByEmail(email string) (*model.User, error) {
	if email == "" {
		return nil, errors.New("--email is required")
	}
	u, err := e.Users.GetByEmail(e.Ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", email, err)
	}
	return u, nil
}

type adminCommandFn func(env *adminEnv, args []string) error

// withAdminEnv connects Postgres and Redis, wires the services and runs fn.
func withAdminEnv(fn adminCommandFn) commandFn {
	return func(cmdCtx *commandContext, args []string) error {
		ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
		defer cancel()

		infra, err := bootstrap.OpenInfra(&cmdCtx.Config, cmdCtx.Logger, true)
		if err != nil {
			return err
		}
		defer infra.Close()

		svc, err := bootstrap.NewAdminServices(&bootstrap.ServiceDeps{
			Config:      &cmdCtx.Config,
			DB:          infra.DB,
			RedisClient: infra.Redis,
			Logger:      cmdCtx.Logger,
		})
		if err != nil {
			return err
		}
		return fn(&adminEnv{
			Ctx:    ctx,
			Logger: cmdCtx.Logger,
			Users:  svc.Credentials,
			Roles:  svc.Roles,
			Admin:  svc.Users,
			cmd:    cmdCtx,
		}, args)
	}
}

type migrateOptions struct {
	Timeout time.Duration
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete")

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	infra, err := bootstrap.OpenInfra(&cmdCtx.Config, cmdCtx.Logger, false)
	if err != nil {
		return err
	}
	defer infra.Close()

	return bootstrap.RunMigrations(ctx, infra.DB, cmdCtx.Logger)
}
