// Command wallmag-admin manages accounts, sessions and the schema from a
// shell. It talks to the same Postgres and Redis as the API server.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/wallmag/wallmag-api/config"
	"github.com/wallmag/wallmag-api/internal/bootstrap"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
	In     io.Reader
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code) //nolint:forbidigo // exit status is the CLI's contract with scripts
}

func run(ctx context.Context, args []string) int {
	logger := bootstrap.InitLogger(os.Getenv("LOG_LEVEL"))

	if len(args) == 0 {
		_ = printUsage(os.Stdout)
		return exitUsage
	}
	cmd, ok := commands()[args[0]]
	if !ok {
		_ = writef(os.Stderr, "unknown command %q\n\n", args[0])
		_ = printUsage(os.Stderr)
		return exitUsage
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(ctx, "load config", "error", err)
		return exitFailure
	}

	cc := &commandContext{Ctx: ctx, Logger: logger, Config: cfg, Out: os.Stdout, In: os.Stdin}
	if err := cmd.run(cc, args[1:]); err != nil {
		logger.ErrorContext(ctx, "command failed", "command", args[0], "error", err)
		return exitFailure
	}
	return exitOK
}

func commands() map[string]command {
	return map[string]command{
		"migrate":         {"Run database migrations", runMigrations},
		"create-user":     {"Create a user ahead of their first login", withAdminEnv(runCreateUser)},
		"grant-role":      {"Replace a user's roles and sign them out everywhere", withAdminEnv(runGrantRole)},
		"set-active":      {"Activate or deactivate a user", withAdminEnv(runSetActive)},
		"list-users":      {"List staff accounts (editor and above)", withAdminEnv(runListUsers)},
		"list-sessions":   {"List the live sessions of a user", withAdminEnv(runListSessions)},
		"revoke-sessions": {"Sign a user out of every session", withAdminEnv(runRevokeSessions)},
		"audit":           {"Show recent security audit events", withAdminEnv(runAudit)},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: wallmag-admin <command> [flags]\n\nAvailable commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	for _, name := range slices.Sorted(maps.Keys(cmds)) {
		if err := writef(w, "  %-18s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, s string) error {
	_, err := fmt.Fprintln(w, s)
	return err
}
