package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/wallmag/wallmag-api/internal/domain/model"
)

type sessionsOptions struct {
	Email string
	Yes   bool
}

func parseSessionsFlags(name string, args []string, out io.Writer) (sessionsOptions, error) {
	fs := newFlagSet(name, out)
	var opts sessionsOptions
	fs.StringVar(&opts.Email, "email", "", "Email address of the user")
	if name == "revoke-sessions" {
		fs.BoolVarP(&opts.Yes, "yes", "y", false, "Skip the confirmation prompt")
	}
	if err := fs.Parse(args); err != nil {
		return sessionsOptions{}, err
	}
	if strings.TrimSpace(opts.Email) == "" {
		return sessionsOptions{}, errors.New("--email is required")
	}
	return opts, nil
}

func runListSessions(env *adminEnv, args []string) error {
	opts, err := parseSessionsFlags("list-sessions", args, env.out())
	if err != nil {
		return err
	}
	u, err := env.userByEmail(opts.Email)
	if err != nil {
		return err
	}
	sessions, err := env.Admin.ListSessions(env.Ctx, u.ID)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	tw := tabwriter.NewWriter(env.out(), 0, 4, 2, ' ', 0)
	if err := writeln(tw, "Session\tRotating"); err != nil {
		return fmt.Errorf("write sessions header: %w", err)
	}
	for _, s := range sessions {
		if err := writef(tw, "%s\t%t\n", s.SessionID, s.Rotating); err != nil {
			return fmt.Errorf("write session %s: %w", s.SessionID, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush sessions: %w", err)
	}
	return writef(env.out(), "%d live session(s) for %s\n", len(sessions), u.Email)
}

func runRevokeSessions(env *adminEnv, args []string) error {
	opts, err := parseSessionsFlags("revoke-sessions", args, env.out())
	if err != nil {
		return err
	}
	u, err := env.userByEmail(opts.Email)
	if err != nil {
		return err
	}
	if !opts.Yes {
		if err := confirm(env, fmt.Sprintf("Sign %s out of every session?", u.Email)); err != nil {
			return err
		}
	}
	n, err := env.Admin.RevokeSessions(env.Ctx, env.actor(), u.ID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return writef(env.out(), "revoked %d session(s) for %s\n", n, u.Email)
}

type auditOptions struct {
	Kind  string
	Limit int
	JSON  bool
}

func parseAuditFlags(args []string, out io.Writer) (auditOptions, error) {
	fs := newFlagSet("audit", out)
	var opts auditOptions
	fs.StringVar(&opts.Kind, "kind", string(model.AuditRoleChange),
		"Event kind: role_change, user_search, sessions_revoke, user_activation")
	fs.IntVar(&opts.Limit, "limit", 20, "Maximum number of events")
	fs.BoolVar(&opts.JSON, "json", false, "Print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return auditOptions{}, err
	}
	if _, ok := model.ParseAuditKind(opts.Kind); !ok {
		return auditOptions{}, fmt.Errorf("unknown --kind %q", opts.Kind)
	}
	return opts, nil
}

func runAudit(env *adminEnv, args []string) error {
	opts, err := parseAuditFlags(args, env.out())
	if err != nil {
		return err
	}
	events, err := env.Admin.ListAudit(env.Ctx, opts.Kind, opts.Limit)
	if err != nil {
		return fmt.Errorf("list audit events: %w", err)
	}
	if opts.JSON {
		return printJSON(env.out(), events)
	}

	tw := tabwriter.NewWriter(env.out(), 0, 4, 2, ' ', 0)
	if err := writeln(tw, "At\tActor\tTarget\tDetails"); err != nil {
		return fmt.Errorf("write audit header: %w", err)
	}
	for _, ev := range events {
		actor := ev.ActorEmail
		if actor == "" {
			actor = ev.ActorID
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\n",
			ev.At.UTC().Format(time.RFC3339), actor, ev.TargetID, formatDetails(ev.Details)); err != nil {
			return fmt.Errorf("write audit event %s: %w", ev.ID, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush audit events: %w", err)
	}
	return nil
}

func formatDetails(details map[string]any) string {
	if len(details) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	return strings.Join(parts, " ")
}
