package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/domain/model"
	"github.com/wallmag/wallmag-api/internal/service"
)

func newFlagSet(name string, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func (e *adminEnv) out() io.Writer { return e.cmd.Out }

type createUserOptions struct {
	Email string
	Name  string
	Roles []string
}

func parseCreateUserFlags(args []string, out io.Writer) (createUserOptions, error) {
	fs := newFlagSet("create-user", out)
	var opts createUserOptions
	fs.StringVar(&opts.Email, "email", "", "Email address of the new user")
	fs.StringVar(&opts.Name, "name", "", "Display name")
	fs.StringSliceVar(&opts.Roles, "roles", []string{string(domainauth.RoleUser)}, "Comma-separated roles")
	if err := fs.Parse(args); err != nil {
		return createUserOptions{}, err
	}
	if strings.TrimSpace(opts.Email) == "" {
		return createUserOptions{}, errors.New("--email is required")
	}
	return opts, nil
}

func runCreateUser(env *adminEnv, args []string) error {
	opts, err := parseCreateUserFlags(args, env.out())
	if err != nil {
		return err
	}
	roles, err := domainauth.ParseRoleSet(opts.Roles)
	if err != nil {
		return fmt.Errorf("invalid --roles: %w", err)
	}
	u, err := env.Users.Create(env.Ctx, model.CreateUserRequest{Email: opts.Email, Name: opts.Name, Roles: roles})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	env.Logger.Info("user created", "user_id", u.ID, "email", u.Email, "roles", domainauth.RoleStrings(u.Roles))
	return printUsers(env.out(), []*model.User{u})
}

type grantRoleOptions struct {
	Email string
	Roles []string
}

func parseGrantRoleFlags(args []string, out io.Writer) (grantRoleOptions, error) {
	fs := newFlagSet("grant-role", out)
	var opts grantRoleOptions
	fs.StringVar(&opts.Email, "email", "", "Email address of the user")
	fs.StringSliceVar(&opts.Roles, "roles", nil, "Comma-separated roles replacing the current set")
	if err := fs.Parse(args); err != nil {
		return grantRoleOptions{}, err
	}
	if strings.TrimSpace(opts.Email) == "" {
		return grantRoleOptions{}, errors.New("--email is required")
	}
	if len(opts.Roles) == 0 {
		return grantRoleOptions{}, errors.New("--roles is required")
	}
	return opts, nil
}

func runGrantRole(env *adminEnv, args []string) error {
	opts, err := parseGrantRoleFlags(args, env.out())
	if err != nil {
		return err
	}
	u, err := env.userByEmail(opts.Email)
	if err != nil {
		return err
	}
	res, err := env.Roles.AssignRoles(env.Ctx, env.actor(), service.AssignRolesInput{TargetID: u.ID, Roles: opts.Roles})
	if err != nil {
		return fmt.Errorf("assign roles: %w", err)
	}
	return writef(env.out(), "%s now holds %s; %d session(s) revoked\n",
		res.Identity.Email, strings.Join(domainauth.RoleStrings(res.Identity.Roles), ","), res.RevokedSessions)
}

type setActiveOptions struct {
	Email  string
	Active bool
	Yes    bool
}

func parseSetActiveFlags(args []string, out io.Writer) (setActiveOptions, error) {
	fs := newFlagSet("set-active", out)
	var opts setActiveOptions
	fs.StringVar(&opts.Email, "email", "", "Email address of the user")
	fs.BoolVar(&opts.Active, "active", true, "Whether the account may sign in")
	fs.BoolVarP(&opts.Yes, "yes", "y", false, "Skip the confirmation prompt when deactivating")
	if err := fs.Parse(args); err != nil {
		return setActiveOptions{}, err
	}
	if strings.TrimSpace(opts.Email) == "" {
		return setActiveOptions{}, errors.New("--email is required")
	}
	return opts, nil
}

func runSetActive(env *adminEnv, args []string) error {
	opts, err := parseSetActiveFlags(args, env.out())
	if err != nil {
		return err
	}
	u, err := env.userByEmail(opts.Email)
	if err != nil {
		return err
	}
	if !opts.Active && !opts.Yes {
		if err := confirm(env, fmt.Sprintf("Deactivate %s and sign them out everywhere?", u.Email)); err != nil {
			return err
		}
	}
	res, err := env.Admin.SetActive(env.Ctx, env.actor(), u.ID, opts.Active)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	state := "active"
	if !res.User.Active {
		state = "inactive"
	}
	return writef(env.out(), "%s is now %s; %d session(s) revoked\n", res.User.Email, state, res.RevokedSessions)
}

type listUsersOptions struct {
	Role string
	JSON bool
}

func parseListUsersFlags(args []string, out io.Writer) (listUsersOptions, error) {
	fs := newFlagSet("list-users", out)
	var opts listUsersOptions
	fs.StringVar(&opts.Role, "role", "", "Only list users holding this role (editor, publisher, admin)")
	fs.BoolVar(&opts.JSON, "json", false, "Print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return listUsersOptions{}, err
	}
	return opts, nil
}

func runListUsers(env *adminEnv, args []string) error {
	opts, err := parseListUsersFlags(args, env.out())
	if err != nil {
		return err
	}
	users, err := env.Admin.ListPrivileged(env.Ctx, opts.Role)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if opts.JSON {
		return printJSON(env.out(), users)
	}
	return printUsers(env.out(), users)
}

func printUsers(w io.Writer, users []*model.User) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "ID\tEmail\tName\tRoles\tActive\tLast Login"); err != nil {
		return fmt.Errorf("write users header: %w", err)
	}
	for _, u := range users {
		lastLogin := "never"
		if u.LastLoginAt != nil {
			lastLogin = u.LastLoginAt.UTC().Format(time.RFC3339)
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
			u.ID, u.Email, u.Name, strings.Join(domainauth.RoleStrings(u.Roles), ","), u.Active, lastLogin); err != nil {
			return fmt.Errorf("write user %s: %w", u.ID, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush users: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// confirm asks a yes/no question on the command input.
func confirm(env *adminEnv, question string) error {
	if err := writef(env.out(), "%s [y/N]: ", question); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	resp, err := bufio.NewReader(env.cmd.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errors.New("aborted by user")
}
